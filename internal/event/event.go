// Package event defines the typed events exchanged over the bus.
//
// Every event carries a [Kind] that determines the concrete type of its
// Payload. Producers construct events through the New* helpers so that the
// kind/payload pairing cannot drift; consumers type-assert the payload for
// the kinds they subscribe to.
package event

import (
	"time"

	"github.com/kiwivoice/kiwi/pkg/types"
)

// Kind identifies the event variant. The string values double as the wire
// names used in traces, logs, and the GUI feed.
type Kind string

const (
	// Lifecycle.
	KindSystemStartup  Kind = "system_startup"
	KindSystemShutdown Kind = "system_shutdown"

	// Audio front-end.
	KindAudioFrameReady   Kind = "audio_frame_ready"
	KindWakewordDetected  Kind = "wakeword_detected"
	KindWakewordTimeout   Kind = "wakeword_timeout"
	KindVADSpeechStart    Kind = "vad_speech_start"
	KindVADSpeechEnd      Kind = "vad_speech_end"
	KindASRStart          Kind = "asr_recognition_start"
	KindASRPartialResult  Kind = "asr_partial_result"
	KindASRSuccess        Kind = "asr_recognition_success"
	KindASRFailed         Kind = "asr_recognition_failed"

	// Coordination.
	KindStateChanged         Kind = "state_changed"
	KindAgentDispatchRequest Kind = "agent_dispatch_request"
	KindAgentResponse        Kind = "agent_response"
	KindSessionExpired       Kind = "session_expired"

	// Output.
	KindTTSSpeakRequest Kind = "tts_speak_request"
	KindTTSSpeakStart   Kind = "tts_speak_start"
	KindTTSSpeakEnd     Kind = "tts_speak_end"
	KindTTSSpeakError   Kind = "tts_speak_error"

	// Display sink.
	KindGUIStatus   Kind = "gui_update_status"
	KindGUIText     Kind = "gui_update_text"
	KindGUIWaveform Kind = "gui_update_waveform"
)

// Event is the envelope delivered to subscribers. MessageID is the
// correlation id assigned by the message tracker; it is empty for events that
// precede recognition (audio frames, wakeword hits).
type Event struct {
	Kind      Kind
	Source    string
	Timestamp time.Time
	MessageID string
	Payload   any
}

// New builds an event with the current time. Prefer the typed constructors
// below; New is for payload-free kinds such as [KindSystemStartup].
func New(kind Kind, source string) Event {
	return Event{Kind: kind, Source: source, Timestamp: time.Now()}
}

// WakewordHit is the payload of [KindWakewordDetected].
type WakewordHit struct {
	Keyword    string
	Confidence float64
}

// SpeechSegment is the payload of [KindVADSpeechEnd]: the complete buffered
// utterance between speech start and end.
type SpeechSegment struct {
	Audio      []byte
	SampleRate int
	Duration   time.Duration
}

// ASRResult is the payload of [KindASRSuccess] and [KindASRPartialResult].
type ASRResult struct {
	Text       string
	Confidence float64
	UserID     string
	Latency    time.Duration
}

// ASRFailure is the payload of [KindASRFailed].
type ASRFailure struct {
	Reason string
	Err    error
}

// StateChange is the payload of [KindStateChanged].
type StateChange struct {
	From   string
	To     string
	Reason string
}

// SessionAction tells the agent adapter how to route a dispatch relative to
// the user's session stack.
type SessionAction string

const (
	// SessionNew starts a fresh session for the selected agent.
	SessionNew SessionAction = "new"

	// SessionResume feeds the query into the session currently waiting for input.
	SessionResume SessionAction = "resume"
)

// AgentDispatch is the payload of [KindAgentDispatchRequest], produced by the
// orchestrator adapter after agent selection.
type AgentDispatch struct {
	Query      string
	Agent      string
	UserID     string
	SessionID  string
	Action     SessionAction
	Confidence float64
	Reasoning  string
	Parameters map[string]any
}

// AgentResponseStatus enumerates the terminal and intermediate outcomes of an
// agent invocation.
type AgentResponseStatus string

const (
	StatusSuccess      AgentResponseStatus = "success"
	StatusWaitingInput AgentResponseStatus = "waiting_input"
	StatusCompleted    AgentResponseStatus = "completed"
	StatusError        AgentResponseStatus = "error"
)

// AgentResponse is the payload of [KindAgentResponse].
type AgentResponse struct {
	Agent     string
	Query     string
	UserID    string
	SessionID string
	Status    AgentResponseStatus
	Message   string

	// Prompt is the follow-up question when Status is waiting_input; it is
	// replayed when a paused session resumes.
	Prompt string

	Data map[string]any
}

// SpeakRequest is the payload of [KindTTSSpeakRequest].
type SpeakRequest struct {
	Text   string
	UserID string
}

// SessionExpiry is the payload of [KindSessionExpired].
type SessionExpiry struct {
	SessionID string
	Agent     string
	UserID    string
	IdleFor   time.Duration
}

// GUIText is the payload of [KindGUIText]: a line for the transcript pane.
type GUIText struct {
	Role string
	Text string
}

// GUIStatus is the payload of [KindGUIStatus].
type GUIStatus struct {
	State  string
	Detail string
}

// GUIWaveform is the payload of [KindGUIWaveform]: a downsampled amplitude
// envelope for the level meter.
type GUIWaveform struct {
	Levels []float32
}

// NewFrameEvent wraps an audio frame for subscribers that opted out of the
// direct frame-consumer path.
func NewFrameEvent(source string, frame types.AudioFrame) Event {
	return Event{Kind: KindAudioFrameReady, Source: source, Timestamp: time.Now(), Payload: frame}
}
