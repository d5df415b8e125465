// Package wavfile implements audio.Source over a RIFF/WAV file.
//
// The file's PCM payload is sliced into fixed-duration frames and emitted on
// the frame channel. With realtime pacing enabled the source sleeps between
// frames to mimic a live capture device, which makes it suitable for
// end-to-end pipeline runs against recorded utterances; without pacing it
// floods frames as fast as the consumer accepts them, which is what batch
// evaluation wants.
package wavfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kiwivoice/kiwi/pkg/audio"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithFrameSize sets the emitted frame duration in milliseconds. Defaults to 20.
func WithFrameSize(ms int) Option {
	return func(s *Source) { s.frameMs = ms }
}

// WithRealtimePacing makes the source sleep one frame duration between
// frames. Disabled by default.
func WithRealtimePacing() Option {
	return func(s *Source) { s.realtime = true }
}

// Source implements audio.Source for a single WAV file.
type Source struct {
	path     string
	frameMs  int
	realtime bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

var _ audio.Source = (*Source)(nil)

// New creates a Source for the WAV file at path. The file must contain
// 16-bit PCM.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path, frameMs: 20}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start implements audio.Source.
func (s *Source) Start(ctx context.Context) (<-chan types.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, fmt.Errorf("wavfile: source already started")
	}
	s.started = true

	pcm, sampleRate, channels, err := readWAV(s.path)
	if err != nil {
		return nil, err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	frameBytes := sampleRate * s.frameMs / 1000 * 2 * channels
	out := make(chan types.AudioFrame, 8)

	go func() {
		defer close(out)
		frameDur := time.Duration(s.frameMs) * time.Millisecond
		var ts time.Duration

		for off := 0; off < len(pcm); off += frameBytes {
			end := off + frameBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			frame := types.AudioFrame{
				Data:       pcm[off:end],
				SampleRate: sampleRate,
				Channels:   channels,
				Timestamp:  ts,
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
			ts += frameDur

			if s.realtime {
				select {
				case <-time.After(frameDur):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements audio.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// readWAV parses a minimal RIFF/WAV file and returns its 16-bit PCM payload.
func readWAV(path string) (pcm []byte, sampleRate, channels int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("wavfile: read %s: %w", path, err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("wavfile: %s is not a RIFF/WAVE file", path)
	}

	// Walk the chunk list for fmt and data.
	var haveFmt bool
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return nil, 0, 0, fmt.Errorf("wavfile: %s: truncated %q chunk", path, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("wavfile: %s: short fmt chunk", path)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("wavfile: %s: unsupported format %d (want PCM)", path, format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			if bits := binary.LittleEndian.Uint16(data[body+14 : body+16]); bits != 16 {
				return nil, 0, 0, fmt.Errorf("wavfile: %s: unsupported bit depth %d (want 16)", path, bits)
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		pos = body + size + size%2
	}

	if !haveFmt || pcm == nil {
		return nil, 0, 0, fmt.Errorf("wavfile: %s: missing fmt or data chunk", path)
	}
	return pcm, sampleRate, channels, nil
}
