// Package execution is the unified tool/execution layer: the vehicle state
// store, the tool registry with parameter validation, the built-in tool
// catalog, and the MCP surfaces (in-process JSON envelope and stdio server).
package execution

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sync"
)

// VehicleState is the single process-wide record of the simulated vehicle.
// Field names (via the json tags) double as the keys for Get/Set access.
type VehicleState struct {
	// Basic status.
	EngineRunning      bool    `json:"engine_running"`
	Locked             bool    `json:"locked"`
	Speed              float64 `json:"speed"`
	FuelLevel          float64 `json:"fuel_level"`
	BatteryLevel       float64 `json:"battery_level"`
	RangeKm            float64 `json:"range_km"`
	Mileage            float64 `json:"mileage"`
	OutsideTemperature float64 `json:"outside_temperature"`

	// Driving controls.
	DrivingMode          string  `json:"driving_mode"`
	ParkingBrake         bool    `json:"parking_brake"`
	CruiseControlEnabled bool    `json:"cruise_control_enabled"`
	CruiseControlSpeed   float64 `json:"cruise_control_speed"`
	SpeedLimit           float64 `json:"speed_limit"`

	// Climate.
	ACOn          bool               `json:"ac_on"`
	ACMaxMode     bool               `json:"ac_max_mode"`
	AutoClimate   bool               `json:"auto_climate"`
	Recirculation bool               `json:"recirculation"`
	DefrostFront  bool               `json:"defrost_front"`
	DefrostRear   bool               `json:"defrost_rear"`
	Temperature   map[string]float64 `json:"temperature"`
	FanSpeed      int                `json:"fan_speed"`
	AirDirection  string             `json:"air_direction"`

	// Seats.
	SeatHeating     map[string]int  `json:"seat_heating"`
	SeatVentilation map[string]int  `json:"seat_ventilation"`
	SeatMassage     map[string]bool `json:"seat_massage"`

	// Entertainment.
	MusicPlaying     bool   `json:"music_playing"`
	MusicPaused      bool   `json:"music_paused"`
	Volume           int    `json:"volume"`
	Muted            bool   `json:"muted"`
	AudioSource      string `json:"audio_source"`
	BluetoothEnabled bool   `json:"bluetooth_enabled"`

	// Lighting.
	HeadlightsOn         bool   `json:"headlights_on"`
	HeadlightMode        string `json:"headlight_mode"`
	HighBeam             bool   `json:"high_beam"`
	FogLightsFront       bool   `json:"fog_lights_front"`
	FogLightsRear        bool   `json:"fog_lights_rear"`
	InteriorLightsOn     bool   `json:"interior_lights_on"`
	InteriorBrightness   int    `json:"interior_brightness"`
	DaytimeRunningLights bool   `json:"daytime_running_lights"`

	// Windows and sunroof. Window openness is 0 (closed) to 100 (fully open).
	Windows         map[string]int `json:"windows"`
	SunroofPosition int            `json:"sunroof_position"`
	SunroofTilted   bool           `json:"sunroof_tilted"`

	// Doors and trunk.
	DoorsLocked bool            `json:"doors_locked"`
	DoorsOpen   map[string]bool `json:"doors_open"`
	TrunkOpen   bool            `json:"trunk_open"`
	HoodOpen    bool            `json:"hood_open"`

	// Safety.
	LaneAssist            bool `json:"lane_assist"`
	BlindSpotMonitor      bool `json:"blind_spot_monitor"`
	CollisionWarning      bool `json:"collision_warning"`
	EmergencyBrake        bool `json:"emergency_brake"`
	RearCrossTrafficAlert bool `json:"rear_cross_traffic_alert"`

	// Driver assistance.
	Autopilot              bool `json:"autopilot"`
	AutoParking            bool `json:"auto_parking"`
	TrafficSignRecognition bool `json:"traffic_sign_recognition"`
	FollowingDistance      int  `json:"following_distance"`

	// Wipers.
	WipersOn   bool   `json:"wipers_on"`
	WiperSpeed string `json:"wiper_speed"`
	AutoWipers bool   `json:"auto_wipers"`

	// Ambience.
	FragranceOn            bool   `json:"fragrance_on"`
	FragranceIntensity     int    `json:"fragrance_intensity"`
	AmbientLightsOn        bool   `json:"ambient_lights_on"`
	AmbientLightColor      string `json:"ambient_light_color"`
	AmbientLightBrightness int    `json:"ambient_light_brightness"`

	// Navigation.
	NavigationActive      bool   `json:"navigation_active"`
	NavigationDestination string `json:"navigation_destination"`
	VoiceGuidance         bool   `json:"voice_guidance"`

	// Charging.
	Charging    bool `json:"charging"`
	ChargeLimit int  `json:"charge_limit"`

	// Tire pressure in bar.
	TirePressure map[string]float64 `json:"tire_pressure"`
}

// zones are the seating positions used by per-zone maps.
var zones = []string{"driver", "passenger", "rear_left", "rear_right"}

// DefaultVehicleState returns a parked, locked vehicle with nominal levels.
func DefaultVehicleState() VehicleState {
	perZoneF := func(v float64) map[string]float64 {
		m := make(map[string]float64, len(zones))
		for _, z := range zones {
			m[z] = v
		}
		return m
	}
	perZoneI := func(v int) map[string]int {
		m := make(map[string]int, len(zones))
		for _, z := range zones {
			m[z] = v
		}
		return m
	}
	perZoneB := func(v bool) map[string]bool {
		m := make(map[string]bool, len(zones))
		for _, z := range zones {
			m[z] = v
		}
		return m
	}

	return VehicleState{
		Locked:             true,
		FuelLevel:          50,
		BatteryLevel:       80,
		RangeKm:            400,
		Mileage:            50000,
		OutsideTemperature: 25,

		DrivingMode:  "comfort",
		ParkingBrake: true,

		Temperature:  perZoneF(22),
		FanSpeed:     3,
		AirDirection: "auto",

		SeatHeating:     perZoneI(0),
		SeatVentilation: perZoneI(0),
		SeatMassage:     map[string]bool{"driver": false, "passenger": false},

		Volume:           50,
		AudioSource:      "bluetooth",
		BluetoothEnabled: true,

		HeadlightMode:        "auto",
		InteriorBrightness:   50,
		DaytimeRunningLights: true,

		Windows: perZoneI(0),

		DoorsLocked: true,
		DoorsOpen:   perZoneB(false),

		BlindSpotMonitor:      true,
		CollisionWarning:      true,
		EmergencyBrake:        true,
		RearCrossTrafficAlert: true,

		TrafficSignRecognition: true,
		FollowingDistance:      3,

		WiperSpeed: "auto",
		AutoWipers: true,

		FragranceIntensity:     3,
		AmbientLightsOn:        true,
		AmbientLightColor:      "white",
		AmbientLightBrightness: 50,

		VoiceGuidance: true,

		ChargeLimit: 80,

		TirePressure: map[string]float64{
			"front_left": 2.4, "front_right": 2.4,
			"rear_left": 2.4, "rear_right": 2.4,
		},
	}
}

// StateStore is the thread-safe holder of the vehicle state. Writes go
// through Update under an exclusive lock; reads take a deep-copied snapshot
// so callers never observe a partially applied mutation.
type StateStore struct {
	mu    sync.RWMutex
	state VehicleState

	fields map[string]int // json tag → struct field index
}

// NewStateStore creates a store holding the default state.
func NewStateStore() *StateStore {
	s := &StateStore{state: DefaultVehicleState()}
	s.fields = fieldIndex(reflect.TypeOf(s.state))
	return s
}

func fieldIndex(t reflect.Type) map[string]int {
	idx := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("json"); tag != "" {
			idx[tag] = i
		}
	}
	return idx
}

// Update applies fn to the state under the write lock.
func (s *StateStore) Update(fn func(*VehicleState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Snapshot returns a deep copy of the current state.
func (s *StateStore) Snapshot() VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.state)
}

// Get returns the value of a named field (by json tag). The second return
// is false for unknown fields.
func (s *StateStore) Get(key string) (any, bool) {
	i, ok := s.fields[key]
	if !ok {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := reflect.ValueOf(deepCopy(s.state)).Field(i)
	return v.Interface(), true
}

// Set assigns a named field. Numeric values are converted between int and
// float64 as needed (JSON-decoded arguments arrive as float64). Returns an
// error for unknown fields or incompatible types.
func (s *StateStore) Set(key string, value any) error {
	i, ok := s.fields[key]
	if !ok {
		return fmt.Errorf("execution: unknown state field %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	field := reflect.ValueOf(&s.state).Elem().Field(i)
	val := reflect.ValueOf(value)

	if !val.IsValid() {
		return fmt.Errorf("execution: nil value for state field %q", key)
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && isNumeric(val.Kind()) && isNumeric(field.Kind()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("execution: cannot assign %T to state field %q", value, key)
}

// Reset restores the default state.
func (s *StateStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = DefaultVehicleState()
}

// MarshalJSON exposes the snapshot for the vehicle-status tools and the GUI.
func (s *StateStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// deepCopy clones the state including its maps.
func deepCopy(in VehicleState) VehicleState {
	out := in
	out.Temperature = maps.Clone(in.Temperature)
	out.SeatHeating = maps.Clone(in.SeatHeating)
	out.SeatVentilation = maps.Clone(in.SeatVentilation)
	out.SeatMassage = maps.Clone(in.SeatMassage)
	out.Windows = maps.Clone(in.Windows)
	out.DoorsOpen = maps.Clone(in.DoorsOpen)
	out.TirePressure = maps.Clone(in.TirePressure)
	return out
}
