package execution

import (
	"context"
	"fmt"
)

// Shared parameter builders for the catalog.

func zoneParam(desc string) Param {
	return Param{
		Name: "zone", Type: "string", Description: desc, Required: true,
		Enum: []string{"driver", "passenger", "rear_left", "rear_right"},
	}
}

func onParam(desc string) Param {
	return Param{Name: "on", Type: "boolean", Description: desc, Required: true}
}

// ok builds a successful result with optional data.
func ok(msg string, data map[string]any) Result {
	return Result{Success: true, Message: msg, Data: data}
}

func fail(msg string) Result {
	return Result{Success: false, Message: msg}
}

// RegisterCatalog installs the built-in vehicle tool catalog into r.
func RegisterCatalog(r *Registry) error {
	groups := [][]Tool{
		vehicleControlTools(),
		climateTools(),
		entertainmentTools(),
		navigationTools(),
		windowTools(),
		seatTools(),
		lightingTools(),
		safetyTools(),
		communicationTools(),
		informationTools(),
		energyTools(),
		adasTools(),
		doorTools(),
		wiperTools(),
		ambientTools(),
	}
	for _, tools := range groups {
		for _, t := range tools {
			if err := r.Register(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// ─── vehicle_control ─────────────────────────────────────────────────────────

func vehicleControlTools() []Tool {
	return []Tool{
		{
			Name: "start_engine", Description: "Start the vehicle engine.",
			Category: CategoryVehicleControl,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				var already bool
				s.Update(func(v *VehicleState) {
					already = v.EngineRunning
					v.EngineRunning = true
				})
				if already {
					return ok("Engine is already running.", nil), nil
				}
				return ok("Engine started.", nil), nil
			},
		},
		{
			Name: "stop_engine", Description: "Stop the vehicle engine.",
			Category: CategoryVehicleControl,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				var moving bool
				s.Update(func(v *VehicleState) {
					if v.Speed > 0 {
						moving = true
						return
					}
					v.EngineRunning = false
				})
				if moving {
					return fail("Cannot stop the engine while the vehicle is moving."), nil
				}
				return ok("Engine stopped.", nil), nil
			},
		},
		{
			Name: "set_driving_mode", Description: "Switch the driving mode.",
			Category: CategoryVehicleControl,
			Params: []Param{{
				Name: "mode", Type: "string", Description: "Target driving mode.", Required: true,
				Enum: []string{"comfort", "sport", "eco", "snow", "offroad"},
			}},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				mode := args["mode"].(string)
				s.Update(func(v *VehicleState) { v.DrivingMode = mode })
				return ok(fmt.Sprintf("Driving mode set to %s.", mode), nil), nil
			},
		},
		{
			Name: "set_parking_brake", Description: "Engage or release the parking brake.",
			Category: CategoryVehicleControl,
			Params:   []Param{onParam("true engages, false releases.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.ParkingBrake = on })
				if on {
					return ok("Parking brake engaged.", nil), nil
				}
				return ok("Parking brake released.", nil), nil
			},
		},
		{
			Name: "set_cruise_control", Description: "Enable or disable cruise control, optionally with a target speed.",
			Category: CategoryVehicleControl,
			Params: []Param{
				{Name: "enabled", Type: "boolean", Description: "Cruise control on/off.", Required: true},
				{Name: "speed", Type: "number", Description: "Target speed in km/h.", Default: float64(0)},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				enabled := args["enabled"].(bool)
				speed := args["speed"].(float64)
				if enabled && (speed < 30 || speed > 150) {
					return fail("Cruise speed must be between 30 and 150 km/h."), nil
				}
				s.Update(func(v *VehicleState) {
					v.CruiseControlEnabled = enabled
					v.CruiseControlSpeed = speed
				})
				if enabled {
					return ok(fmt.Sprintf("Cruise control enabled at %.0f km/h.", speed), nil), nil
				}
				return ok("Cruise control disabled.", nil), nil
			},
		},
	}
}

// ─── climate ─────────────────────────────────────────────────────────────────

func climateTools() []Tool {
	return []Tool{
		{
			Name: "turn_on_ac", Description: "Turn on the air conditioning.",
			Category: CategoryClimate,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) { v.ACOn = true })
				return ok("Air conditioning turned on.", nil), nil
			},
		},
		{
			Name: "turn_off_ac", Description: "Turn off the air conditioning.",
			Category: CategoryClimate,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) {
					v.ACOn = false
					v.ACMaxMode = false
				})
				return ok("Air conditioning turned off.", nil), nil
			},
		},
		{
			Name: "set_temperature", Description: "Set the cabin temperature for a seating zone.",
			Category: CategoryClimate,
			Params: []Param{
				zoneParam("Seating zone to adjust."),
				{Name: "temperature", Type: "number", Description: "Target temperature in °C (16–30).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				zone := args["zone"].(string)
				temp := args["temperature"].(float64)
				if temp < 16 || temp > 30 {
					return fail("Temperature must be between 16 and 30 °C."), nil
				}
				s.Update(func(v *VehicleState) {
					v.ACOn = true
					v.Temperature[zone] = temp
				})
				return ok(fmt.Sprintf("Temperature for %s set to %.1f °C.", zone, temp),
					map[string]any{"zone": zone, "temperature": temp}), nil
			},
		},
		{
			Name: "set_fan_speed", Description: "Set the climate fan speed.",
			Category: CategoryClimate,
			Params: []Param{
				{Name: "speed", Type: "integer", Description: "Fan speed level (1–7).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				speed := args["speed"].(int)
				if speed < 1 || speed > 7 {
					return fail("Fan speed must be between 1 and 7."), nil
				}
				s.Update(func(v *VehicleState) { v.FanSpeed = speed })
				return ok(fmt.Sprintf("Fan speed set to %d.", speed), nil), nil
			},
		},
		{
			Name: "set_air_direction", Description: "Set the air outlet direction.",
			Category: CategoryClimate,
			Params: []Param{{
				Name: "direction", Type: "string", Description: "Air flow direction.", Required: true,
				Enum: []string{"face", "feet", "face_feet", "windshield", "auto"},
			}},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				dir := args["direction"].(string)
				s.Update(func(v *VehicleState) { v.AirDirection = dir })
				return ok(fmt.Sprintf("Air direction set to %s.", dir), nil), nil
			},
		},
		{
			Name: "set_defrost", Description: "Turn windshield defrost on or off.",
			Category: CategoryClimate,
			Params: []Param{
				{Name: "position", Type: "string", Description: "Which windshield.", Required: true,
					Enum: []string{"front", "rear"}},
				onParam("Defrost on/off."),
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				pos := args["position"].(string)
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) {
					if pos == "front" {
						v.DefrostFront = on
					} else {
						v.DefrostRear = on
					}
				})
				return ok(fmt.Sprintf("%s defrost set to %t.", pos, on), nil), nil
			},
		},
		{
			Name: "set_auto_climate", Description: "Enable or disable automatic climate control.",
			Category: CategoryClimate,
			Params:   []Param{onParam("Auto climate on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) {
					v.AutoClimate = on
					if on {
						v.ACOn = true
					}
				})
				return ok(fmt.Sprintf("Auto climate set to %t.", on), nil), nil
			},
		},
		{
			Name: "set_recirculation", Description: "Switch between recirculated and fresh air.",
			Category: CategoryClimate,
			Params:   []Param{onParam("true recirculates cabin air.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.Recirculation = on })
				return ok(fmt.Sprintf("Air recirculation set to %t.", on), nil), nil
			},
		},
	}
}

// ─── entertainment ───────────────────────────────────────────────────────────

func entertainmentTools() []Tool {
	return []Tool{
		{
			Name: "play_music", Description: "Start or resume music playback, optionally with a song or artist.",
			Category: CategoryEntertainment,
			Params: []Param{
				{Name: "query", Type: "string", Description: "Song, artist, or playlist to play.", Default: ""},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				query, _ := args["query"].(string)
				s.Update(func(v *VehicleState) {
					v.MusicPlaying = true
					v.MusicPaused = false
				})
				if query != "" {
					return ok(fmt.Sprintf("Playing %s.", query), map[string]any{"query": query}), nil
				}
				return ok("Music playback started.", nil), nil
			},
		},
		{
			Name: "pause_music", Description: "Pause music playback.",
			Category: CategoryEntertainment,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				var playing bool
				s.Update(func(v *VehicleState) {
					playing = v.MusicPlaying
					if playing {
						v.MusicPaused = true
					}
				})
				if !playing {
					return fail("No music is playing."), nil
				}
				return ok("Music paused.", nil), nil
			},
		},
		{
			Name: "stop_music", Description: "Stop music playback.",
			Category: CategoryEntertainment,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) {
					v.MusicPlaying = false
					v.MusicPaused = false
				})
				return ok("Music stopped.", nil), nil
			},
		},
		{
			Name: "set_volume", Description: "Set the audio volume.",
			Category: CategoryEntertainment,
			Params: []Param{
				{Name: "level", Type: "integer", Description: "Volume level (0–100).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				level := args["level"].(int)
				if level < 0 || level > 100 {
					return fail("Volume must be between 0 and 100."), nil
				}
				s.Update(func(v *VehicleState) {
					v.Volume = level
					v.Muted = level == 0
				})
				return ok(fmt.Sprintf("Volume set to %d.", level), nil), nil
			},
		},
		{
			Name: "set_mute", Description: "Mute or unmute the audio.",
			Category: CategoryEntertainment,
			Params:   []Param{onParam("true mutes.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.Muted = on })
				if on {
					return ok("Audio muted.", nil), nil
				}
				return ok("Audio unmuted.", nil), nil
			},
		},
		{
			Name: "set_audio_source", Description: "Switch the audio source.",
			Category: CategoryEntertainment,
			Params: []Param{{
				Name: "source", Type: "string", Description: "Audio source.", Required: true,
				Enum: []string{"bluetooth", "radio", "usb", "streaming"},
			}},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				src := args["source"].(string)
				s.Update(func(v *VehicleState) { v.AudioSource = src })
				return ok(fmt.Sprintf("Audio source switched to %s.", src), nil), nil
			},
		},
	}
}

// ─── navigation ──────────────────────────────────────────────────────────────

func navigationTools() []Tool {
	return []Tool{
		{
			Name: "start_navigation", Description: "Start navigation to a destination.",
			Category: CategoryNavigation,
			Params: []Param{
				{Name: "destination", Type: "string", Description: "Destination address or place name.", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				dest := args["destination"].(string)
				s.Update(func(v *VehicleState) {
					v.NavigationActive = true
					v.NavigationDestination = dest
				})
				return ok(fmt.Sprintf("Navigating to %s.", dest),
					map[string]any{"destination": dest}), nil
			},
		},
		{
			Name: "cancel_navigation", Description: "Cancel the active navigation.",
			Category: CategoryNavigation,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				var active bool
				s.Update(func(v *VehicleState) {
					active = v.NavigationActive
					v.NavigationActive = false
					v.NavigationDestination = ""
				})
				if !active {
					return fail("No navigation is active."), nil
				}
				return ok("Navigation cancelled.", nil), nil
			},
		},
		{
			Name: "set_voice_guidance", Description: "Enable or disable navigation voice guidance.",
			Category: CategoryNavigation,
			Params:   []Param{onParam("Voice guidance on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.VoiceGuidance = on })
				return ok(fmt.Sprintf("Voice guidance set to %t.", on), nil), nil
			},
		},
	}
}

// ─── window ──────────────────────────────────────────────────────────────────

func windowTools() []Tool {
	return []Tool{
		{
			Name: "open_window", Description: "Open a window, fully or to a percentage.",
			Category: CategoryWindow,
			Params: []Param{
				zoneParam("Which window."),
				{Name: "percent", Type: "integer", Description: "Openness (0–100).", Default: float64(100)},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				zone := args["zone"].(string)
				percent := asInt(args["percent"])
				if percent < 0 || percent > 100 {
					return fail("Window openness must be between 0 and 100."), nil
				}
				s.Update(func(v *VehicleState) { v.Windows[zone] = percent })
				return ok(fmt.Sprintf("%s window opened to %d%%.", zone, percent), nil), nil
			},
		},
		{
			Name: "close_window", Description: "Close a window.",
			Category: CategoryWindow,
			Params:   []Param{zoneParam("Which window.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				zone := args["zone"].(string)
				s.Update(func(v *VehicleState) { v.Windows[zone] = 0 })
				return ok(fmt.Sprintf("%s window closed.", zone), nil), nil
			},
		},
		{
			Name: "open_sunroof", Description: "Open the sunroof, fully or to a percentage.",
			Category: CategoryWindow,
			Params: []Param{
				{Name: "percent", Type: "integer", Description: "Openness (0–100).", Default: float64(100)},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				percent := asInt(args["percent"])
				if percent < 0 || percent > 100 {
					return fail("Sunroof openness must be between 0 and 100."), nil
				}
				s.Update(func(v *VehicleState) {
					v.SunroofPosition = percent
					v.SunroofTilted = false
				})
				return ok(fmt.Sprintf("Sunroof opened to %d%%.", percent), nil), nil
			},
		},
		{
			Name: "close_sunroof", Description: "Close the sunroof.",
			Category: CategoryWindow,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) {
					v.SunroofPosition = 0
					v.SunroofTilted = false
				})
				return ok("Sunroof closed.", nil), nil
			},
		},
		{
			Name: "tilt_sunroof", Description: "Tilt the sunroof for ventilation.",
			Category: CategoryWindow,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) {
					v.SunroofTilted = true
					v.SunroofPosition = 0
				})
				return ok("Sunroof tilted.", nil), nil
			},
		},
	}
}

// ─── seat ────────────────────────────────────────────────────────────────────

func seatTools() []Tool {
	return []Tool{
		{
			Name: "set_seat_heating", Description: "Set the seat heating level for a seat.",
			Category: CategorySeat,
			Params: []Param{
				zoneParam("Which seat."),
				{Name: "level", Type: "integer", Description: "Heating level (0 off – 3 max).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				zone := args["zone"].(string)
				level := args["level"].(int)
				if level < 0 || level > 3 {
					return fail("Seat heating level must be between 0 and 3."), nil
				}
				s.Update(func(v *VehicleState) { v.SeatHeating[zone] = level })
				return ok(fmt.Sprintf("%s seat heating set to level %d.", zone, level), nil), nil
			},
		},
		{
			Name: "set_seat_ventilation", Description: "Set the seat ventilation level for a seat.",
			Category: CategorySeat,
			Params: []Param{
				zoneParam("Which seat."),
				{Name: "level", Type: "integer", Description: "Ventilation level (0 off – 3 max).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				zone := args["zone"].(string)
				level := args["level"].(int)
				if level < 0 || level > 3 {
					return fail("Seat ventilation level must be between 0 and 3."), nil
				}
				s.Update(func(v *VehicleState) { v.SeatVentilation[zone] = level })
				return ok(fmt.Sprintf("%s seat ventilation set to level %d.", zone, level), nil), nil
			},
		},
		{
			Name: "set_seat_massage", Description: "Turn the seat massage on or off for a front seat.",
			Category: CategorySeat,
			Params: []Param{
				{Name: "zone", Type: "string", Description: "Which seat.", Required: true,
					Enum: []string{"driver", "passenger"}},
				onParam("Massage on/off."),
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				zone := args["zone"].(string)
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.SeatMassage[zone] = on })
				return ok(fmt.Sprintf("%s seat massage set to %t.", zone, on), nil), nil
			},
		},
	}
}

// ─── lighting ────────────────────────────────────────────────────────────────

func lightingTools() []Tool {
	return []Tool{
		{
			Name: "set_headlights", Description: "Turn the headlights on or off.",
			Category: CategoryLighting,
			Params:   []Param{onParam("Headlights on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) {
					v.HeadlightsOn = on
					if !on {
						v.HighBeam = false
					}
				})
				return ok(fmt.Sprintf("Headlights set to %t.", on), nil), nil
			},
		},
		{
			Name: "set_headlight_mode", Description: "Set the headlight control mode.",
			Category: CategoryLighting,
			Params: []Param{{
				Name: "mode", Type: "string", Description: "Headlight mode.", Required: true,
				Enum: []string{"auto", "on", "off"},
			}},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				mode := args["mode"].(string)
				s.Update(func(v *VehicleState) {
					v.HeadlightMode = mode
					v.HeadlightsOn = mode == "on"
				})
				return ok(fmt.Sprintf("Headlight mode set to %s.", mode), nil), nil
			},
		},
		{
			Name: "set_high_beam", Description: "Turn the high beam on or off.",
			Category: CategoryLighting,
			Params:   []Param{onParam("High beam on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				var lightsOff bool
				s.Update(func(v *VehicleState) {
					if on && !v.HeadlightsOn {
						lightsOff = true
						return
					}
					v.HighBeam = on
				})
				if lightsOff {
					return fail("Turn on the headlights before the high beam."), nil
				}
				return ok(fmt.Sprintf("High beam set to %t.", on), nil), nil
			},
		},
		{
			Name: "set_fog_lights", Description: "Turn the fog lights on or off.",
			Category: CategoryLighting,
			Params: []Param{
				{Name: "position", Type: "string", Description: "Front or rear fog lights.", Required: true,
					Enum: []string{"front", "rear"}},
				onParam("Fog lights on/off."),
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				pos := args["position"].(string)
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) {
					if pos == "front" {
						v.FogLightsFront = on
					} else {
						v.FogLightsRear = on
					}
				})
				return ok(fmt.Sprintf("%s fog lights set to %t.", pos, on), nil), nil
			},
		},
		{
			Name: "set_interior_lights", Description: "Control the interior lights and their brightness.",
			Category: CategoryLighting,
			Params: []Param{
				onParam("Interior lights on/off."),
				{Name: "brightness", Type: "integer", Description: "Brightness (0–100).", Default: float64(50)},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				brightness := asInt(args["brightness"])
				if brightness < 0 || brightness > 100 {
					return fail("Brightness must be between 0 and 100."), nil
				}
				s.Update(func(v *VehicleState) {
					v.InteriorLightsOn = on
					v.InteriorBrightness = brightness
				})
				return ok(fmt.Sprintf("Interior lights set to %t at %d%%.", on, brightness), nil), nil
			},
		},
	}
}

// ─── safety ──────────────────────────────────────────────────────────────────

func safetyTools() []Tool {
	toggle := func(name, desc string, set func(*VehicleState, bool)) Tool {
		return Tool{
			Name: name, Description: desc,
			Category: CategorySafety,
			Params:   []Param{onParam("Enable or disable.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { set(v, on) })
				return ok(fmt.Sprintf("%s set to %t.", name, on), nil), nil
			},
		}
	}
	return []Tool{
		toggle("set_lane_assist", "Enable or disable lane keeping assist.",
			func(v *VehicleState, on bool) { v.LaneAssist = on }),
		toggle("set_blind_spot_monitor", "Enable or disable the blind spot monitor.",
			func(v *VehicleState, on bool) { v.BlindSpotMonitor = on }),
		toggle("set_collision_warning", "Enable or disable the forward collision warning.",
			func(v *VehicleState, on bool) { v.CollisionWarning = on }),
		toggle("set_emergency_brake", "Enable or disable automatic emergency braking.",
			func(v *VehicleState, on bool) { v.EmergencyBrake = on }),
		toggle("set_rear_cross_traffic_alert", "Enable or disable the rear cross traffic alert.",
			func(v *VehicleState, on bool) { v.RearCrossTrafficAlert = on }),
	}
}

// ─── communication ───────────────────────────────────────────────────────────

func communicationTools() []Tool {
	return []Tool{
		{
			Name: "make_phone_call", Description: "Place a phone call to a contact or number.",
			Category: CategoryCommunication,
			Params: []Param{
				{Name: "contact", Type: "string", Description: "Contact name or phone number.", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				var bt bool
				s.Update(func(v *VehicleState) { bt = v.BluetoothEnabled })
				if !bt {
					return fail("Bluetooth is disabled; cannot place a call."), nil
				}
				contact := args["contact"].(string)
				return ok(fmt.Sprintf("Calling %s.", contact),
					map[string]any{"contact": contact}), nil
			},
		},
		{
			Name: "send_message", Description: "Send a text message to a contact.",
			Category: CategoryCommunication,
			Params: []Param{
				{Name: "contact", Type: "string", Description: "Recipient contact name.", Required: true},
				{Name: "message", Type: "string", Description: "Message text.", Required: true},
			},
			Handler: func(_ context.Context, _ *StateStore, args map[string]any) (Result, error) {
				contact := args["contact"].(string)
				return ok(fmt.Sprintf("Message sent to %s.", contact),
					map[string]any{"contact": contact, "message": args["message"]}), nil
			},
		},
		{
			Name: "set_bluetooth", Description: "Enable or disable Bluetooth.",
			Category: CategoryCommunication,
			Params:   []Param{onParam("Bluetooth on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.BluetoothEnabled = on })
				return ok(fmt.Sprintf("Bluetooth set to %t.", on), nil), nil
			},
		},
	}
}

// ─── information ─────────────────────────────────────────────────────────────

func informationTools() []Tool {
	return []Tool{
		{
			Name: "get_vehicle_status", Description: "Read a summary of the current vehicle status.",
			Category: CategoryInformation,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				v := s.Snapshot()
				return ok("Vehicle status read.", map[string]any{
					"engine_running": v.EngineRunning,
					"speed":          v.Speed,
					"fuel_level":     v.FuelLevel,
					"battery_level":  v.BatteryLevel,
					"range_km":       v.RangeKm,
					"driving_mode":   v.DrivingMode,
					"ac_on":          v.ACOn,
					"music_playing":  v.MusicPlaying,
					"doors_locked":   v.DoorsLocked,
				}), nil
			},
		},
		{
			Name: "get_fuel_level", Description: "Read the fuel level and remaining range.",
			Category: CategoryInformation,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				v := s.Snapshot()
				return ok(fmt.Sprintf("Fuel at %.0f%%, range %.0f km.", v.FuelLevel, v.RangeKm),
					map[string]any{"fuel_level": v.FuelLevel, "range_km": v.RangeKm}), nil
			},
		},
		{
			Name: "get_tire_pressure", Description: "Read the tire pressures.",
			Category: CategoryInformation,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				v := s.Snapshot()
				data := make(map[string]any, len(v.TirePressure))
				for pos, bar := range v.TirePressure {
					data[pos] = bar
				}
				return ok("Tire pressures read.", data), nil
			},
		},
		{
			Name: "get_outside_temperature", Description: "Read the outside temperature.",
			Category: CategoryInformation,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				v := s.Snapshot()
				return ok(fmt.Sprintf("Outside temperature is %.1f °C.", v.OutsideTemperature),
					map[string]any{"outside_temperature": v.OutsideTemperature}), nil
			},
		},
	}
}

// ─── energy ──────────────────────────────────────────────────────────────────

func energyTools() []Tool {
	return []Tool{
		{
			Name: "start_charging", Description: "Start charging the battery.",
			Category: CategoryEnergy,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				var running bool
				s.Update(func(v *VehicleState) {
					if v.EngineRunning {
						running = true
						return
					}
					v.Charging = true
				})
				if running {
					return fail("Stop the engine before charging."), nil
				}
				return ok("Charging started.", nil), nil
			},
		},
		{
			Name: "stop_charging", Description: "Stop charging the battery.",
			Category: CategoryEnergy,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) { v.Charging = false })
				return ok("Charging stopped.", nil), nil
			},
		},
		{
			Name: "set_charge_limit", Description: "Set the maximum charge level.",
			Category: CategoryEnergy,
			Params: []Param{
				{Name: "limit", Type: "integer", Description: "Charge limit in percent (50–100).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				limit := args["limit"].(int)
				if limit < 50 || limit > 100 {
					return fail("Charge limit must be between 50 and 100 percent."), nil
				}
				s.Update(func(v *VehicleState) { v.ChargeLimit = limit })
				return ok(fmt.Sprintf("Charge limit set to %d%%.", limit), nil), nil
			},
		},
	}
}

// ─── adas ────────────────────────────────────────────────────────────────────

func adasTools() []Tool {
	return []Tool{
		{
			Name: "set_autopilot", Description: "Engage or disengage the driving assistant.",
			Category: CategoryADAS,
			Params:   []Param{onParam("Autopilot on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				var stopped bool
				s.Update(func(v *VehicleState) {
					if on && !v.EngineRunning {
						stopped = true
						return
					}
					v.Autopilot = on
				})
				if stopped {
					return fail("Start the engine before engaging autopilot."), nil
				}
				return ok(fmt.Sprintf("Autopilot set to %t.", on), nil), nil
			},
		},
		{
			Name: "set_auto_parking", Description: "Enable or disable automatic parking.",
			Category: CategoryADAS,
			Params:   []Param{onParam("Auto parking on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.AutoParking = on })
				return ok(fmt.Sprintf("Auto parking set to %t.", on), nil), nil
			},
		},
		{
			Name: "set_following_distance", Description: "Set the adaptive cruise following distance.",
			Category: CategoryADAS,
			Params: []Param{
				{Name: "distance", Type: "integer", Description: "Following distance level (1 close – 5 far).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				d := args["distance"].(int)
				if d < 1 || d > 5 {
					return fail("Following distance must be between 1 and 5."), nil
				}
				s.Update(func(v *VehicleState) { v.FollowingDistance = d })
				return ok(fmt.Sprintf("Following distance set to %d.", d), nil), nil
			},
		},
		{
			Name: "set_traffic_sign_recognition", Description: "Enable or disable traffic sign recognition.",
			Category: CategoryADAS,
			Params:   []Param{onParam("Recognition on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.TrafficSignRecognition = on })
				return ok(fmt.Sprintf("Traffic sign recognition set to %t.", on), nil), nil
			},
		},
	}
}

// ─── door ────────────────────────────────────────────────────────────────────

func doorTools() []Tool {
	return []Tool{
		{
			Name: "lock_doors", Description: "Lock all doors.",
			Category: CategoryDoor,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				var open bool
				s.Update(func(v *VehicleState) {
					for _, o := range v.DoorsOpen {
						if o {
							open = true
							return
						}
					}
					v.DoorsLocked = true
					v.Locked = true
				})
				if open {
					return fail("Cannot lock while a door is open."), nil
				}
				return ok("Doors locked.", nil), nil
			},
		},
		{
			Name: "unlock_doors", Description: "Unlock all doors.",
			Category: CategoryDoor,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) {
					v.DoorsLocked = false
					v.Locked = false
				})
				return ok("Doors unlocked.", nil), nil
			},
		},
		{
			Name: "open_trunk", Description: "Open the trunk.",
			Category: CategoryDoor,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				var moving bool
				s.Update(func(v *VehicleState) {
					if v.Speed > 0 {
						moving = true
						return
					}
					v.TrunkOpen = true
				})
				if moving {
					return fail("Cannot open the trunk while moving."), nil
				}
				return ok("Trunk opened.", nil), nil
			},
		},
		{
			Name: "close_trunk", Description: "Close the trunk.",
			Category: CategoryDoor,
			Handler: func(_ context.Context, s *StateStore, _ map[string]any) (Result, error) {
				s.Update(func(v *VehicleState) { v.TrunkOpen = false })
				return ok("Trunk closed.", nil), nil
			},
		},
	}
}

// ─── wiper ───────────────────────────────────────────────────────────────────

func wiperTools() []Tool {
	return []Tool{
		{
			Name: "set_wipers", Description: "Turn the windshield wipers on or off.",
			Category: CategoryWiper,
			Params:   []Param{onParam("Wipers on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.WipersOn = on })
				return ok(fmt.Sprintf("Wipers set to %t.", on), nil), nil
			},
		},
		{
			Name: "set_wiper_speed", Description: "Set the wiper speed.",
			Category: CategoryWiper,
			Params: []Param{{
				Name: "speed", Type: "string", Description: "Wiper speed.", Required: true,
				Enum: []string{"low", "medium", "high", "auto"},
			}},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				speed := args["speed"].(string)
				s.Update(func(v *VehicleState) {
					v.WiperSpeed = speed
					v.WipersOn = true
					v.AutoWipers = speed == "auto"
				})
				return ok(fmt.Sprintf("Wiper speed set to %s.", speed), nil), nil
			},
		},
	}
}

// ─── ambient ─────────────────────────────────────────────────────────────────

func ambientTools() []Tool {
	return []Tool{
		{
			Name: "set_ambient_lights", Description: "Turn the ambient lighting on or off.",
			Category: CategoryAmbient,
			Params:   []Param{onParam("Ambient lights on/off.")},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				s.Update(func(v *VehicleState) { v.AmbientLightsOn = on })
				return ok(fmt.Sprintf("Ambient lights set to %t.", on), nil), nil
			},
		},
		{
			Name: "set_ambient_light_color", Description: "Set the ambient lighting color.",
			Category: CategoryAmbient,
			Params: []Param{{
				Name: "color", Type: "string", Description: "Ambient light color.", Required: true,
				Enum: []string{"white", "red", "orange", "green", "blue", "purple"},
			}},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				color := args["color"].(string)
				s.Update(func(v *VehicleState) {
					v.AmbientLightColor = color
					v.AmbientLightsOn = true
				})
				return ok(fmt.Sprintf("Ambient light color set to %s.", color), nil), nil
			},
		},
		{
			Name: "set_ambient_light_brightness", Description: "Set the ambient lighting brightness.",
			Category: CategoryAmbient,
			Params: []Param{
				{Name: "brightness", Type: "integer", Description: "Brightness (0–100).", Required: true},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				b := args["brightness"].(int)
				if b < 0 || b > 100 {
					return fail("Brightness must be between 0 and 100."), nil
				}
				s.Update(func(v *VehicleState) { v.AmbientLightBrightness = b })
				return ok(fmt.Sprintf("Ambient light brightness set to %d%%.", b), nil), nil
			},
		},
		{
			Name: "set_fragrance", Description: "Control the cabin fragrance diffuser.",
			Category: CategoryAmbient,
			Params: []Param{
				onParam("Fragrance on/off."),
				{Name: "intensity", Type: "integer", Description: "Intensity (1–5).", Default: float64(3)},
			},
			Handler: func(_ context.Context, s *StateStore, args map[string]any) (Result, error) {
				on := args["on"].(bool)
				intensity := asInt(args["intensity"])
				if intensity < 1 || intensity > 5 {
					return fail("Fragrance intensity must be between 1 and 5."), nil
				}
				s.Update(func(v *VehicleState) {
					v.FragranceOn = on
					v.FragranceIntensity = intensity
				})
				return ok(fmt.Sprintf("Fragrance set to %t at intensity %d.", on, intensity), nil), nil
			},
		},
	}
}

// asInt reads an argument that may be an int (validated integer) or float64
// (a numeric default).
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
