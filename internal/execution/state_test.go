package execution

import (
	"sync"
	"testing"
)

func TestDefaultStateIsParkedAndLocked(t *testing.T) {
	t.Parallel()
	v := DefaultVehicleState()

	if v.EngineRunning {
		t.Error("engine should be off by default")
	}
	if !v.DoorsLocked || !v.ParkingBrake {
		t.Error("default state should be locked with the parking brake on")
	}
	if v.Temperature["driver"] != 22 {
		t.Errorf("driver temperature = %v, want 22", v.Temperature["driver"])
	}
	if v.ChargeLimit != 80 {
		t.Errorf("charge limit = %d, want 80", v.ChargeLimit)
	}
}

func TestGetReturnsFieldsByName(t *testing.T) {
	t.Parallel()
	s := NewStateStore()

	v, ok := s.Get("fuel_level")
	if !ok {
		t.Fatal("fuel_level should be a known field")
	}
	if v.(float64) != 50 {
		t.Errorf("fuel_level = %v, want 50", v)
	}

	if _, ok := s.Get("warp_drive"); ok {
		t.Error("unknown field should report ok=false")
	}
}

func TestSetConvertsJSONNumbers(t *testing.T) {
	t.Parallel()
	s := NewStateStore()

	// JSON-decoded numbers arrive as float64 even for int fields.
	if err := s.Set("volume", float64(70)); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if v, _ := s.Get("volume"); v.(int) != 70 {
		t.Errorf("volume = %v, want 70", v)
	}

	if err := s.Set("speed", 42); err != nil {
		t.Fatalf("set speed from int: %v", err)
	}
	if v, _ := s.Get("speed"); v.(float64) != 42 {
		t.Errorf("speed = %v, want 42", v)
	}

	if err := s.Set("driving_mode", 3); err == nil {
		t.Error("assigning a number to a string field should fail")
	}
	if err := s.Set("no_such_field", true); err == nil {
		t.Error("unknown field should fail")
	}
}

func TestSnapshotIsIsolatedFromStore(t *testing.T) {
	t.Parallel()
	s := NewStateStore()

	snap := s.Snapshot()
	snap.Temperature["driver"] = 99

	if v, _ := s.Get("temperature"); v.(map[string]float64)["driver"] != 22 {
		t.Error("mutating a snapshot must not touch the store")
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	t.Parallel()
	s := NewStateStore()

	s.Update(func(v *VehicleState) {
		v.EngineRunning = true
		v.Volume = 90
	})
	s.Reset()

	v := s.Snapshot()
	if v.EngineRunning || v.Volume != 50 {
		t.Errorf("reset left engine=%t volume=%d", v.EngineRunning, v.Volume)
	}
}

func TestConcurrentUpdatesAndReads(t *testing.T) {
	t.Parallel()
	s := NewStateStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(func(v *VehicleState) { v.Mileage++ })
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	if v := s.Snapshot().Mileage; v != 50000+800 {
		t.Errorf("mileage = %v, want %v", v, 50000+800)
	}
}
