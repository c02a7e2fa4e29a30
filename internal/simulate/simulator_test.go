package simulate

import (
	"testing"

	"github.com/evgrid/chargemon/internal/telemetry"
)

func TestNextPacket_ParsesAsHardwarePacket(t *testing.T) {
	sim := New(Config{Seed: 1})

	for i := 0; i < 100; i++ {
		line := sim.NextPacket()
		r, err := telemetry.ParsePacket(line)
		if err != nil {
			t.Fatalf("packet %d unparseable: %v\n%s", i, err, line)
		}
		if r.BatterySoC < 0 || r.BatterySoC > 100 {
			t.Errorf("packet %d battery SoC out of range: %f", i, r.BatterySoC)
		}
		if r.EVSoC < 0 || r.EVSoC > 100 {
			t.Errorf("packet %d EV SoC out of range: %f", i, r.EVSoC)
		}
		if r.PowerFactor < 0.8 || r.PowerFactor > 1.0 {
			t.Errorf("packet %d power factor out of range: %f", i, r.PowerFactor)
		}
	}
}

func TestNext_SoCIntegration(t *testing.T) {
	sim := New(Config{Seed: 7, FaultChance: 0})

	first, _ := sim.Next()
	var last telemetry.Reading
	for i := 0; i < 500; i++ {
		last, _ = sim.Next()
	}

	// EV power stays negative (charging) under the default bases, so the EV
	// SoC must rise over time.
	if last.EVSoC <= first.EVSoC {
		t.Errorf("EV SoC did not rise: %f -> %f", first.EVSoC, last.EVSoC)
	}
}

func TestNext_Deterministic(t *testing.T) {
	a := New(Config{Seed: 42})
	b := New(Config{Seed: 42})

	for i := 0; i < 10; i++ {
		if pa, pb := a.NextPacket(), b.NextPacket(); pa != pb {
			t.Fatalf("packet %d diverged:\n%s\n%s", i, pa, pb)
		}
	}
}
