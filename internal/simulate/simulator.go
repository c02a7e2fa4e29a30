// Package simulate generates hardware-format telemetry packets for testing
// the monitor without the charging station hardware. Values random-walk
// around realistic base points, state of charge integrates the power flow,
// and status indicators follow the power levels with a small fault chance.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/evgrid/chargemon/internal/telemetry"
)

// Config configures the simulator.
type Config struct {
	// Seed seeds the random source. 0 uses the current time.
	Seed int64

	// Interval is the packet interval, used as the SoC integration step.
	Interval time.Duration

	// FaultChance is the per-packet probability of a subsystem fault.
	FaultChance float64
}

// DefaultConfig returns default simulator configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    100 * time.Millisecond,
		FaultChance: 0.005,
	}
}

// Simulator produces successive hardware packets.
type Simulator struct {
	rng      *rand.Rand
	interval time.Duration
	fault    float64
	step     int

	// Base electrical values, nudged by received parameter updates on the
	// real hardware; fixed here.
	vd       float64 // Grid voltage (V)
	id       float64 // Grid current (A)
	vdc      float64 // DC link voltage (V)
	vev      float64 // EV voltage (V)
	vpv      float64 // PV voltage (V)
	iev      float64 // EV current (A)
	ipv      float64 // PV current (A)
	pbattery float64 // Battery power (W)
	pf       float64 // Power factor
	freq     float64 // Grid frequency (Hz)

	socBattery float64
	socEV      float64
}

// New creates a simulator.
func New(cfg Config) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}

	return &Simulator{
		rng:        rand.New(rand.NewSource(seed)),
		interval:   cfg.Interval,
		fault:      cfg.FaultChance,
		vd:         220.0,
		id:         10.0,
		vdc:        400.0,
		vev:        350.0,
		vpv:        380.0,
		iev:        15.0,
		ipv:        8.0,
		pbattery:   500.0,
		pf:         0.95,
		freq:       50.0,
		socBattery: 60.0,
		socEV:      45.0,
	}
}

// uniform returns a random value in [-r, r].
func (s *Simulator) uniform(r float64) float64 {
	return (s.rng.Float64()*2 - 1) * r
}

// Next produces the next packet as the reading and its wire line.
func (s *Simulator) Next() (telemetry.Reading, string) {
	s.step++

	vd := s.vd + s.uniform(5)
	id := s.id + s.uniform(1)
	vdc := s.vdc + s.uniform(3)
	vev := s.vev + s.uniform(2)
	vpv := s.vpv + s.uniform(3)
	iev := s.iev + s.uniform(0.5)
	ipv := s.ipv + s.uniform(0.4)

	ppv := vpv * ipv
	pev := vev * iev * -1 // negative while charging

	pf := s.pf + s.uniform(0.05)
	pf = math.Min(1.0, math.Max(0.8, pf))

	pbattery := s.pbattery + s.uniform(100)

	// Slow oscillation to mimic changing irradiance and charge demand.
	osc := math.Sin(float64(s.step)*0.1*s.interval.Seconds()) * 50
	ppv += osc
	pev -= osc

	// Grid power balances the system.
	pg := -1*(ppv+pev+pbattery) + s.uniform(50)

	theta := math.Acos(pf)
	qg := pg * math.Tan(theta)

	fg := s.freq + s.uniform(0.1)
	thd := 3.0 + s.uniform(0.5)

	status := func(active bool) telemetry.Status {
		if active {
			return telemetry.StatusActive
		}
		return telemetry.StatusOff
	}

	s1 := status(ppv > 100)
	s2 := status(math.Abs(pev) > 100)
	s3 := telemetry.StatusActive
	s4 := status(math.Abs(pbattery) > 100)

	if s.rng.Float64() < s.fault {
		switch s.rng.Intn(4) {
		case 0:
			s1 = telemetry.StatusFault
		case 1:
			s2 = telemetry.StatusFault
		case 2:
			s3 = telemetry.StatusFault
		default:
			s4 = telemetry.StatusFault
		}
	}

	// Integrate SoC from power flow.
	dt := s.interval.Seconds()
	if pev < 0 {
		s.socEV += (math.Abs(pev) / 10000) * dt
	} else {
		s.socEV -= (pev / 20000) * dt
	}
	if pbattery < 0 {
		s.socBattery -= (math.Abs(pbattery) / 5000) * dt
	} else {
		s.socBattery += (pbattery / 8000) * dt
	}
	s.socBattery = math.Max(0, math.Min(100, s.socBattery))
	s.socEV = math.Max(0, math.Min(100, s.socEV))

	line := fmt.Sprintf(
		"%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%d,%d,%d,%d,%.2f,%.2f",
		vd, id, vdc, vev, vpv, iev, ipv, ppv, pev,
		pbattery, pg, qg, pf, fg, thd,
		int(s1), int(s2), int(s3), int(s4), s.socBattery, s.socEV)

	reading := telemetry.Reading{
		GridVoltage:   vd,
		GridCurrent:   id,
		DCLink:        vdc,
		EVVoltage:     vev,
		EVCurrent:     iev,
		EVPower:       pev,
		PVVoltage:     vpv,
		PVCurrent:     ipv,
		PVPower:       ppv,
		BatteryPower:  pbattery,
		GridPower:     pg,
		ReactivePower: qg,
		PowerFactor:   pf,
		Frequency:     fg,
		THD:           thd,
		PVStatus:      s1,
		EVStatus:      s2,
		GridStatus:    s3,
		BatteryStatus: s4,
		BatterySoC:    s.socBattery,
		EVSoC:         s.socEV,
	}

	return reading, line
}

// NextPacket produces the next packet wire line only.
func (s *Simulator) NextPacket() string {
	_, line := s.Next()
	return line
}
