package telemetry

import (
	"strings"
	"testing"

	"github.com/evgrid/chargemon/internal/errors"
)

const samplePacket = "220.50,10.20,400.10,350.00,380.30,15.10,8.05,3061.42,-5285.00,512.00,1711.58,562.55,0.95,50.02,3.10,2,2,2,0,60.50,45.20"

func TestParsePacket(t *testing.T) {
	r, err := ParsePacket(samplePacket)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}

	if r.GridVoltage != 220.50 {
		t.Errorf("expected GridVoltage=220.50, got %f", r.GridVoltage)
	}
	if r.DCLink != 400.10 {
		t.Errorf("expected DCLink=400.10, got %f", r.DCLink)
	}
	if r.EVPower != -5285.00 {
		t.Errorf("expected EVPower=-5285, got %f", r.EVPower)
	}
	if r.PVStatus != StatusActive {
		t.Errorf("expected PVStatus=active, got %s", r.PVStatus)
	}
	if r.BatteryStatus != StatusOff {
		t.Errorf("expected BatteryStatus=off, got %s", r.BatteryStatus)
	}
	if r.EVSoC != 45.20 {
		t.Errorf("expected EVSoC=45.20, got %f", r.EVSoC)
	}
}

func TestParsePacket_TrimsWhitespace(t *testing.T) {
	if _, err := ParsePacket("  " + samplePacket + "\n"); err != nil {
		t.Fatalf("ParsePacket with surrounding whitespace: %v", err)
	}
}

func TestParsePacket_Arity(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"short", "1,2,3"},
		{"long", samplePacket + ",99.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.line)
			if !errors.Is(err, errors.ErrPacketArity) {
				t.Errorf("expected ErrPacketArity, got %v", err)
			}
		})
	}
}

func TestParsePacket_BadValue(t *testing.T) {
	line := strings.Replace(samplePacket, "400.10", "boom", 1)
	_, err := ParsePacket(line)
	if !errors.Is(err, errors.ErrBadValue) {
		t.Errorf("expected ErrBadValue, got %v", err)
	}
}

func TestParsePacket_StatusClamped(t *testing.T) {
	// Status fields 7 and -2 are outside the protocol range and must clamp.
	line := strings.Replace(samplePacket, "2,2,2,0", "7,-2,2,0", 1)
	r, err := ParsePacket(line)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if r.PVStatus != StatusFault {
		t.Errorf("expected clamp to fault, got %s", r.PVStatus)
	}
	if r.EVStatus != StatusOff {
		t.Errorf("expected clamp to off, got %s", r.EVStatus)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusOff, "off"},
		{StatusStandby, "standby"},
		{StatusActive, "active"},
		{StatusFault, "fault"},
		{Status(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestHeaderArity(t *testing.T) {
	if len(ProcessedHeader) != 16 {
		t.Errorf("processed header has %d columns, want 16", len(ProcessedHeader))
	}
	if RawColumns != PacketFields+2 {
		t.Errorf("raw header has %d columns, want %d", RawColumns, PacketFields+2)
	}
}
