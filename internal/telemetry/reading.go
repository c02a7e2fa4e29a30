// Package telemetry defines the textual wire format of the charging station
// hardware link and the parsed reading type shared by the logger and the
// report analyzers.
//
// The hardware streams one comma-delimited line per UDP datagram:
//
//	Vd,Id,Vdc,Vev,Vpv,Iev,Ipv,Ppv,Pev,Pbattery,Pg,Qg,PF,Fg,THD,
//	s1,s2,s3,s4,SoC_battery,SoC_EV
//
// 15 measurement values, 4 status indicators, 2 state-of-charge values.
package telemetry

import (
	"strconv"
	"strings"

	"github.com/evgrid/chargemon/internal/errors"
)

// PacketFields is the fixed number of comma-delimited fields in a hardware
// data packet.
const PacketFields = 21

// Status is a hardware subsystem status indicator.
type Status int

const (
	StatusOff Status = iota
	StatusStandby
	StatusActive
	StatusFault
)

// String returns a human-readable representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusOff:
		return "off"
	case StatusStandby:
		return "standby"
	case StatusActive:
		return "active"
	case StatusFault:
		return "fault"
	default:
		return "unknown"
	}
}

// clampStatus forces a raw status value into the valid 0..3 range.
func clampStatus(v int) Status {
	if v < 0 {
		return StatusOff
	}
	if v > 3 {
		return StatusFault
	}
	return Status(v)
}

// Reading is a single parsed hardware data packet.
type Reading struct {
	// Grid parameters
	GridVoltage float64 // Vd, RMS (V)
	GridCurrent float64 // Id, RMS (A)
	DCLink      float64 // Vdc (V)

	// EV parameters
	EVVoltage float64 // Vev (V)
	EVCurrent float64 // Iev (A)
	EVPower   float64 // Pev (W), negative while charging

	// PV parameters
	PVVoltage float64 // Vpv (V)
	PVCurrent float64 // Ipv (A)
	PVPower   float64 // Ppv (W)

	// Power flows
	BatteryPower  float64 // Pbattery (W)
	GridPower     float64 // Pg (W)
	ReactivePower float64 // Qg (VAR)

	// Power quality
	PowerFactor float64 // PF (0-1)
	Frequency   float64 // Fg (Hz)
	THD         float64 // (%)

	// Subsystem status indicators
	PVStatus      Status
	EVStatus      Status
	GridStatus    Status
	BatteryStatus Status

	// State of charge
	BatterySoC float64 // (%)
	EVSoC      float64 // (%)
}

// ParsePacket parses one hardware data line into a Reading.
// The packet must carry exactly PacketFields comma-delimited values.
func ParsePacket(line string) (Reading, error) {
	var r Reading

	values := strings.Split(strings.TrimSpace(line), ",")
	if len(values) != PacketFields {
		return r, errors.Wrapf(errors.ErrPacketArity, "got %d fields, want %d", len(values), PacketFields)
	}

	floats := make([]float64, PacketFields)
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return r, errors.Wrapf(errors.ErrBadValue, "field %d %q", i, v)
		}
		floats[i] = f
	}

	r = Reading{
		GridVoltage:   floats[0],
		GridCurrent:   floats[1],
		DCLink:        floats[2],
		EVVoltage:     floats[3],
		PVVoltage:     floats[4],
		EVCurrent:     floats[5],
		PVCurrent:     floats[6],
		PVPower:       floats[7],
		EVPower:       floats[8],
		BatteryPower:  floats[9],
		GridPower:     floats[10],
		ReactivePower: floats[11],
		PowerFactor:   floats[12],
		Frequency:     floats[13],
		THD:           floats[14],
		PVStatus:      clampStatus(int(floats[15])),
		EVStatus:      clampStatus(int(floats[16])),
		GridStatus:    clampStatus(int(floats[17])),
		BatteryStatus: clampStatus(int(floats[18])),
		BatterySoC:    floats[19],
		EVSoC:         floats[20],
	}

	return r, nil
}

// RawHeader is the header of the raw packet CSV: receive timestamp, source
// address, then the packet fields verbatim.
var RawHeader = []string{
	"Timestamp", "Source",
	"Vd", "Id", "Vdc", "Vev", "Vpv", "Iev", "Ipv",
	"Ppv", "Pev", "Pbattery", "Pg", "Qg", "PF", "Fg", "THD",
	"S1", "S2", "S3", "S4", "SoC_Battery", "SoC_EV",
}

// RawColumns is the total column count of a raw CSV row.
var RawColumns = len(RawHeader)

// ProcessedHeader is the header of the processed session CSV.
var ProcessedHeader = []string{
	"Timestamp",
	"PV_Power", "EV_Power", "Battery_Power", "V_DC",
	"EV_Voltage", "EV_SoC", "Demand_Response", "V2G",
	"Vg_RMS", "Ig_RMS", "Frequency", "THD", "Power_Factor",
	"Active_Power", "Reactive_Power",
}

// TimestampLayout is the row timestamp format, millisecond resolution.
const TimestampLayout = "2006-01-02 15:04:05.000"
