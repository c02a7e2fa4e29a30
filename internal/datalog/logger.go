// Package datalog implements the session CSV logger: a start/stop lifecycle
// around two append-only sinks, one processed application-level file and one
// raw packet mirror for protocol debugging.
package datalog

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evgrid/chargemon/internal/errors"
	"github.com/evgrid/chargemon/internal/logging"
	"github.com/evgrid/chargemon/internal/telemetry"
)

// Config configures the session logger.
type Config struct {
	// Dir is the directory session files are written to.
	Dir string

	// FlushEvery is the number of appended rows between flushes.
	FlushEvery int
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() Config {
	return Config{
		Dir:        "logs",
		FlushEvery: 10,
	}
}

// Session identifies one logging session's files.
type Session struct {
	// ProcessedPath is the application-level CSV file.
	ProcessedPath string

	// RawPath is the raw packet mirror CSV file.
	RawPath string

	// StartedAt is when the session was opened.
	StartedAt time.Time
}

// Stats holds logger counters.
type Stats struct {
	RowsWritten  int64
	RawWritten   int64
	RawPadded    int64
	RawTruncated int64
	Flushes      int64
	Errors       int64
}

// Flag is a tri-state boolean column value.
type Flag string

const (
	FlagOn      Flag = "On"
	FlagOff     Flag = "Off"
	FlagUnknown Flag = "Unknown"
)

// FlagFromBool converts a bool to its column representation.
func FlagFromBool(b bool) Flag {
	if b {
		return FlagOn
	}
	return FlagOff
}

// Record is one processed row.
type Record struct {
	Timestamp time.Time

	// Charging settings
	PVPower      float64
	EVPower      float64
	BatteryPower float64
	VDC          float64

	// EV charging settings
	EVVoltage      float64
	EVSoC          float64
	DemandResponse Flag
	V2G            Flag

	// Grid settings
	VgRMS       float64
	IgRMS       float64
	Frequency   float64
	THD         float64
	PowerFactor float64

	// Gauges
	ActivePower   float64
	ReactivePower float64
}

// FromReading maps a parsed hardware reading to a Record. The hardware link
// carries no demand-response indication, so the flag is Unknown; V2G is
// derived from the sign of EV power (positive means discharging to grid).
func FromReading(r telemetry.Reading, ts time.Time) Record {
	v2g := FlagOff
	if r.EVPower > 0 {
		v2g = FlagOn
	}

	return Record{
		Timestamp:      ts,
		PVPower:        r.PVPower,
		EVPower:        r.EVPower,
		BatteryPower:   r.BatteryPower,
		VDC:            r.DCLink,
		EVVoltage:      r.EVVoltage,
		EVSoC:          r.EVSoC,
		DemandResponse: FlagUnknown,
		V2G:            v2g,
		VgRMS:          r.GridVoltage,
		IgRMS:          r.GridCurrent,
		Frequency:      r.Frequency,
		THD:            r.THD,
		PowerFactor:    r.PowerFactor,
		ActivePower:    r.GridPower,
		ReactivePower:  r.ReactivePower,
	}
}

// Logger writes session telemetry to paired CSV files.
type Logger struct {
	mu sync.Mutex

	cfg Config
	log *slog.Logger

	active  bool
	session Session

	procFile *os.File
	procCSV  *csv.Writer
	rawFile  *os.File
	rawCSV   *csv.Writer

	rowCount int
	rawCount int

	stats Stats

	// now is a clock hook for tests.
	now func() time.Time
}

// New creates a logger writing into cfg.Dir. The directory is created if
// missing; if that fails the current directory is used instead, matching the
// monitor's behavior on a read-only media boot.
func New(cfg Config) *Logger {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = DefaultConfig().FlushEvery
	}

	log := logging.Component("datalog")

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		log.Warn("create log directory failed, falling back to cwd", "dir", cfg.Dir, "error", err)
		cfg.Dir = "."
	}

	return &Logger{
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// Dir returns the log directory.
func (l *Logger) Dir() string {
	return l.cfg.Dir
}

// Start opens a new session: a timestamp-named processed CSV and its raw
// mirror under the debug subdirectory, each initialized with its header row
// and flushed so both files exist on disk immediately.
//
// Starting while a session is active is a no-op returning the existing
// session.
func (l *Logger) Start() (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		l.log.Info("logging already active", "file", l.session.ProcessedPath)
		return l.session, nil
	}

	started := l.now()
	stamp := started.Format("20060102_150405")

	debugDir := filepath.Join(l.cfg.Dir, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		return Session{}, errors.Wrap(err, "create debug directory")
	}

	session := Session{
		ProcessedPath: filepath.Join(l.cfg.Dir, "ev_data_"+stamp+".csv"),
		RawPath:       filepath.Join(debugDir, "ev_raw_"+stamp+".csv"),
		StartedAt:     started,
	}

	procFile, err := os.Create(session.ProcessedPath)
	if err != nil {
		return Session{}, errors.Wrap(err, "create session file")
	}

	rawFile, err := os.Create(session.RawPath)
	if err != nil {
		procFile.Close()
		os.Remove(session.ProcessedPath)
		return Session{}, errors.Wrap(err, "create raw session file")
	}

	procCSV := csv.NewWriter(procFile)
	rawCSV := csv.NewWriter(rawFile)

	procCSV.Write(telemetry.ProcessedHeader)
	procCSV.Flush()
	rawCSV.Write(telemetry.RawHeader)
	rawCSV.Flush()

	if err := firstErr(procCSV.Error(), rawCSV.Error()); err != nil {
		procFile.Close()
		rawFile.Close()
		os.Remove(session.ProcessedPath)
		os.Remove(session.RawPath)
		return Session{}, errors.Wrap(err, "write headers")
	}

	l.procFile = procFile
	l.procCSV = procCSV
	l.rawFile = rawFile
	l.rawCSV = rawCSV
	l.session = session
	l.active = true
	l.rowCount = 0
	l.rawCount = 0

	l.log.Info("logging started", "file", session.ProcessedPath, "raw", session.RawPath)
	return session, nil
}

// LogRecord appends one processed row. Returns ErrNotLogging when no session
// is active.
func (l *Logger) LogRecord(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return errors.ErrNotLogging
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	row := []string{
		ts.Format(telemetry.TimestampLayout),
		formatFloat(rec.PVPower),
		formatFloat(rec.EVPower),
		formatFloat(rec.BatteryPower),
		formatFloat(rec.VDC),
		formatFloat(rec.EVVoltage),
		formatFloat(rec.EVSoC),
		string(flagOrUnknown(rec.DemandResponse)),
		string(flagOrUnknown(rec.V2G)),
		formatFloat(rec.VgRMS),
		formatFloat(rec.IgRMS),
		formatFloat(rec.Frequency),
		formatFloat(rec.THD),
		formatFloat(rec.PowerFactor),
		formatFloat(rec.ActivePower),
		formatFloat(rec.ReactivePower),
	}

	if err := l.procCSV.Write(row); err != nil {
		l.stats.Errors++
		return errors.Wrap(err, "write row")
	}

	if l.rowCount%l.cfg.FlushEvery == 0 {
		l.procCSV.Flush()
		l.stats.Flushes++
		if err := l.procCSV.Error(); err != nil {
			l.stats.Errors++
			return errors.Wrap(err, "flush")
		}
	}

	l.rowCount++
	l.stats.RowsWritten++
	return nil
}

// LogReading maps a hardware reading to a Record and appends it.
func (l *Logger) LogReading(r telemetry.Reading, ts time.Time) error {
	return l.LogRecord(FromReading(r, ts))
}

// LogRawPacket appends the packet's delimited values to the raw mirror,
// prefixed with the receive timestamp and source address. Rows are padded or
// truncated to the fixed raw column count so the file stays rectangular no
// matter what the hardware sends.
func (l *Logger) LogRawPacket(line, source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return errors.ErrNotLogging
	}

	values := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}

	switch {
	case len(values) < telemetry.PacketFields:
		for len(values) < telemetry.PacketFields {
			values = append(values, "")
		}
		l.stats.RawPadded++
	case len(values) > telemetry.PacketFields:
		values = values[:telemetry.PacketFields]
		l.stats.RawTruncated++
	}

	row := make([]string, 0, telemetry.RawColumns)
	row = append(row, l.now().Format(telemetry.TimestampLayout), source)
	row = append(row, values...)

	if err := l.rawCSV.Write(row); err != nil {
		l.stats.Errors++
		return errors.Wrap(err, "write raw row")
	}

	if l.rawCount%l.cfg.FlushEvery == 0 {
		l.rawCSV.Flush()
		l.stats.Flushes++
		if err := l.rawCSV.Error(); err != nil {
			l.stats.Errors++
			return errors.Wrap(err, "flush raw")
		}
	}

	l.rawCount++
	l.stats.RawWritten++
	return nil
}

// Stop flushes and closes both files and resets session state. A second Stop
// reports that there is nothing to stop.
func (l *Logger) Stop() (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		l.log.Info("no active logging to stop")
		return Session{}, errors.ErrNotLogging
	}

	session := l.session

	l.procCSV.Flush()
	l.rawCSV.Flush()
	if err := firstErr(l.procCSV.Error(), l.rawCSV.Error()); err != nil {
		l.stats.Errors++
		l.log.Warn("flush on stop", "error", err)
	}

	if err := l.procFile.Close(); err != nil {
		l.log.Warn("close session file", "error", err)
	}
	if err := l.rawFile.Close(); err != nil {
		l.log.Warn("close raw session file", "error", err)
	}

	l.procFile = nil
	l.procCSV = nil
	l.rawFile = nil
	l.rawCSV = nil
	l.session = Session{}
	l.active = false
	l.rowCount = 0
	l.rawCount = 0

	l.log.Info("logging stopped", "file", session.ProcessedPath, "rows", l.stats.RowsWritten)
	return session, nil
}

// Active reports whether a session is open.
func (l *Logger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Session returns the current session. Zero value when inactive.
func (l *Logger) Session() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Stats returns logger counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flagOrUnknown(f Flag) Flag {
	switch f {
	case FlagOn, FlagOff, FlagUnknown:
		return f
	default:
		return FlagUnknown
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
