// Package report computes post-hoc statistical summaries by reading back the
// CSV files written by the session logger. All analysis is a single pass over
// an already-written file; malformed rows are counted and skipped rather than
// aborting the pass.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/evgrid/chargemon/internal/errors"
	"github.com/evgrid/chargemon/internal/logging"
	"github.com/evgrid/chargemon/internal/telemetry"
)

// Options configures report generation.
type Options struct {
	// SketchAccuracy is the DDSketch relative accuracy for percentiles.
	// <= 0 disables percentile tracking.
	SketchAccuracy float64
}

// DefaultOptions returns default report options.
func DefaultOptions() Options {
	return Options{SketchAccuracy: 0.01}
}

// Report summarizes one processed session file.
type Report struct {
	FilePath     string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	TotalRecords int
	SkippedRows  int

	// Columns maps header names to their aggregation results. Flag columns
	// (Demand_Response, V2G) are not aggregated.
	Columns map[string]ColumnStats
}

// DurationMinutes returns the session duration in minutes, the unit the
// dashboard displays.
func (r *Report) DurationMinutes() float64 {
	return r.Duration.Minutes()
}

// flagColumns are processed columns that hold On/Off/Unknown values.
var flagColumns = map[string]bool{
	"Demand_Response": true,
	"V2G":             true,
}

// Generate reads a processed session CSV and returns its summary. An empty,
// missing, or malformed file yields a nil report and an error; it never
// panics into the caller.
func Generate(path string, opts Options) (*Report, error) {
	log := logging.Component("report")

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open session file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(errors.ErrEmptyFile, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if len(header) != len(telemetry.ProcessedHeader) || header[0] != "Timestamp" {
		return nil, errors.Wrapf(errors.ErrBadHeader, "%s", path)
	}

	aggs := make(map[string]*ColumnAggregate, len(header)-1)
	for _, name := range header[1:] {
		if !flagColumns[name] {
			aggs[name] = NewColumnAggregate(opts.SketchAccuracy)
		}
	}

	rpt := &Report{
		FilePath: path,
		Columns:  make(map[string]ColumnStats),
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rpt.SkippedRows++
			continue
		}
		if len(row) != len(header) {
			rpt.SkippedRows++
			continue
		}

		ts, err := time.Parse(telemetry.TimestampLayout, row[0])
		if err != nil {
			rpt.SkippedRows++
			continue
		}

		if rpt.TotalRecords == 0 {
			rpt.StartTime = ts
		}
		rpt.EndTime = ts
		rpt.TotalRecords++

		for i, name := range header[1:] {
			agg, ok := aggs[name]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				continue
			}
			agg.Add(v)
		}
	}

	if rpt.TotalRecords == 0 {
		if rpt.SkippedRows > 0 {
			return nil, errors.Wrapf(errors.ErrMalformedRow, "%s: %d unusable rows", path, rpt.SkippedRows)
		}
		return nil, errors.Wrapf(errors.ErrEmptyFile, "%s", path)
	}

	if rpt.TotalRecords >= 2 {
		rpt.Duration = rpt.EndTime.Sub(rpt.StartTime)
	}

	for name, agg := range aggs {
		rpt.Columns[name] = agg.Result()
	}

	if rpt.SkippedRows > 0 {
		log.Warn("skipped unusable rows", "file", path, "skipped", rpt.SkippedRows)
	}

	return rpt, nil
}

// GenerateLatest generates a report for the most recent session file in dir.
func GenerateLatest(dir string, opts Options) (*Report, error) {
	path, err := LatestSessionFile(dir)
	if err != nil {
		return nil, err
	}
	return Generate(path, opts)
}

// SessionFiles returns the session CSVs in dir, newest first.
func SessionFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "ev_data_*.csv"))
	if err != nil {
		return nil, errors.Wrap(err, "list session files")
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, errI := os.Stat(matches[i])
		fj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return matches[i] > matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})

	return matches, nil
}

// LatestSessionFile returns the most recently modified ev_data_*.csv in dir.
func LatestSessionFile(dir string) (string, error) {
	matches, err := SessionFiles(dir)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.Wrapf(errors.ErrNoSessions, "%s", dir)
	}
	return matches[0], nil
}

// RawReport summarizes one raw packet mirror file.
type RawReport struct {
	FilePath  string
	Packets   int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// PacketsPerSecond is the mean packet rate over the capture window.
	// Zero when fewer than two packets were captured.
	PacketsPerSecond float64

	// MeanInterarrival is the average gap between consecutive packets.
	MeanInterarrival time.Duration

	// Sources counts packets per source address.
	Sources map[string]int

	// IncompleteRows counts rows carrying empty value cells, i.e. packets
	// shorter than the protocol arity that were padded at log time.
	IncompleteRows int

	SkippedRows int
}

// AnalyzeRaw reads a raw packet CSV and returns link-level statistics. Like
// Generate it fails gracefully on empty or malformed input.
func AnalyzeRaw(path string) (*RawReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open raw file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(errors.ErrEmptyFile, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if len(header) != telemetry.RawColumns || header[0] != "Timestamp" {
		return nil, errors.Wrapf(errors.ErrBadHeader, "%s", path)
	}

	rpt := &RawReport{
		FilePath: path,
		Sources:  make(map[string]int),
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rpt.SkippedRows++
			continue
		}
		if len(row) != telemetry.RawColumns {
			rpt.SkippedRows++
			continue
		}

		ts, err := time.Parse(telemetry.TimestampLayout, row[0])
		if err != nil {
			rpt.SkippedRows++
			continue
		}

		if rpt.Packets == 0 {
			rpt.StartTime = ts
		}
		rpt.EndTime = ts
		rpt.Packets++
		rpt.Sources[row[1]]++

		for _, cell := range row[2:] {
			if strings.TrimSpace(cell) == "" {
				rpt.IncompleteRows++
				break
			}
		}
	}

	if rpt.Packets == 0 {
		if rpt.SkippedRows > 0 {
			return nil, errors.Wrapf(errors.ErrMalformedRow, "%s: %d unusable rows", path, rpt.SkippedRows)
		}
		return nil, errors.Wrapf(errors.ErrEmptyFile, "%s", path)
	}

	if rpt.Packets >= 2 {
		rpt.Duration = rpt.EndTime.Sub(rpt.StartTime)
		if rpt.Duration > 0 {
			rpt.PacketsPerSecond = float64(rpt.Packets-1) / rpt.Duration.Seconds()
			rpt.MeanInterarrival = rpt.Duration / time.Duration(rpt.Packets-1)
		}
	}

	return rpt, nil
}
