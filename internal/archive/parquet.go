// Package archive converts finished session CSV files into Parquet for
// compact long-term storage. The CSV stays the source of truth; the archive
// is a derived artifact.
package archive

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/evgrid/chargemon/internal/errors"
	"github.com/evgrid/chargemon/internal/logging"
	"github.com/evgrid/chargemon/internal/telemetry"
)

// Options configures the archive writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default archive options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// SessionRow is one processed record in Parquet format.
type SessionRow struct {
	TimestampMs    int64   `parquet:"timestamp_ms"`
	PVPower        float64 `parquet:"pv_power"`
	EVPower        float64 `parquet:"ev_power"`
	BatteryPower   float64 `parquet:"battery_power"`
	VDC            float64 `parquet:"v_dc"`
	EVVoltage      float64 `parquet:"ev_voltage"`
	EVSoC          float64 `parquet:"ev_soc"`
	DemandResponse string  `parquet:"demand_response"`
	V2G            string  `parquet:"v2g"`
	VgRMS          float64 `parquet:"vg_rms"`
	IgRMS          float64 `parquet:"ig_rms"`
	Frequency      float64 `parquet:"frequency"`
	THD            float64 `parquet:"thd"`
	PowerFactor    float64 `parquet:"power_factor"`
	ActivePower    float64 `parquet:"active_power"`
	ReactivePower  float64 `parquet:"reactive_power"`
}

// TimestampTime returns the row timestamp as a time.Time.
func (r *SessionRow) TimestampTime() time.Time {
	return time.UnixMilli(r.TimestampMs)
}

// Convert reads a processed session CSV and writes it as a Parquet file.
// Malformed CSV rows are skipped. Returns the number of rows archived.
func Convert(csvPath, parquetPath string, opts Options) (int64, error) {
	log := logging.Component("archive")

	in, err := os.Open(csvPath)
	if err != nil {
		return 0, errors.Wrap(err, "open session file")
	}
	defer in.Close()

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return 0, errors.Wrapf(errors.ErrEmptyFile, "%s", csvPath)
	}
	if err != nil {
		return 0, errors.Wrap(err, "read header")
	}
	if len(header) != len(telemetry.ProcessedHeader) || header[0] != "Timestamp" {
		return 0, errors.Wrapf(errors.ErrBadHeader, "%s", csvPath)
	}

	if err := os.MkdirAll(filepath.Dir(parquetPath), 0755); err != nil {
		return 0, errors.Wrap(err, "create archive directory")
	}

	out, err := os.Create(parquetPath)
	if err != nil {
		return 0, errors.Wrap(err, "create archive file")
	}

	writer := parquet.NewGenericWriter[SessionRow](out,
		parquet.Compression(getCompression(opts.Compression)))

	var written int64
	var skipped int

	batch := make([]SessionRow, 0, 1024)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := writer.Write(batch)
		if err != nil {
			return errors.Wrap(err, "write rows")
		}
		written += int64(n)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		row, ok := rowFromRecord(record)
		if !ok {
			skipped++
			continue
		}

		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				abort(out, parquetPath)
				return 0, err
			}
		}
	}

	if err := flush(); err != nil {
		abort(out, parquetPath)
		return 0, err
	}

	if written == 0 {
		abort(out, parquetPath)
		if skipped > 0 {
			return 0, errors.Wrapf(errors.ErrMalformedRow, "%s: %d unusable rows", csvPath, skipped)
		}
		return 0, errors.Wrapf(errors.ErrEmptyFile, "%s", csvPath)
	}

	if err := writer.Close(); err != nil {
		abort(out, parquetPath)
		return 0, errors.Wrap(err, "close writer")
	}
	if err := out.Close(); err != nil {
		return 0, errors.Wrap(err, "close archive file")
	}

	if skipped > 0 {
		log.Warn("skipped unusable rows", "file", csvPath, "skipped", skipped)
	}
	log.Info("session archived", "csv", csvPath, "parquet", parquetPath, "rows", written)

	return written, nil
}

// abort discards a partially written archive.
func abort(f *os.File, path string) {
	f.Close()
	os.Remove(path)
}

// rowFromRecord parses one CSV record into a SessionRow.
func rowFromRecord(record []string) (SessionRow, bool) {
	var row SessionRow

	if len(record) != len(telemetry.ProcessedHeader) {
		return row, false
	}

	ts, err := time.Parse(telemetry.TimestampLayout, record[0])
	if err != nil {
		return row, false
	}
	row.TimestampMs = ts.UnixMilli()

	floats := make([]float64, 0, 13)
	for _, i := range []int{1, 2, 3, 4, 5, 6, 9, 10, 11, 12, 13, 14, 15} {
		v, err := strconv.ParseFloat(record[i], 64)
		if err != nil {
			return row, false
		}
		floats = append(floats, v)
	}

	row.PVPower = floats[0]
	row.EVPower = floats[1]
	row.BatteryPower = floats[2]
	row.VDC = floats[3]
	row.EVVoltage = floats[4]
	row.EVSoC = floats[5]
	row.DemandResponse = record[7]
	row.V2G = record[8]
	row.VgRMS = floats[6]
	row.IgRMS = floats[7]
	row.Frequency = floats[8]
	row.THD = floats[9]
	row.PowerFactor = floats[10]
	row.ActivePower = floats[11]
	row.ReactivePower = floats[12]

	return row, true
}

// Reader reads session rows back from a Parquet archive.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[SessionRow]
	path   string
}

// NewReader opens a Parquet archive for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}

	reader := parquet.NewGenericReader[SessionRow](f)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads every row from the archive.
func (r *Reader) ReadAll() ([]SessionRow, error) {
	numRows := r.reader.NumRows()
	rows := make([]SessionRow, numRows)

	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read rows")
	}

	return rows[:n], nil
}

// NumRows returns the total number of rows in the archive.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the archive file path.
func (r *Reader) Path() string {
	return r.path
}

// DefaultArchivePath derives the Parquet path for a session CSV:
// same directory, .parquet extension.
func DefaultArchivePath(csvPath string) string {
	ext := filepath.Ext(csvPath)
	return csvPath[:len(csvPath)-len(ext)] + ".parquet"
}
