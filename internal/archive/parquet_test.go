package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evgrid/chargemon/internal/errors"
)

const header = "Timestamp,PV_Power,EV_Power,Battery_Power,V_DC," +
	"EV_Voltage,EV_SoC,Demand_Response,V2G," +
	"Vg_RMS,Ig_RMS,Frequency,THD,Power_Factor,Active_Power,Reactive_Power"

func writeSession(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "ev_data_20250314_090000.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestConvert_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := header + "\n" +
		"2025-03-14 09:00:00.000,3000,-5200,500,400.1,350,45.2,Unknown,Off,220.5,10.2,50.02,3.1,0.95,1711.6,562.5\n" +
		"2025-03-14 09:01:00.000,3100,-5000,520,400.3,350,45.4,Unknown,On,220.1,10.1,50.01,3.0,0.95,1700.0,560.0\n"
	csvPath := writeSession(t, dir, content)
	pqPath := DefaultArchivePath(csvPath)

	n, err := Convert(csvPath, pqPath, DefaultOptions())
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if n != 2 {
		t.Errorf("Convert wrote %d rows, want 2", n)
	}

	r, err := NewReader(pqPath)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if r.NumRows() != 2 {
		t.Errorf("NumRows = %d, want 2", r.NumRows())
	}

	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ReadAll returned %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first.PVPower != 3000 {
		t.Errorf("PVPower = %f, want 3000", first.PVPower)
	}
	if first.EVPower != -5200 {
		t.Errorf("EVPower = %f, want -5200", first.EVPower)
	}
	if first.V2G != "Off" {
		t.Errorf("V2G = %q, want Off", first.V2G)
	}
	if got := first.TimestampTime().UTC().Format("2006-01-02 15:04:05"); got != "2025-03-14 09:00:00" {
		t.Errorf("timestamp = %q", got)
	}
	if rows[1].V2G != "On" {
		t.Errorf("second row V2G = %q, want On", rows[1].V2G)
	}
}

func TestConvert_SkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	content := header + "\n" +
		"garbage\n" +
		"2025-03-14 09:00:00.000,3000,-5200,500,400.1,350,45.2,Unknown,Off,220.5,10.2,50.02,3.1,0.95,1711.6,562.5\n"
	csvPath := writeSession(t, dir, content)
	pqPath := DefaultArchivePath(csvPath)

	n, err := Convert(csvPath, pqPath, DefaultOptions())
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if n != 1 {
		t.Errorf("Convert wrote %d rows, want 1", n)
	}
}

func TestConvert_FailsGracefully(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"header only", header + "\n", errors.ErrEmptyFile},
		{"wrong header", "a,b,c\n", errors.ErrBadHeader},
		{"all malformed", header + "\nnope,1,2\n", errors.ErrMalformedRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csvPath := filepath.Join(dir, tt.name+".csv")
			if err := os.WriteFile(csvPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
			pqPath := DefaultArchivePath(csvPath)

			if _, err := Convert(csvPath, pqPath, DefaultOptions()); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if _, err := os.Stat(pqPath); !os.IsNotExist(err) {
				t.Error("partial archive left behind")
			}
		})
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"bogus", CompressionZstd},
	}

	for _, tt := range tests {
		if got := ParseCompressionType(tt.in); got != tt.want {
			t.Errorf("ParseCompressionType(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDefaultArchivePath(t *testing.T) {
	got := DefaultArchivePath("logs/ev_data_20250314_090000.csv")
	want := "logs/ev_data_20250314_090000.parquet"
	if got != want {
		t.Errorf("DefaultArchivePath = %q, want %q", got, want)
	}
}
