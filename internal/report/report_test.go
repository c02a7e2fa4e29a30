package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evgrid/chargemon/internal/errors"
)

const processedHeader = "Timestamp,PV_Power,EV_Power,Battery_Power,V_DC," +
	"EV_Voltage,EV_SoC,Demand_Response,V2G," +
	"Vg_RMS,Ig_RMS,Frequency,THD,Power_Factor,Active_Power,Reactive_Power"

const rawHeader = "Timestamp,Source,Vd,Id,Vdc,Vev,Vpv,Iev,Ipv," +
	"Ppv,Pev,Pbattery,Pg,Qg,PF,Fg,THD,S1,S2,S3,S4,SoC_Battery,SoC_EV"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestGenerate_Summary(t *testing.T) {
	dir := t.TempDir()
	content := processedHeader + "\n" +
		"2025-03-14 09:00:00.000,3000,-5200,500,400.1,350,45.2,Unknown,Off,220.5,10.2,50.02,3.1,0.95,1711.6,562.5\n" +
		"2025-03-14 09:01:00.000,3100,-5000,520,400.3,350,45.4,Unknown,Off,220.1,10.1,50.01,3.0,0.95,1700.0,560.0\n" +
		"2025-03-14 09:03:00.000,2900,-4800,480,399.8,350,45.6,Unknown,On,220.8,10.3,49.99,3.2,0.94,1690.0,558.0\n"
	path := writeFile(t, dir, "ev_data_20250314_090000.csv", content)

	rpt, err := Generate(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if rpt.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", rpt.TotalRecords)
	}
	if rpt.Duration != 3*time.Minute {
		t.Errorf("Duration = %s, want 3m", rpt.Duration)
	}
	if rpt.DurationMinutes() != 3.0 {
		t.Errorf("DurationMinutes = %f, want 3", rpt.DurationMinutes())
	}

	pv, ok := rpt.Columns["PV_Power"]
	if !ok {
		t.Fatal("missing PV_Power stats")
	}
	if pv.Min != 2900 || pv.Max != 3100 {
		t.Errorf("PV_Power min/max = %f/%f, want 2900/3100", pv.Min, pv.Max)
	}
	if math.Abs(pv.Mean-3000) > 0.001 {
		t.Errorf("PV_Power mean = %f, want 3000", pv.Mean)
	}
	if pv.P50 == nil {
		t.Error("PV_Power percentiles missing")
	}

	if _, ok := rpt.Columns["Demand_Response"]; ok {
		t.Error("flag column must not be aggregated")
	}
	if _, ok := rpt.Columns["V2G"]; ok {
		t.Error("flag column must not be aggregated")
	}

	vdc := rpt.Columns["V_DC"]
	if vdc.Max != 400.3 {
		t.Errorf("V_DC max = %f, want 400.3", vdc.Max)
	}
}

func TestGenerate_SingleRowHasZeroDuration(t *testing.T) {
	dir := t.TempDir()
	content := processedHeader + "\n" +
		"2025-03-14 09:00:00.000,3000,-5200,500,400.1,350,45.2,Unknown,Off,220.5,10.2,50.02,3.1,0.95,1711.6,562.5\n"
	path := writeFile(t, dir, "ev_data_20250314_090000.csv", content)

	rpt, err := Generate(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rpt.Duration != 0 {
		t.Errorf("Duration = %s, want 0 for single row", rpt.Duration)
	}
}

func TestGenerate_FailsGracefully(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"header only", processedHeader + "\n", errors.ErrEmptyFile},
		{"zero bytes", "", errors.ErrEmptyFile},
		{"wrong header", "a,b,c\n1,2,3\n", errors.ErrBadHeader},
		{"all rows malformed", processedHeader + "\nnot-a-timestamp,1,2\n", errors.ErrMalformedRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".csv", tt.content)
			rpt, err := Generate(path, DefaultOptions())
			if rpt != nil {
				t.Error("expected nil report")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGenerate_MissingFile(t *testing.T) {
	rpt, err := Generate(filepath.Join(t.TempDir(), "nope.csv"), DefaultOptions())
	if rpt != nil || err == nil {
		t.Error("expected nil report and error for missing file")
	}
}

func TestGenerate_SkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	content := processedHeader + "\n" +
		"2025-03-14 09:00:00.000,3000,-5200,500,400.1,350,45.2,Unknown,Off,220.5,10.2,50.02,3.1,0.95,1711.6,562.5\n" +
		"garbage row\n" +
		"2025-03-14 09:02:00.000,3100,-5000,520,400.3,350,45.4,Unknown,Off,220.1,10.1,50.01,3.0,0.95,1700.0,560.0\n"
	path := writeFile(t, dir, "ev_data_20250314_090000.csv", content)

	rpt, err := Generate(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rpt.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", rpt.TotalRecords)
	}
	if rpt.SkippedRows != 1 {
		t.Errorf("SkippedRows = %d, want 1", rpt.SkippedRows)
	}
	if rpt.Duration != 2*time.Minute {
		t.Errorf("Duration = %s, want 2m", rpt.Duration)
	}
}

func TestLatestSessionFile(t *testing.T) {
	dir := t.TempDir()

	if _, err := LatestSessionFile(dir); !errors.Is(err, errors.ErrNoSessions) {
		t.Errorf("expected ErrNoSessions, got %v", err)
	}

	older := writeFile(t, dir, "ev_data_20250314_090000.csv", processedHeader+"\n")
	newer := writeFile(t, dir, "ev_data_20250314_100000.csv", processedHeader+"\n")

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got, err := LatestSessionFile(dir)
	if err != nil {
		t.Fatalf("LatestSessionFile: %v", err)
	}
	if got != newer {
		t.Errorf("got %s, want %s", got, newer)
	}
}

func TestAnalyzeRaw(t *testing.T) {
	dir := t.TempDir()
	values := "220,10,400,350,380,15,8,3040,-5250,500,1710,560,0.95,50,3,2,2,2,0,60,45"
	padded := "220,10,400" + strings.Repeat(",", 18)
	content := rawHeader + "\n" +
		"2025-03-14 09:00:00.000,192.168.1.50:8888," + values + "\n" +
		"2025-03-14 09:00:00.500,192.168.1.50:8888," + padded + "\n" +
		"2025-03-14 09:00:01.000,192.168.1.51:8888," + values + "\n"
	path := writeFile(t, dir, "ev_raw_20250314_090000.csv", content)

	rpt, err := AnalyzeRaw(path)
	if err != nil {
		t.Fatalf("AnalyzeRaw: %v", err)
	}

	if rpt.Packets != 3 {
		t.Errorf("Packets = %d, want 3", rpt.Packets)
	}
	if rpt.Duration != time.Second {
		t.Errorf("Duration = %s, want 1s", rpt.Duration)
	}
	if math.Abs(rpt.PacketsPerSecond-2.0) > 0.001 {
		t.Errorf("PacketsPerSecond = %f, want 2", rpt.PacketsPerSecond)
	}
	if rpt.MeanInterarrival != 500*time.Millisecond {
		t.Errorf("MeanInterarrival = %s, want 500ms", rpt.MeanInterarrival)
	}
	if rpt.Sources["192.168.1.50:8888"] != 2 || rpt.Sources["192.168.1.51:8888"] != 1 {
		t.Errorf("Sources = %v", rpt.Sources)
	}
	if rpt.IncompleteRows != 1 {
		t.Errorf("IncompleteRows = %d, want 1", rpt.IncompleteRows)
	}
}

func TestAnalyzeRaw_FailsGracefully(t *testing.T) {
	dir := t.TempDir()

	empty := writeFile(t, dir, "empty.csv", rawHeader+"\n")
	if rpt, err := AnalyzeRaw(empty); rpt != nil || !errors.Is(err, errors.ErrEmptyFile) {
		t.Errorf("expected ErrEmptyFile, got rpt=%v err=%v", rpt, err)
	}

	bad := writeFile(t, dir, "bad.csv", "x,y\n1,2\n")
	if rpt, err := AnalyzeRaw(bad); rpt != nil || !errors.Is(err, errors.ErrBadHeader) {
		t.Errorf("expected ErrBadHeader, got rpt=%v err=%v", rpt, err)
	}
}
