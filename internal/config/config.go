package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/evgrid/chargemon/config"
	"github.com/evgrid/chargemon/internal/errors"
)

// Config represents the complete chargemon configuration.
type Config struct {
	// Datalog configures the session CSV logger.
	Datalog DatalogConfig `yaml:"datalog"`

	// Intake configures the UDP hardware link.
	Intake IntakeConfig `yaml:"intake"`

	// Report configures read-back analysis.
	Report ReportConfig `yaml:"report"`

	// Archive configures Parquet conversion of finished sessions.
	Archive ArchiveConfig `yaml:"archive"`

	// Log configures application logging.
	Log LogConfig `yaml:"log"`
}

// DatalogConfig configures the session CSV logger.
type DatalogConfig struct {
	// Dir is the directory session files are written to.
	Dir string `yaml:"dir"`

	// FlushEvery is the number of rows between flushes.
	FlushEvery int `yaml:"flush_every"`
}

// IntakeConfig configures the UDP hardware link.
type IntakeConfig struct {
	// HardwareAddr is the "ip:port" of the hardware controller.
	HardwareAddr string `yaml:"hardware_addr"`

	// LocalPort is the local UDP port to bind. 0 picks an ephemeral port.
	LocalPort int `yaml:"local_port"`

	// ReadBufferSize is the datagram receive buffer in bytes.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// ReadTimeout bounds a single blocking read.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// ReportConfig configures read-back analysis.
type ReportConfig struct {
	// SketchAccuracy is the DDSketch relative accuracy for percentiles.
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// ArchiveConfig configures Parquet conversion of finished sessions.
type ArchiveConfig struct {
	// Compression is the Parquet codec: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// CompressionLevel applies to codecs that support it (zstd: 1-22).
	CompressionLevel int `yaml:"compression_level"`
}

// LogConfig configures application logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output to JSON records.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file, merging over defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Datalog: DatalogConfig{
			Dir:        defaults.DefaultLogDir,
			FlushEvery: defaults.DefaultFlushEvery,
		},
		Intake: IntakeConfig{
			HardwareAddr:   defaults.DefaultHardwareAddress,
			LocalPort:      defaults.DefaultLocalPort,
			ReadBufferSize: defaults.DefaultReadBufferSize,
			ReadTimeout:    defaults.DefaultReadTimeout,
		},
		Report: ReportConfig{
			SketchAccuracy: defaults.DefaultSketchAccuracy,
		},
		Archive: ArchiveConfig{
			Compression:      defaults.DefaultArchiveCompression,
			CompressionLevel: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Datalog.Dir == "" {
		return errors.NewMissingField("datalog.dir")
	}
	if c.Datalog.FlushEvery < 1 {
		return errors.NewInvalidValue("datalog.flush_every", c.Datalog.FlushEvery, "must be >= 1")
	}
	if c.Intake.HardwareAddr == "" {
		return errors.NewMissingField("intake.hardware_addr")
	}
	if c.Intake.LocalPort < 0 || c.Intake.LocalPort > 65535 {
		return errors.NewInvalidValue("intake.local_port", c.Intake.LocalPort, "must be 0-65535")
	}
	if c.Intake.ReadBufferSize < 64 {
		return errors.NewInvalidValue("intake.read_buffer_size", c.Intake.ReadBufferSize, "must be >= 64")
	}
	if c.Report.SketchAccuracy <= 0 || c.Report.SketchAccuracy >= 1 {
		return errors.NewInvalidValue("report.sketch_accuracy", c.Report.SketchAccuracy, "must be in (0, 1)")
	}
	switch c.Archive.Compression {
	case "snappy", "zstd", "lz4", "gzip", "none", "":
	default:
		return errors.NewInvalidValue("archive.compression", c.Archive.Compression, "unknown codec")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return errors.NewInvalidValue("log.level", c.Log.Level, "unknown level")
	}
	return nil
}
