// Package config provides configuration defaults and utilities
// for the chargemon application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultHardwareAddress is the address of the charging station hardware
	// controller that streams telemetry packets.
	// Override via config: intake.hardware_addr
	DefaultHardwareAddress = "127.0.0.1:8888"

	// DefaultLocalPort is the local UDP port the monitor binds to.
	// 0 lets the OS pick an ephemeral port.
	// Override via config: intake.local_port
	DefaultLocalPort = 0

	// DefaultReadBufferSize is the receive buffer for a single datagram.
	// Hardware packets are short comma-delimited lines; 1 KiB is ample.
	// Override via config: intake.read_buffer_size
	DefaultReadBufferSize = 1024

	// DefaultReadTimeout bounds a single blocking read so the receive loop
	// can observe shutdown.
	// Override via config: intake.read_timeout
	DefaultReadTimeout = 500 * time.Millisecond
)

// =============================================================================
// Session Logger Defaults
// =============================================================================

const (
	// DefaultLogDir is where session CSV files are written.
	// Override via config: datalog.dir
	DefaultLogDir = "logs"

	// DefaultFlushEvery is the number of appended rows between flushes,
	// balancing write throughput against data loss on crash.
	// Override via config: datalog.flush_every
	DefaultFlushEvery = 10
)

// =============================================================================
// Report Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the DDSketch relative accuracy used for
	// report percentiles (0.01 = 1% error).
	// Override via config: report.sketch_accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveCompression is the Parquet compression algorithm used
	// when archiving a session: snappy, zstd, lz4, gzip, none.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"
)

// =============================================================================
// Simulator Defaults
// =============================================================================

const (
	// DefaultSimInterval is the interval between simulated hardware packets.
	DefaultSimInterval = 100 * time.Millisecond

	// DefaultSimDuration is how long the simulator runs.
	DefaultSimDuration = 60 * time.Second
)
