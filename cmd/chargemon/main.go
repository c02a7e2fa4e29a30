// chargemon is the interactive operator console for the charging station
// monitor. It optionally connects the hardware UDP link so sessions started
// from the console record live telemetry.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/evgrid/chargemon/internal/archive"
	"github.com/evgrid/chargemon/internal/config"
	"github.com/evgrid/chargemon/internal/console"
	"github.com/evgrid/chargemon/internal/datalog"
	"github.com/evgrid/chargemon/internal/errors"
	"github.com/evgrid/chargemon/internal/intake"
	"github.com/evgrid/chargemon/internal/logging"
	"github.com/evgrid/chargemon/internal/report"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "chargemon.yaml", "config file path")
	hardware := flag.String("hardware", "", "hardware address (overrides config)")
	logDir := flag.String("logdir", "", "session log directory (overrides config)")
	offline := flag.Bool("offline", false, "run without the hardware link")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			logging.Init(slog.LevelInfo, false)
			logging.Error("load config", "path", *cfgPath, "error", err)
			os.Exit(1)
		}
	}

	if *hardware != "" {
		cfg.Intake.HardwareAddr = *hardware
	}
	if *logDir != "" {
		cfg.Datalog.Dir = *logDir
	}

	// Keep slog quiet on the console terminal; warnings still surface.
	logging.Init(slog.LevelWarn, cfg.Log.JSON)

	logger := datalog.New(datalog.Config{
		Dir:        cfg.Datalog.Dir,
		FlushEvery: cfg.Datalog.FlushEvery,
	})

	var svc *intake.Service
	if !*offline {
		svc = intake.New(intake.Config{
			HardwareAddr:   cfg.Intake.HardwareAddr,
			LocalPort:      cfg.Intake.LocalPort,
			ReadBufferSize: cfg.Intake.ReadBufferSize,
			ReadTimeout:    cfg.Intake.ReadTimeout,
		}, logger)
		if err := svc.Start(); err != nil {
			logging.Error("start intake", "error", err)
			os.Exit(1)
		}
		defer svc.Stop()
	}

	c := console.New(logger,
		svc,
		report.Options{SketchAccuracy: cfg.Report.SketchAccuracy},
		archive.Options{
			Compression:      archive.ParseCompressionType(cfg.Archive.Compression),
			CompressionLevel: cfg.Archive.CompressionLevel,
		})

	if err := c.Run(); err != nil {
		logging.Error("console", "error", err)
		os.Exit(1)
	}

	// Leave no half-written session behind.
	if logger.Active() {
		logger.Stop()
	}
}
