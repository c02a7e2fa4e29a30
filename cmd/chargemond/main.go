// chargemond is the headless charging station monitor daemon: it connects to
// the hardware UDP link, logs every session to CSV, and optionally archives
// the finished session to Parquet on shutdown.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/evgrid/chargemon/internal/archive"
	"github.com/evgrid/chargemon/internal/config"
	"github.com/evgrid/chargemon/internal/datalog"
	"github.com/evgrid/chargemon/internal/errors"
	"github.com/evgrid/chargemon/internal/intake"
	"github.com/evgrid/chargemon/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "chargemon.yaml", "config file path")
	hardware := flag.String("hardware", "", "hardware address (overrides config)")
	logDir := flag.String("logdir", "", "session log directory (overrides config)")
	archiveOnStop := flag.Bool("archive", false, "archive the session to Parquet on shutdown")
	debug := flag.Bool("debug", false, "enable debug logging")
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
	level := logging.ParseLevel(cfg.Log.Level)
	if *debug {
		level = slog.LevelDebug
	}

	logging.Init(level, cfg.Log.JSON)
	log := logging.Component("main")
	log.Info("chargemond starting", "version", Version)

	logger := datalog.New(datalog.Config{
		Dir:        cfg.Datalog.Dir,
		FlushEvery: cfg.Datalog.FlushEvery,
	})

	session, err := logger.Start()
	if err != nil {
		log.Error("start logging", "error", err)
		os.Exit(1)
	}

	svc := intake.New(intake.Config{
		HardwareAddr:   cfg.Intake.HardwareAddr,
		LocalPort:      cfg.Intake.LocalPort,
		ReadBufferSize: cfg.Intake.ReadBufferSize,
		ReadTimeout:    cfg.Intake.ReadTimeout,
	}, logger)

	if err := svc.Start(); err != nil {
		log.Error("start intake", "error", err)
		logger.Stop()
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")

	if err := svc.Stop(); err != nil {
		log.Warn("stop intake", "error", err)
	}
	if _, err := logger.Stop(); err != nil && !errors.Is(err, errors.ErrNotLogging) {
		log.Warn("stop logging", "error", err)
	}

	stats := logger.Stats()
	log.Info("session complete",
		"file", session.ProcessedPath,
		"rows", stats.RowsWritten,
		"raw", stats.RawWritten)

	if *archiveOnStop && stats.RowsWritten > 0 {
		opts := archive.Options{
			Compression:      archive.ParseCompressionType(cfg.Archive.Compression),
			CompressionLevel: cfg.Archive.CompressionLevel,
		}
		pq := archive.DefaultArchivePath(session.ProcessedPath)
		if _, err := archive.Convert(session.ProcessedPath, pq, opts); err != nil {
			log.Warn("archive session", "error", err)
		}
	}
}
