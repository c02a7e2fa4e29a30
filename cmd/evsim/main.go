// evsim emulates the charging station hardware controller: it binds the
// hardware UDP port, waits for a monitor to announce itself, and streams
// simulated telemetry packets back at a fixed interval.
package main

import (
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	defaults "github.com/evgrid/chargemon/config"
	"github.com/evgrid/chargemon/internal/logging"
	"github.com/evgrid/chargemon/internal/simulate"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:8888", "UDP address to serve on")
	interval := flag.Duration("interval", defaults.DefaultSimInterval, "packet interval")
	duration := flag.Duration("duration", defaults.DefaultSimDuration, "stop after this long (0 = until interrupted)")
	seed := flag.Int64("seed", 0, "random seed (0 = time-based)")
	fault := flag.Float64("fault", 0.005, "per-packet fault probability")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logging.Init(level, false)
	log := logging.Component("evsim")

	addr, err := net.ResolveUDPAddr("udp", *listen)
	if err != nil {
		log.Error("resolve listen address", "error", err)
		os.Exit(1)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Error("bind", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	log.Info("waiting for monitor", "addr", conn.LocalAddr().String())

	// The hardware streams to whoever spoke last; a single client is enough
	// for the monitor.
	buf := make([]byte, 64)
	_, client, err := conn.ReadFromUDP(buf)
	if err != nil {
		log.Error("read announcement", "error", err)
		os.Exit(1)
	}
	log.Info("monitor connected", "client", client.String())

	sim := simulate.New(simulate.Config{
		Seed:        *seed,
		Interval:    *interval,
		FaultChance: *fault,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var sent int
	for {
		select {
		case <-sig:
			log.Info("interrupted", "packets", sent)
			return
		case <-deadline:
			log.Info("done", "packets", sent)
			return
		case <-ticker.C:
			line := sim.NextPacket()
			if _, err := conn.WriteToUDP([]byte(line), client); err != nil {
				log.Warn("send packet", "error", err)
				continue
			}
			sent++
			if sent%100 == 0 {
				log.Debug("streaming", "packets", sent)
			}
		}
	}
}
