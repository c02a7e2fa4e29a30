// Package intake receives telemetry datagrams from the charging station
// hardware and feeds them to the session logger. Every datagram is mirrored
// to the raw sink verbatim; only packets that parse cleanly also become
// processed records.
package intake

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evgrid/chargemon/internal/datalog"
	"github.com/evgrid/chargemon/internal/errors"
	"github.com/evgrid/chargemon/internal/logging"
	"github.com/evgrid/chargemon/internal/telemetry"
)

// helloMessage announces the monitor to the hardware controller, which
// starts streaming to any address it has heard from.
const helloMessage = "HELLO"

// Config configures the intake service.
type Config struct {
	// HardwareAddr is the "ip:port" of the hardware controller.
	HardwareAddr string

	// LocalPort is the local UDP port to bind. 0 picks an ephemeral port.
	LocalPort int

	// ReadBufferSize is the datagram receive buffer in bytes.
	ReadBufferSize int

	// ReadTimeout bounds a single blocking read so the loop can observe
	// shutdown.
	ReadTimeout time.Duration

	// StatusInterval is how often the receive counters are logged.
	StatusInterval time.Duration
}

// DefaultConfig returns default intake configuration.
func DefaultConfig() Config {
	return Config{
		HardwareAddr:   "127.0.0.1:8888",
		ReadBufferSize: 1024,
		ReadTimeout:    500 * time.Millisecond,
		StatusInterval: 10 * time.Second,
	}
}

// Stats holds intake counters.
type Stats struct {
	PacketsReceived int64
	ParseErrors     int64
	Dropped         int64
}

// Service receives hardware datagrams and appends them to the logger.
type Service struct {
	cfg  Config
	log  *slog.Logger
	sink *datalog.Logger

	conn   *net.UDPConn
	cancel context.CancelFunc
	group  *errgroup.Group

	running atomic.Bool

	packetsReceived atomic.Int64
	parseErrors     atomic.Int64
	dropped         atomic.Int64

	mu          sync.Mutex
	lastReading telemetry.Reading
	lastAt      time.Time
	haveReading bool
}

// New creates an intake service feeding sink.
func New(cfg Config, sink *datalog.Logger) *Service {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}

	return &Service{
		cfg:  cfg,
		log:  logging.Component("intake"),
		sink: sink,
	}
}

// Start binds the local socket, announces to the hardware, and launches the
// receive loop.
func (s *Service) Start() error {
	if s.running.Load() {
		return nil
	}

	hwAddr, err := net.ResolveUDPAddr("udp", s.cfg.HardwareAddr)
	if err != nil {
		return errors.Wrap(err, "resolve hardware address")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.LocalPort})
	if err != nil {
		return errors.Wrap(err, "bind local socket")
	}

	if _, err := conn.WriteToUDP([]byte(helloMessage), hwAddr); err != nil {
		conn.Close()
		return errors.Wrap(err, "announce to hardware")
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	s.conn = conn
	s.cancel = cancel
	s.group = group
	s.running.Store(true)

	group.Go(func() error { return s.receiveLoop(ctx) })
	group.Go(func() error { return s.statusLoop(ctx) })

	s.log.Info("listening", "local", conn.LocalAddr().String(), "hardware", hwAddr.String())
	return nil
}

// Stop cancels the loops and closes the socket.
func (s *Service) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	s.cancel()
	err := s.group.Wait()
	s.conn.Close()

	s.log.Info("stopped",
		"packets", s.packetsReceived.Load(),
		"parse_errors", s.parseErrors.Load())
	return err
}

// receiveLoop reads datagrams until the context is canceled.
func (s *Service) receiveLoop(ctx context.Context) error {
	buf := make([]byte, s.cfg.ReadBufferSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("read datagram", "error", err)
			continue
		}

		s.handlePacket(string(buf[:n]), addr.String())
	}
}

// handlePacket mirrors the datagram to the raw sink and, when it parses,
// appends a processed record.
func (s *Service) handlePacket(line, source string) {
	s.packetsReceived.Add(1)
	now := time.Now()

	if err := s.sink.LogRawPacket(line, source); err != nil {
		if errors.Is(err, errors.ErrNotLogging) {
			// Monitor running with logging stopped; packets are dropped.
			s.dropped.Add(1)
		} else {
			s.log.Warn("log raw packet", "error", err)
		}
	}

	reading, err := telemetry.ParsePacket(line)
	if err != nil {
		s.parseErrors.Add(1)
		s.log.Debug("unparseable packet", "source", source, "error", err)
		return
	}

	s.mu.Lock()
	s.lastReading = reading
	s.lastAt = now
	s.haveReading = true
	s.mu.Unlock()

	if err := s.sink.LogReading(reading, now); err != nil && !errors.Is(err, errors.ErrNotLogging) {
		s.log.Warn("log reading", "error", err)
	}
}

// statusLoop periodically logs receive counters.
func (s *Service) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.log.Debug("receive counters",
				"packets", s.packetsReceived.Load(),
				"parse_errors", s.parseErrors.Load(),
				"dropped", s.dropped.Load())
		}
	}
}

// Stats returns intake counters.
func (s *Service) Stats() Stats {
	return Stats{
		PacketsReceived: s.packetsReceived.Load(),
		ParseErrors:     s.parseErrors.Load(),
		Dropped:         s.dropped.Load(),
	}
}

// LastReading returns the most recent parsed reading, if any.
func (s *Service) LastReading() (telemetry.Reading, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReading, s.lastAt, s.haveReading
}

// LocalAddr returns the bound socket address, or "" before Start.
func (s *Service) LocalAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.LocalAddr().String()
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return os.IsTimeout(err)
}
