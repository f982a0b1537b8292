package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"drilltrack/internal/metrics"
	"drilltrack/internal/netaddr"
	"drilltrack/internal/netstate"
	"drilltrack/internal/util/logger/sl"
)

type Config struct {
	CounterSyncInterval time.Duration
	ShutdownTimeout     time.Duration
	MaxBodyBytes        int64
	CORSOrigins         []string
}

func DefaultConfig() Config {
	return Config{
		CounterSyncInterval: time.Second,
		ShutdownTimeout:     10 * time.Second,
		MaxBodyBytes:        8 << 20,
		CORSOrigins:         []string{"*"},
	}
}

// Options are the per-start parameters. Port 0 binds an ephemeral port.
type Options struct {
	Port uint16
}

// Server is the HTTP data server whose session lives in netstate.State.
type Server struct {
	config   Config
	state    *netstate.State
	ingestor *Ingestor
	resolver *netaddr.Resolver
	metrics  *metrics.Metrics
	log      *slog.Logger

	// received counts successful uploads for the lifetime of the Server and
	// is copied into the session by the counter sync task.
	received atomic.Uint64

	// guarded by the ingestion slot command lock
	httpServer *http.Server
}

func NewServer(
	config Config,
	state *netstate.State,
	ingestor *Ingestor,
	resolver *netaddr.Resolver,
	m *metrics.Metrics,
	log *slog.Logger,
) *Server {
	if resolver == nil {
		resolver = netaddr.NewResolver(nil)
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		config:   config,
		state:    state,
		ingestor: ingestor,
		resolver: resolver,
		metrics:  m,
		log:      log.With(slog.String("service", "ingestion")),
	}
}

// Start binds the HTTP listener and serves in the background. Starting a
// running server returns the current session.
func (s *Server) Start(ctx context.Context, opts Options) (netstate.IngestionSession, error) {
	const op = "ingestion.Start"
	log := s.log.With(slog.String("op", op))

	slot := s.state.Ingestion
	slot.Lock()
	defer slot.Unlock()

	if current := slot.Snapshot(); current.Running {
		log.Info("Data server already running", slog.Int("port", int(current.Port)))
		return current, nil
	}

	ip := s.resolver.Resolve().Primary

	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(opts.Port)))
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return slot.Snapshot(), fmt.Errorf("%s: %w: %s: %v", op, ErrBind, addr, err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	srv := &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
	s.httpServer = srv

	handle := netstate.NewTaskHandle(context.WithoutCancel(ctx))
	session := slot.Update(func(st *netstate.IngestionSession) {
		st.Running = true
		st.Port = port
		st.IPAddress = ip
		st.ReceivedCount = s.received.Load()
	})
	slot.SetHandle(handle)

	handle.Go(func(context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Data server stopped unexpectedly", sl.Err(err))
		}
	})
	handle.Go(s.syncCounter)

	log.Info("Data server started", slog.String("ip", ip), slog.Int("port", int(port)))
	return session, nil
}

// Stop shuts the server down gracefully, letting in-flight requests finish.
// Stopping a stopped server returns its status.
func (s *Server) Stop(ctx context.Context) netstate.IngestionSession {
	const op = "ingestion.Stop"
	log := s.log.With(slog.String("op", op))

	slot := s.state.Ingestion
	slot.Lock()
	defer slot.Unlock()

	handle := slot.SetHandle(nil)
	if handle == nil {
		return slot.Snapshot()
	}
	slot.Update(func(st *netstate.IngestionSession) { st.Running = false })

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Graceful shutdown failed, closing connections", sl.Err(err))
		s.httpServer.Close()
	}
	s.httpServer = nil

	if err := handle.Stop(s.config.ShutdownTimeout); err != nil {
		log.Warn("Data server tasks still running after stop", sl.Err(err))
	}

	session := slot.Update(func(st *netstate.IngestionSession) {
		st.ReceivedCount = s.received.Load()
	})
	log.Info("Data server stopped", slog.Uint64("received", session.ReceivedCount))
	return session
}

func (s *Server) Status() netstate.IngestionSession {
	return s.state.Ingestion.Snapshot()
}

// syncCounter publishes the received counter into the session while the
// server runs.
func (s *Server) syncCounter(ctx context.Context) {
	ticker := time.NewTicker(s.config.CounterSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.received.Load()
			s.state.Ingestion.Update(func(st *netstate.IngestionSession) {
				if n > st.ReceivedCount {
					st.ReceivedCount = n
				}
			})
		}
	}
}
