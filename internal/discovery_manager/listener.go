package discoverymanager

import (
	"context"
	"errors"
	"log/slog"
	"net"

	discoverymodels "drilltrack/internal/discovery_manager/models"
	"drilltrack/internal/metrics"
	"drilltrack/internal/util/logger/sl"

	"golang.org/x/time/rate"
)

const maxDatagramSize = 2048

// Listener answers client discovery requests received on the discovery port.
type Listener struct {
	conn     net.PacketConn
	registry *ClientRegistry
	limiter  *rate.Limiter
	response discoverymodels.ServerResponse
	clock    *msClock
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func newListener(
	conn net.PacketConn,
	registry *ClientRegistry,
	limiter *rate.Limiter,
	response discoverymodels.ServerResponse,
	clock *msClock,
	log *slog.Logger,
	m *metrics.Metrics,
) *Listener {
	return &Listener{
		conn:     conn,
		registry: registry,
		limiter:  limiter,
		response: response,
		clock:    clock,
		log:      log.With(slog.String("component", "listener")),
		metrics:  m,
	}
}

// Run reads datagrams until ctx is cancelled. Cancellation closes the socket,
// which unblocks the pending read.
func (l *Listener) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		l.conn.Close()
	})
	defer stop()
	defer l.conn.Close()

	l.log.Info("Discovery listener started", slog.String("addr", l.conn.LocalAddr().String()))

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.log.Info("Discovery listener stopped")
				return
			}
			l.log.Warn("Error reading UDP", sl.Err(err))
			continue
		}
		l.handlePacket(buf[:n], addr)
	}
}

// handlePacket processes one datagram. Anything other than a well-formed
// client discovery request is dropped.
func (l *Listener) handlePacket(data []byte, addr net.Addr) {
	msg, err := discoverymodels.Decode(data)
	if err != nil {
		l.log.Debug("Dropping datagram", slog.String("from", addr.String()), sl.Err(err))
		return
	}

	if _, ok := msg.(*discoverymodels.ClientDiscoveryRequest); !ok {
		return
	}

	ip := hostOf(addr)
	if l.registry.Add(ip) {
		l.log.Info("New client discovered", slog.String("client", ip))
	}

	if !l.limiter.Allow() {
		l.metrics.DiscoveryRequests.WithLabelValues(metrics.ResultLimited).Inc()
		return
	}

	resp := l.response
	resp.Timestamp = l.clock.Now()
	out, err := discoverymodels.Encode(&resp)
	if err != nil {
		l.log.Error("Failed to encode response", sl.Err(err))
		return
	}

	if _, err := l.conn.WriteTo(out, addr); err != nil {
		l.metrics.DiscoveryRequests.WithLabelValues(metrics.ResultError).Inc()
		l.log.Warn("Failed to send response", slog.String("to", addr.String()), sl.Err(err))
		return
	}
	l.metrics.DiscoveryRequests.WithLabelValues(metrics.ResultAnswered).Inc()
}

func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4.String()
		}
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
