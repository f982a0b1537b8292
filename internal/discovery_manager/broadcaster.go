package discoverymanager

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	discoverymodels "drilltrack/internal/discovery_manager/models"
	"drilltrack/internal/metrics"
	"drilltrack/internal/util/logger/sl"
)

// Broadcaster periodically sends the server announcement to the broadcast
// address.
type Broadcaster struct {
	conn     net.PacketConn
	target   net.Addr
	announce discoverymodels.ServerAnnouncement
	interval time.Duration
	clock    *msClock
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func newBroadcaster(
	conn net.PacketConn,
	target net.Addr,
	announce discoverymodels.ServerAnnouncement,
	interval time.Duration,
	clock *msClock,
	log *slog.Logger,
	m *metrics.Metrics,
) *Broadcaster {
	return &Broadcaster{
		conn:     conn,
		target:   target,
		announce: announce,
		interval: interval,
		clock:    clock,
		log:      log.With(slog.String("component", "broadcaster")),
		metrics:  m,
	}
}

// Run sends one announcement immediately and then one per interval until ctx
// is cancelled. It owns and closes the socket.
func (b *Broadcaster) Run(ctx context.Context) {
	defer b.conn.Close()

	b.log.Info("Broadcasting server announcements",
		slog.String("target", b.target.String()),
		slog.Duration("interval", b.interval),
	)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.send()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("Broadcaster stopped")
			return
		case <-ticker.C:
			b.send()
		}
	}
}

func (b *Broadcaster) send() {
	msg := b.announce
	msg.Timestamp = b.clock.Now()

	data, err := discoverymodels.Encode(&msg)
	if err != nil {
		b.log.Error("Failed to encode announcement", sl.Err(err))
		return
	}

	if _, err := b.conn.WriteTo(data, b.target); err != nil {
		b.metrics.Announcements.WithLabelValues(metrics.ResultError).Inc()
		b.log.Warn("Announcement send failed", sl.Err(err))
		return
	}
	b.metrics.Announcements.WithLabelValues(metrics.ResultSent).Inc()
}

// msClock yields unix millisecond timestamps that strictly increase even if
// called twice within the same millisecond or the wall clock steps back.
type msClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newMsClock() *msClock {
	return &msClock{now: time.Now}
}

func (c *msClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}
