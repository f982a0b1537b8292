// Package discoverymanager advertises the server on the local network and
// answers client discovery requests.
package discoverymanager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	discoverymodels "drilltrack/internal/discovery_manager/models"
	"drilltrack/internal/metrics"
	"drilltrack/internal/netaddr"
	"drilltrack/internal/netstate"
	"drilltrack/internal/util/logger/sl"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type Config struct {
	// AnnouncePort is where clients listen for announcements.
	AnnouncePort     int
	BroadcastAddress string
	AnnounceInterval time.Duration
	RefreshInterval  time.Duration
	// ResponseRate limits replies per second; <= 0 disables the limit.
	ResponseRate  float64
	ResponseBurst int
	Version       string
	StopTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		AnnouncePort:     9091,
		BroadcastAddress: "255.255.255.255",
		AnnounceInterval: 2 * time.Second,
		RefreshInterval:  5 * time.Second,
		ResponseRate:     50,
		ResponseBurst:    100,
		Version:          "1.0",
		StopTimeout:      5 * time.Second,
	}
}

// Options are the per-start parameters. Port 0 binds an ephemeral port; an
// empty ServerName uses the default name.
type Options struct {
	Port       uint16
	ServerName string
}

// Service runs the discovery session stored in the shared netstate.State.
type Service struct {
	config   Config
	state    *netstate.State
	resolver *netaddr.Resolver
	metrics  *metrics.Metrics
	log      *slog.Logger
	registry *ClientRegistry
	clock    *msClock

	mechanisms     map[string]discoverymodels.Mechanism
	mechanismsLock sync.RWMutex
}

func NewService(
	config Config,
	state *netstate.State,
	resolver *netaddr.Resolver,
	m *metrics.Metrics,
	log *slog.Logger,
) *Service {
	if resolver == nil {
		resolver = netaddr.NewResolver(nil)
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		config:     config,
		state:      state,
		resolver:   resolver,
		metrics:    m,
		log:        log.With(slog.String("service", "discovery")),
		registry:   NewClientRegistry(),
		clock:      newMsClock(),
		mechanisms: make(map[string]discoverymodels.Mechanism),
	}
}

// RegisterDiscoveryMechanism adds a mechanism started with every session.
func (s *Service) RegisterDiscoveryMechanism(mechanism discoverymodels.Mechanism) {
	const op = "discoverymanager.RegisterDiscoveryMechanism"
	log := s.log.With(slog.String("op", op))

	s.mechanismsLock.Lock()
	defer s.mechanismsLock.Unlock()

	name := mechanism.Name()
	s.mechanisms[name] = mechanism
	log.Info("Registered discovery mechanism", slog.String("mechanism", name))
}

// Registry returns the set of clients seen in the current session.
func (s *Service) Registry() *ClientRegistry {
	return s.registry
}

// Start begins a discovery session. Starting an active service returns the
// current session without binding anything.
func (s *Service) Start(ctx context.Context, opts Options) (netstate.DiscoverySession, error) {
	const op = "discoverymanager.Start"
	log := s.log.With(slog.String("op", op))

	slot := s.state.Discovery
	slot.Lock()
	defer slot.Unlock()

	if current := slot.Snapshot(); current.Active {
		log.Info("Discovery service already running", slog.Int("port", int(current.Port)))
		return current, nil
	}

	name := opts.ServerName
	if name == "" {
		name = netstate.DefaultServerName
	}

	addrs := s.resolver.Resolve()

	target, err := net.ResolveUDPAddr("udp4",
		net.JoinHostPort(s.config.BroadcastAddress, strconv.Itoa(s.config.AnnouncePort)))
	if err != nil {
		return slot.Snapshot(), fmt.Errorf("%s: resolve broadcast target: %w", op, err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	sender, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		return slot.Snapshot(), fmt.Errorf("%s: %w: broadcast socket: %v", op, discoverymodels.ErrBind, err)
	}

	listenAddr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(opts.Port)))
	conn, err := net.ListenPacket("udp4", listenAddr)
	if err != nil {
		sender.Close()
		return slot.Snapshot(), fmt.Errorf("%s: %w: %s: %v", op, discoverymodels.ErrBind, listenAddr, err)
	}
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	// only after both binds succeeded
	ingestion := s.state.Ingestion.Update(func(st *netstate.IngestionSession) {
		st.IPAddress = addrs.Primary
	})

	info := discoverymodels.ServiceInfo{
		Name:          name,
		InstanceID:    uuid.NewString(),
		IP:            addrs.Primary,
		AllIPs:        addrs.All,
		HTTPPort:      ingestion.Port,
		DiscoveryPort: port,
		Version:       s.config.Version,
	}

	limit := rate.Inf
	if s.config.ResponseRate > 0 {
		limit = rate.Limit(s.config.ResponseRate)
	}
	burst := s.config.ResponseBurst
	if burst <= 0 {
		burst = 1
	}

	s.registry.Reset()
	broadcaster := newBroadcaster(sender, target, announcementFor(info), s.config.AnnounceInterval, s.clock, s.log, s.metrics)
	listener := newListener(conn, s.registry, rate.NewLimiter(limit, burst), responseFor(info), s.clock, s.log, s.metrics)

	handle := netstate.NewTaskHandle(context.WithoutCancel(ctx))
	session := slot.Update(func(st *netstate.DiscoverySession) {
		*st = netstate.DiscoverySession{
			Active:            true,
			Port:              port,
			ServerName:        name,
			DiscoveredClients: []string{},
		}
	})
	slot.SetHandle(handle)

	handle.Go(broadcaster.Run)
	handle.Go(listener.Run)
	handle.Go(s.refreshClients)

	s.startMechanisms(handle.Context(), info)

	log.Info("Discovery service started",
		slog.String("name", name),
		slog.Int("port", int(port)),
		slog.String("ip", info.IP),
		slog.Any("all_ips", info.AllIPs),
		slog.Int("http_port", int(info.HTTPPort)),
	)
	return session, nil
}

// Stop ends the session. Stopping an inactive service returns its status.
func (s *Service) Stop() netstate.DiscoverySession {
	const op = "discoverymanager.Stop"
	log := s.log.With(slog.String("op", op))

	slot := s.state.Discovery
	slot.Lock()
	defer slot.Unlock()

	handle := slot.SetHandle(nil)
	session := slot.Update(func(st *netstate.DiscoverySession) {
		st.Active = false
		st.DiscoveredClients = []string{}
	})
	if handle == nil {
		return session
	}

	s.stopMechanisms()

	if err := handle.Stop(s.config.StopTimeout); err != nil {
		log.Warn("Discovery tasks still running after stop", sl.Err(err))
	}
	s.registry.Reset()

	log.Info("Discovery service stopped")
	return session
}

func (s *Service) Status() netstate.DiscoverySession {
	return s.state.Discovery.Snapshot()
}

// refreshClients copies the registry into the visible session every refresh
// interval.
func (s *Service) refreshClients(ctx context.Context) {
	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clients := s.registry.Snapshot()
			s.state.Discovery.Update(func(st *netstate.DiscoverySession) {
				if st.Active {
					st.DiscoveredClients = clients
				}
			})
		}
	}
}

func (s *Service) startMechanisms(ctx context.Context, info discoverymodels.ServiceInfo) {
	s.mechanismsLock.RLock()
	defer s.mechanismsLock.RUnlock()

	for name, mechanism := range s.mechanisms {
		if err := mechanism.Start(ctx, info); err != nil {
			s.log.Error("Failed to start discovery mechanism",
				slog.String("mechanism", name),
				sl.Err(err))
			continue
		}
		s.log.Info("Started discovery mechanism", slog.String("mechanism", name))
	}
}

func (s *Service) stopMechanisms() {
	s.mechanismsLock.RLock()
	defer s.mechanismsLock.RUnlock()

	for name, mechanism := range s.mechanisms {
		if err := mechanism.Stop(); err != nil {
			s.log.Error("Error stopping discovery mechanism",
				slog.String("mechanism", name),
				sl.Err(err))
		}
	}
}

func announcementFor(info discoverymodels.ServiceInfo) discoverymodels.ServerAnnouncement {
	return discoverymodels.ServerAnnouncement{
		Type:          discoverymodels.TypeServerAnnounce,
		Name:          info.Name,
		HTTPPort:      info.HTTPPort,
		DiscoveryPort: info.DiscoveryPort,
		IP:            info.IP,
		AllIPs:        append([]string{}, info.AllIPs...),
		Version:       info.Version,
		InstanceID:    info.InstanceID,
	}
}

func responseFor(info discoverymodels.ServiceInfo) discoverymodels.ServerResponse {
	return discoverymodels.ServerResponse{
		Type:          discoverymodels.TypeServerResponse,
		Name:          info.Name,
		HTTPPort:      info.HTTPPort,
		IP:            info.IP,
		DiscoveryPort: info.DiscoveryPort,
		InstanceID:    info.InstanceID,
	}
}
