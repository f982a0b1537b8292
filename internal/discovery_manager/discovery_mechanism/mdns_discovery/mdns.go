// Package mdnsdiscovery advertises the data server over multicast DNS so
// clients that support service browsing can find it without the UDP protocol.
package mdnsdiscovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	discoverymodels "drilltrack/internal/discovery_manager/models"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_drilltrack._tcp"

// MDNSDiscovery реализует механизм обнаружения через mDNS
type MDNSDiscovery struct {
	log    *slog.Logger
	mu     sync.Mutex
	server *mdns.Server
}

func NewMDNSDiscovery(log *slog.Logger) *MDNSDiscovery {
	return &MDNSDiscovery{
		log: log.With(slog.String("discovery", "mdns")),
	}
}

// Name возвращает имя механизма
func (m *MDNSDiscovery) Name() string {
	return "mdns"
}

// Start регистрирует сервис и запускает mDNS responder
func (m *MDNSDiscovery) Start(_ context.Context, info discoverymodels.ServiceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return nil
	}

	service, err := mdns.NewMDNSService(
		instanceName(info),
		ServiceType,
		"",
		"",
		int(info.HTTPPort),
		parseIPs(info.AllIPs),
		txtRecords(info),
	)
	if err != nil {
		return fmt.Errorf("failed to create mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to start mdns server: %w", err)
	}
	m.server = server

	m.log.Info("mDNS advertisement started",
		slog.String("service", ServiceType),
		slog.String("instance", instanceName(info)),
	)
	return nil
}

// Stop останавливает mDNS responder
func (m *MDNSDiscovery) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown()
	m.server = nil
	return err
}

func instanceName(info discoverymodels.ServiceInfo) string {
	id := info.InstanceID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return info.Name
	}
	return info.Name + "-" + id
}

func txtRecords(info discoverymodels.ServiceInfo) []string {
	return []string{
		"name=" + info.Name,
		"discovery_port=" + strconv.Itoa(int(info.DiscoveryPort)),
		"version=" + info.Version,
		"instance_id=" + info.InstanceID,
	}
}

func parseIPs(addrs []string) []net.IP {
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

var _ discoverymodels.Mechanism = (*MDNSDiscovery)(nil)
