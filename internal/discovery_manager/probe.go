package discoverymanager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	discoverymodels "drilltrack/internal/discovery_manager/models"
)

// DiscoveredServer is a server that answered a probe.
type DiscoveredServer struct {
	discoverymodels.ServerResponse
	From string `json:"from"`
}

// Probe sends one client discovery request to target ("host:port", usually the
// broadcast address and discovery port) and collects the responses that arrive
// before timeout. Servers are reported once even if they answer from several
// addresses.
func Probe(ctx context.Context, target string, clientName string, timeout time.Duration) ([]DiscoveredServer, error) {
	const op = "discoverymanager.Probe"

	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve %s: %w", op, target, err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	conn, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, discoverymodels.ErrBind, err)
	}
	defer conn.Close()

	req, err := discoverymodels.Encode(&discoverymodels.ClientDiscoveryRequest{ClientName: clientName})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := conn.WriteTo(req, dst); err != nil {
		return nil, fmt.Errorf("%s: send request: %w", op, err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	seen := make(map[string]struct{})
	servers := []DiscoveredServer{}
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return servers, nil
			}
			return servers, fmt.Errorf("%s: %w", op, err)
		}

		msg, err := discoverymodels.Decode(buf[:n])
		if err != nil {
			continue
		}
		resp, ok := msg.(*discoverymodels.ServerResponse)
		if !ok {
			continue
		}

		key := resp.InstanceID
		if key == "" {
			key = hostOf(addr)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		servers = append(servers, DiscoveredServer{ServerResponse: *resp, From: hostOf(addr)})
	}
}
