// Package netaddr picks the local IPv4 addresses a server advertises on the LAN.
package netaddr

import (
	"net"
	"sort"
)

const Loopback = "127.0.0.1"

// Resolution is the outcome of one address lookup. Primary is the address
// advertised to peers; All lists every LAN candidate in preference order.
type Resolution struct {
	Primary string
	All     []string
}

// InterfaceAddrs lists local interface addresses. net.InterfaceAddrs by default.
type InterfaceAddrs func() ([]net.Addr, error)

type Resolver struct {
	addrs InterfaceAddrs
}

func NewResolver(addrs InterfaceAddrs) *Resolver {
	if addrs == nil {
		addrs = net.InterfaceAddrs
	}
	return &Resolver{addrs: addrs}
}

// Resolve returns the LAN candidates, falling back to loopback when the host
// has none or enumeration fails.
func (r *Resolver) Resolve() Resolution {
	addrs, err := r.addrs()
	if err != nil {
		addrs = nil
	}

	candidates := Candidates(addrs)
	if len(candidates) == 0 {
		return Resolution{Primary: Loopback, All: []string{Loopback}}
	}
	return Resolution{Primary: candidates[0], All: candidates}
}

// Candidates filters addrs down to IPv4 addresses usable on a LAN, ordered
// 192.168/16 first, then the other private ranges, then the rest.
func Candidates(addrs []net.Addr) []string {
	type candidate struct {
		ip   string
		rank int
		pos  int
	}

	seen := make(map[string]struct{})
	var list []candidate
	for i, a := range addrs {
		ip := ipOf(a)
		if ip == nil {
			continue
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() || ip4.IsUnspecified() || ip4.IsMulticast() {
			continue
		}
		s := ip4.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		list = append(list, candidate{ip: s, rank: rank(ip4), pos: i})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].rank != list[j].rank {
			return list[i].rank < list[j].rank
		}
		return list[i].pos < list[j].pos
	})

	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ip)
	}
	return out
}

func rank(ip net.IP) int {
	switch {
	case ip[0] == 192 && ip[1] == 168:
		return 0
	case ip.IsPrivate():
		return 1
	default:
		return 2
	}
}

func ipOf(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
