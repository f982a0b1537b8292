package netaddr

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ipNet(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name  string
		addrs []net.Addr
		want  []string
	}{
		{
			name:  "loopback and link-local are dropped",
			addrs: []net.Addr{ipNet("127.0.0.1/8"), ipNet("169.254.10.2/16")},
			want:  []string{},
		},
		{
			name:  "ipv6 is dropped",
			addrs: []net.Addr{ipNet("fe80::1/64"), ipNet("2001:db8::1/64"), ipNet("192.168.1.20/24")},
			want:  []string{"192.168.1.20"},
		},
		{
			name: "192.168 preferred over other private ranges",
			addrs: []net.Addr{
				ipNet("10.0.0.5/8"),
				ipNet("172.16.4.4/12"),
				ipNet("192.168.0.7/24"),
				ipNet("8.8.4.4/32"),
			},
			want: []string{"192.168.0.7", "10.0.0.5", "172.16.4.4", "8.8.4.4"},
		},
		{
			name:  "duplicates collapse",
			addrs: []net.Addr{ipNet("192.168.1.2/24"), &net.IPAddr{IP: net.ParseIP("192.168.1.2")}},
			want:  []string{"192.168.1.2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Candidates(tt.addrs))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("uses first candidate", func(t *testing.T) {
		r := NewResolver(func() ([]net.Addr, error) {
			return []net.Addr{ipNet("10.1.1.1/8"), ipNet("192.168.5.5/24")}, nil
		})
		res := r.Resolve()
		assert.Equal(t, "192.168.5.5", res.Primary)
		assert.Equal(t, []string{"192.168.5.5", "10.1.1.1"}, res.All)
	})

	t.Run("falls back to loopback", func(t *testing.T) {
		r := NewResolver(func() ([]net.Addr, error) {
			return []net.Addr{ipNet("127.0.0.1/8")}, nil
		})
		res := r.Resolve()
		assert.Equal(t, Loopback, res.Primary)
		assert.Equal(t, []string{Loopback}, res.All)
	})

	t.Run("enumeration error falls back to loopback", func(t *testing.T) {
		r := NewResolver(func() ([]net.Addr, error) {
			return nil, errors.New("boom")
		})
		assert.Equal(t, Loopback, r.Resolve().Primary)
	})
}
