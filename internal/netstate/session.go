package netstate

// DiscoverySession is the visible state of the discovery service.
type DiscoverySession struct {
	Active            bool     `json:"active"`
	Port              uint16   `json:"port"`
	ServerName        string   `json:"server_name"`
	DiscoveredClients []string `json:"discovered_clients"`
}

// IngestionSession is the visible state of the HTTP data server.
// ReceivedCount never decreases, including across restarts.
type IngestionSession struct {
	Running       bool   `json:"running"`
	Port          uint16 `json:"port"`
	ReceivedCount uint64 `json:"received_data_count"`
	IPAddress     string `json:"ip_address"`
}

const (
	DefaultDiscoveryPort uint16 = 9090
	DefaultServerName           = "DrillTrack"
	DefaultIngestionPort uint16 = 8080
	DefaultIngestionIP          = "127.0.0.1"
)

func (s DiscoverySession) clone() DiscoverySession {
	s.DiscoveredClients = append([]string{}, s.DiscoveredClients...)
	return s
}
