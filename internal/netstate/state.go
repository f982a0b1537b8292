// Package netstate owns the per-process state of the network services: one
// session snapshot and one task handle per service.
//
// A State is constructed once by the application and passed to every
// component that starts, stops or reports on a service.
package netstate

type State struct {
	Discovery *Slot[DiscoverySession]
	Ingestion *Slot[IngestionSession]
}

func New() *State {
	return &State{
		Discovery: newSlot(DiscoverySession{
			Port:              DefaultDiscoveryPort,
			ServerName:        DefaultServerName,
			DiscoveredClients: []string{},
		}, DiscoverySession.clone),
		Ingestion: newSlot(IngestionSession{
			Port:      DefaultIngestionPort,
			IPAddress: DefaultIngestionIP,
		}, nil),
	}
}
