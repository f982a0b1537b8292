// Package discoverymodels defines the discovery wire messages and the
// interface implemented by auxiliary discovery mechanisms.
package discoverymodels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBind             = errors.New("failed to bind socket")
	ErrMalformedMessage = errors.New("malformed discovery message")
	ErrUnknownMessage   = errors.New("unknown discovery message type")
)

type MessageType string

const (
	TypeServerAnnounce  MessageType = "server_announce"
	TypeClientDiscovery MessageType = "client_discovery"
	TypeServerResponse  MessageType = "server_response"
)

// Message is one decoded discovery datagram. The concrete type is one of
// *ServerAnnouncement, *ClientDiscoveryRequest or *ServerResponse.
type Message interface {
	MessageType() MessageType
}

// ServerAnnouncement is broadcast periodically by a running server.
type ServerAnnouncement struct {
	Type          MessageType `json:"type"`
	Name          string      `json:"name"`
	HTTPPort      uint16      `json:"http_port"`
	DiscoveryPort uint16      `json:"discovery_port"`
	IP            string      `json:"ip"`
	AllIPs        []string    `json:"all_ips"`
	Version       string      `json:"version"`
	Timestamp     int64       `json:"timestamp"`
	InstanceID    string      `json:"instance_id,omitempty"`
}

// ClientDiscoveryRequest is sent by clients looking for servers. Fields other
// than type are informational.
type ClientDiscoveryRequest struct {
	Type       MessageType `json:"type"`
	ClientName string      `json:"client_name,omitempty"`
}

// ServerResponse is unicast back to a client that sent a discovery request.
type ServerResponse struct {
	Type          MessageType `json:"type"`
	Name          string      `json:"name"`
	HTTPPort      uint16      `json:"http_port"`
	IP            string      `json:"ip"`
	DiscoveryPort uint16      `json:"discovery_port"`
	Timestamp     int64       `json:"timestamp"`
	InstanceID    string      `json:"instance_id,omitempty"`
}

func (*ServerAnnouncement) MessageType() MessageType     { return TypeServerAnnounce }
func (*ClientDiscoveryRequest) MessageType() MessageType { return TypeClientDiscovery }
func (*ServerResponse) MessageType() MessageType         { return TypeServerResponse }

// Decode parses a datagram, dispatching on its "type" field.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var msg Message
	switch envelope.Type {
	case TypeServerAnnounce:
		msg = &ServerAnnouncement{}
	case TypeClientDiscovery:
		return decodeClientDiscovery(data), nil
	case TypeServerResponse:
		msg = &ServerResponse{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, envelope.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// decodeClientDiscovery never fails: clients may send any extra fields, and
// client_name is kept only when it is a string.
func decodeClientDiscovery(data []byte) *ClientDiscoveryRequest {
	req := &ClientDiscoveryRequest{Type: TypeClientDiscovery}

	var extra struct {
		ClientName json.RawMessage `json:"client_name"`
	}
	if err := json.Unmarshal(data, &extra); err == nil && len(extra.ClientName) > 0 {
		var name string
		if json.Unmarshal(extra.ClientName, &name) == nil {
			req.ClientName = name
		}
	}
	return req
}

// Encode marshals msg, filling in its type tag.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *ServerAnnouncement:
		m.Type = TypeServerAnnounce
	case *ClientDiscoveryRequest:
		m.Type = TypeClientDiscovery
	case *ServerResponse:
		m.Type = TypeServerResponse
	}
	return json.Marshal(msg)
}

// ServiceInfo describes a running discovery session to mechanisms.
type ServiceInfo struct {
	Name          string
	InstanceID    string
	IP            string
	AllIPs        []string
	HTTPPort      uint16
	DiscoveryPort uint16
	Version       string
}

// Mechanism is an additional way of advertising the server, started and
// stopped together with the discovery session.
type Mechanism interface {
	// Start begins advertising info
	Start(ctx context.Context, info ServiceInfo) error

	// Stop ends advertising
	Stop() error

	// Name returns the mechanism name
	Name() string
}
