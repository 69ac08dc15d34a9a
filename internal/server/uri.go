package server

import (
	"fmt"
	"net/url"
)

const (
	TransportTCP       = "tcp"
	TransportUnix      = "unix"
	TransportWebSocket = "websocket"
)

// Endpoint is a parsed listen URI.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	if e.Network == TransportUnix {
		return "unix://" + e.Address
	}
	return "tcp://" + e.Address
}

// ParseURI accepts tcp://host:port and unix:///path/to/socket.
func ParseURI(uri string) (Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse listen uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case TransportTCP:
		if u.Host == "" || u.Port() == "" {
			return Endpoint{}, fmt.Errorf("tcp uri %q must include host and port", uri)
		}
		return Endpoint{Network: TransportTCP, Address: u.Host}, nil
	case TransportUnix:
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		if path == "" {
			return Endpoint{}, fmt.Errorf("unix uri %q must include a socket path", uri)
		}
		return Endpoint{Network: TransportUnix, Address: path}, nil
	default:
		return Endpoint{}, fmt.Errorf("unsupported listen uri scheme %q", u.Scheme)
	}
}
