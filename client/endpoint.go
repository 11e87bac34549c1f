package client

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is the address of a HOX server.
type Endpoint struct {
	Host string
	Port int
}

var DefaultEndpoint = Endpoint{Host: "localhost", Port: 8000}

// ParseEndpoint parses `host:port`.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port in endpoint '%s'", s)
	}

	return Endpoint{Host: host, Port: port}, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
