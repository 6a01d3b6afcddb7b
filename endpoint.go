package melsec

import (
	"net"
	"strconv"
)

// Protocol selects the underlying network layer a Target is reached over.
type Protocol byte

const (
	ProtocolTCP Protocol = iota
	ProtocolUDP
)

func (p Protocol) String() string {
	if p == ProtocolUDP {
		return "udp"
	}
	return "tcp"
}

// Target describes where and how to reach a PLC: the host/port pair, the
// transport protocol, the frame dialect, the PLC series, and the access
// route to embed in every frame. It is the melsec equivalent of the
// teacher's Config.Endpoint field, widened to carry everything the frame
// codec and transport need instead of a single string.
type Target struct {
	Host        string
	Port        uint16
	Protocol    Protocol
	Dialect     Dialect
	Series      Series
	AccessRoute AccessRoute
}

// NewTarget builds a Target with the default access route and the extended
// dialect, the combination the client facade uses unless overridden.
func NewTarget(host string, port uint16, proto Protocol, series Series) Target {
	return Target{
		Host:        host,
		Port:        port,
		Protocol:    proto,
		Dialect:     DialectExtended,
		Series:      series,
		AccessRoute: DefaultAccessRoute(),
	}
}

// Addr returns the "host:port" string used to key the TCP connection pool
// and to dial/resolve the remote endpoint.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// WithAccessRoute returns a copy of t with its access route replaced.
func (t Target) WithAccessRoute(r AccessRoute) Target {
	t.AccessRoute = r
	return t
}

// WithDialect returns a copy of t with its frame dialect replaced.
func (t Target) WithDialect(d Dialect) Target {
	t.Dialect = d
	return t
}
