package melsec

import (
	"context"
	"net"
	"time"
)

// sendUDP sends body once to addr over a fresh ephemeral UDP socket and
// waits for a matching response, reading up to RuntimeConfig's
// UDPRecvAttempts datagrams within the overall deadline. Datagrams that do
// not decode, or whose serial doesn't match expectSerial, are silently
// discarded and the receive loop continues, per §4.7: a stray reply to an
// earlier, abandoned request must never be mistaken for this one's answer.
// Each discarded datagram uses up one attempt. A send error, a read error
// or the deadline ends the call at once; the request is not resent.
func sendUDP(ctx context.Context, addr string, body []byte, dialect Dialect, expectSerial uint16, deadline time.Time) (Frame, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return Frame{}, wrapErr(KindIO, err, "dialing udp %s", addr)
	}
	defer conn.Close()

	if _, err := conn.Write(body); err != nil {
		return Frame{}, wrapErr(KindIO, err, "writing udp request to %s", addr)
	}

	cfg := GetRuntimeConfig()
	buf := make([]byte, 2048)
	for attempt := 0; attempt < cfg.UDPRecvAttempts; attempt++ {
		if ctx.Err() != nil {
			return Frame{}, wrapErr(KindTimeout, ctx.Err(), "udp receive cancelled")
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, newErr(KindTimeout, "udp receive deadline exceeded waiting for %s", addr)
		}
		conn.SetReadDeadline(time.Now().Add(remaining))
		n, err := conn.Read(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return Frame{}, newErr(KindTimeout, "udp receive timed out waiting for %s", addr)
			}
			return Frame{}, wrapErr(KindIO, err, "reading udp response from %s", addr)
		}

		_, dd, derr := DetectFrame(buf[:n])
		if derr != nil {
			continue
		}
		f, perr := ParseFrame(buf[:n], dd)
		if perr != nil {
			continue
		}
		if dialect == DialectExtended && f.Serial != expectSerial {
			continue
		}
		return f, nil
	}
	return Frame{}, newErr(KindTimeout, "udp receive exhausted %d attempts for %s", cfg.UDPRecvAttempts, addr)
}
