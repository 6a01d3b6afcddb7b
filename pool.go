package melsec

import (
	"context"
	"net"
	"sync"
	"time"
)

// pooledConn is one idle-tracked TCP connection to a target (§3 Pooled
// Connection, §4.6).
type pooledConn struct {
	conn     net.Conn
	lastUsed time.Time
}

// tcpPool is a per-target connection pool. Each target's slot is guarded
// by its own mutex so that requests to different targets never block each
// other, mirroring the teacher's per-connection mutex while replacing its
// container/list broadcast fan-out: MC's per-target serialization (§5)
// means only one request is ever outstanding per target, so a single
// reader suffices and the broadcast machinery in connection.go's `network`
// type has nothing to multiplex.
type tcpPool struct {
	mu      sync.Mutex
	targets map[string]*targetSlot
}

type targetSlot struct {
	mu   mutex
	conn *pooledConn
}

func newTCPPool() *tcpPool {
	return &tcpPool{targets: make(map[string]*targetSlot)}
}

func (p *tcpPool) slot(addr string) *targetSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.targets[addr]
	if !ok {
		s = &targetSlot{mu: newMutex()}
		p.targets[addr] = s
	}
	return s
}

// withConn acquires (dialing if necessary) the pooled connection for addr
// and runs fn with it held, returning the connection to the pool unless fn
// reports that it should be discarded.
func (p *tcpPool) withConn(ctx context.Context, addr string, dialTimeout time.Duration, fn func(net.Conn) (discard bool, err error)) error {
	slot := p.slot(addr)
	if err := slot.mu.lock(ctx); err != nil {
		return wrapErr(KindTimeout, err, "acquiring connection slot for %s", addr)
	}
	defer slot.mu.unlock()

	cfg := GetRuntimeConfig()
	if slot.conn != nil && time.Since(slot.conn.lastUsed) > cfg.ConnIdleWindow {
		slot.conn.conn.Close()
		slot.conn = nil
	}
	if slot.conn == nil {
		d := net.Dialer{Timeout: dialTimeout}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return wrapErr(KindIO, err, "dialing %s", addr)
		}
		slot.conn = &pooledConn{conn: c}
	}

	discard, err := fn(slot.conn.conn)
	if discard || err != nil {
		slot.conn.conn.Close()
		slot.conn = nil
		return err
	}
	slot.conn.lastUsed = time.Now()
	return nil
}

// closeAll closes every pooled connection, used on client Close.
func (p *tcpPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.targets {
		if s.conn != nil {
			s.conn.conn.Close()
			s.conn = nil
		}
	}
}

// readFrame reads bytes from conn until DetectFrame reports a complete
// frame (or an error), then decodes it. Bytes that do not start with an
// Extended or Compact response subheader are read as a Bare frame; when
// DetectFrame rejects the buffered bytes (a data_len below the minimum),
// they are dropped one byte at a time to resynchronize the stream with the
// next frame boundary (§4.6's "stream resync"). A fully parsed Extended-dialect frame whose
// serial doesn't match expectSerial is a stray reply sharing the
// connection (e.g. to an abandoned or retried earlier request) and is
// discarded the same way sendUDP discards a serial mismatch; the read
// loop continues for the next frame rather than handing the caller the
// wrong answer (§4.7).
func readFrame(ctx context.Context, conn net.Conn, deadline time.Time, expectSerial uint16) (Frame, error) {
	conn.SetReadDeadline(deadline)
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 512)
	for {
		need, dialect, err := DetectFrame(buf)
		if err != nil {
			if len(buf) > 0 {
				if GetRuntimeConfig().DumpOnError {
					Logger().Warn("dropping byte to resynchronize", "remote", conn.RemoteAddr(), "byte", buf[0], "err", err)
				}
				buf = buf[1:]
				continue
			}
			return Frame{}, err
		}
		if need > 0 && len(buf) >= need {
			f, err := ParseFrame(buf[:need], dialect)
			if err != nil {
				return Frame{}, err
			}
			buf = buf[need:]
			if dialect == DialectExtended && f.Serial != expectSerial {
				if GetRuntimeConfig().DumpOnError {
					Logger().Warn("discarding frame with mismatched serial", "remote", conn.RemoteAddr(), "want", expectSerial, "got", f.Serial)
				}
				continue
			}
			return f, nil
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return Frame{}, wrapErr(KindIO, err, "reading frame from %s", conn.RemoteAddr())
		}
	}
}
