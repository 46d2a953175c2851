// internal/transport/conn.go
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// connLink adapts a net.Conn, covering serial-over-tcp bridges.
type connLink struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func openTCP(cfg Config) (Link, error) {
	conn, err := net.DialTimeout("tcp", cfg.Address, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrLink, cfg.Address, err)
	}
	return newConnLink(conn, cfg.Timeout), nil
}

func newConnLink(conn net.Conn, timeout time.Duration) *connLink {
	return &connLink{
		conn:    conn,
		r:       bufio.NewReader(conn),
		timeout: timeout,
	}
}

func (l *connLink) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(l.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

func classify(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrLink, op, err)
}

func (l *connLink) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.conn.SetWriteDeadline(l.deadline(ctx))
	if _, err := l.conn.Write(p); err != nil {
		return classify("write", err)
	}
	return nil
}

func (l *connLink) ReadFull(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.conn.SetReadDeadline(l.deadline(ctx))
	if _, err := io.ReadFull(l.r, p); err != nil {
		return classify("read", err)
	}
	return nil
}

func (l *connLink) ReadUntil(ctx context.Context, delim byte, max int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.conn.SetReadDeadline(l.deadline(ctx))

	var out []byte
	for {
		b, err := l.r.ReadByte()
		if err != nil {
			return nil, classify("read", err)
		}
		out = append(out, b)
		if b == delim {
			return out, nil
		}
		if len(out) >= max {
			return nil, fmt.Errorf("%w: no 0x%02X within %d bytes", ErrOverflow, delim, max)
		}
	}
}

func (l *connLink) Drain() {
	// Buffered leftovers first, then whatever is already on the wire.
	if n := l.r.Buffered(); n > 0 {
		l.r.Discard(n)
	}
	l.conn.SetReadDeadline(time.Now().Add(5 * time.Millisecond))
	var scratch [256]byte
	for {
		n, err := l.conn.Read(scratch[:])
		if n == 0 || err != nil {
			return
		}
	}
}

func (l *connLink) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}
