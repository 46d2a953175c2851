// internal/transport/ws.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsLink adapts a websocket serial bridge. Each message carries an
// arbitrary chunk of the byte stream; the link re-linearizes them.
type wsLink struct {
	conn    *websocket.Conn
	timeout time.Duration
	buf     []byte

	closeOnce sync.Once
	closeErr  error
}

func openWebSocket(cfg Config) (Link, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.Dial(cfg.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrLink, cfg.Address, err)
	}
	return &wsLink{conn: conn, timeout: cfg.Timeout}, nil
}

func (l *wsLink) classify(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrLink, op, err)
}

func (l *wsLink) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.conn.SetWriteDeadline(time.Now().Add(l.timeout))
	if err := l.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return l.classify("write", err)
	}
	return nil
}

// fill blocks for the next bridge message and appends it to buf.
func (l *wsLink) fill(deadline time.Time) error {
	l.conn.SetReadDeadline(deadline)
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		return l.classify("read", err)
	}
	l.buf = append(l.buf, data...)
	return nil
}

func (l *wsLink) ReadFull(ctx context.Context, p []byte) error {
	deadline := time.Now().Add(l.timeout)
	for len(l.buf) < len(p) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.fill(deadline); err != nil {
			return err
		}
	}
	copy(p, l.buf[:len(p)])
	l.buf = l.buf[len(p):]
	return nil
}

func (l *wsLink) ReadUntil(ctx context.Context, delim byte, max int) ([]byte, error) {
	deadline := time.Now().Add(l.timeout)
	scanned := 0
	for {
		for i := scanned; i < len(l.buf); i++ {
			if l.buf[i] == delim {
				out := append([]byte(nil), l.buf[:i+1]...)
				l.buf = l.buf[i+1:]
				return out, nil
			}
			if i+1 >= max {
				return nil, fmt.Errorf("%w: no 0x%02X within %d bytes", ErrOverflow, delim, max)
			}
		}
		scanned = len(l.buf)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.fill(deadline); err != nil {
			return nil, err
		}
	}
}

// Drain drops buffered bytes only. A deliberately short network read
// would poison the websocket connection state, so bytes still in
// flight are left to the next read's framing checks.
func (l *wsLink) Drain() {
	l.buf = nil
}

func (l *wsLink) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}
