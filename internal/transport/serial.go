// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// pollInterval is the per-Read timeout on the port. Deadlines are
// enforced by looping short reads, since the port timeout is fixed
// at open time.
const pollInterval = 50 * time.Millisecond

type serialLink struct {
	port    serial.Port
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func openSerial(cfg Config) (Link, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  pollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLink, cfg.Address, err)
	}
	return &serialLink{port: port, timeout: cfg.Timeout}, nil
}

func (l *serialLink) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := l.port.Write(p); err != nil {
		return fmt.Errorf("%w: write: %v", ErrLink, err)
	}
	return nil
}

func (l *serialLink) ReadFull(ctx context.Context, p []byte) error {
	deadline := time.Now().Add(l.timeout)

	n := 0
	for n < len(p) {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := l.port.Read(p[n:])
		n += m
		if err != nil {
			if err == serial.ErrTimeout {
				if time.Now().After(deadline) {
					return fmt.Errorf("%w: read %d/%d bytes", ErrTimeout, n, len(p))
				}
				continue
			}
			return fmt.Errorf("%w: read: %v", ErrLink, err)
		}
	}
	return nil
}

func (l *serialLink) ReadUntil(ctx context.Context, delim byte, max int) ([]byte, error) {
	deadline := time.Now().Add(l.timeout)

	var out []byte
	var one [1]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, err := l.port.Read(one[:])
		if m == 1 {
			out = append(out, one[0])
			if one[0] == delim {
				return out, nil
			}
			if len(out) >= max {
				return nil, fmt.Errorf("%w: no 0x%02X within %d bytes", ErrOverflow, delim, max)
			}
			continue
		}
		if err != nil && err != serial.ErrTimeout {
			return nil, fmt.Errorf("%w: read: %v", ErrLink, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: read %d bytes without delimiter", ErrTimeout, len(out))
		}
	}
}

func (l *serialLink) Drain() {
	var scratch [256]byte
	for {
		n, err := l.port.Read(scratch[:])
		if n == 0 || err != nil {
			return
		}
	}
}

func (l *serialLink) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.port.Close()
	})
	return l.closeErr
}
