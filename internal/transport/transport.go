// internal/transport/transport.go

// Package transport provides half-duplex byte links to BMS hardware.
// A link carries one request/response conversation at a time; framing
// and checksums belong to the protocol layer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout reports that a read or write deadline expired.
	// Timeouts are recoverable: the request may be retried.
	ErrTimeout = errors.New("transport: timeout")

	// ErrLink reports that the underlying connection failed.
	// Link errors are not recoverable on this link instance.
	ErrLink = errors.New("transport: link failure")

	// ErrOverflow reports a delimiter read that ran past its byte
	// limit. The link survives; the request may be retried.
	ErrOverflow = errors.New("transport: delimiter not found")
)

// Link is a byte-stream conversation with a BMS master.
type Link interface {
	// Write sends the full request or fails.
	Write(ctx context.Context, p []byte) error

	// ReadFull reads exactly len(p) bytes or fails.
	ReadFull(ctx context.Context, p []byte) error

	// ReadUntil reads up to and including delim, failing once max bytes
	// arrive without it.
	ReadUntil(ctx context.Context, delim byte, max int) ([]byte, error)

	// Drain discards bytes left over from an earlier conversation.
	Drain()

	// Close is idempotent.
	Close() error
}

// Config selects and parameterizes a link.
type Config struct {
	Kind     string // usb-serial | serial-over-tcp | serial-over-websocket
	Address  string
	BaudRate int
	Timeout  time.Duration
}

// Open dials the configured link.
func Open(cfg Config) (Link, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	switch cfg.Kind {
	case "usb-serial":
		return openSerial(cfg)
	case "serial-over-tcp":
		return openTCP(cfg)
	case "serial-over-websocket":
		return openWebSocket(cfg)
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", cfg.Kind)
	}
}
