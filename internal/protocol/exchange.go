// internal/protocol/exchange.go
package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/transport"
)

// Exchanger runs one request/response conversation on a half-duplex
// link, with a settle delay before each write and a retry budget for
// recoverable failures. Link errors abort immediately.
type Exchanger struct {
	Link    transport.Link
	Settle  time.Duration
	Retries int
}

// Exchange drains the link, writes req and collects the response via
// read. Timeouts and corrupt frames consume retries; transport link
// errors and context cancellation do not.
func (e *Exchanger) Exchange(ctx context.Context, req []byte, read func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= e.Retries; attempt++ {
		if !sleep(ctx, e.Settle) {
			return nil, ctx.Err()
		}

		e.Link.Drain()

		if err := e.Link.Write(ctx, req); err != nil {
			if errors.Is(err, transport.ErrLink) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		resp, err := read(ctx)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, transport.ErrLink) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
