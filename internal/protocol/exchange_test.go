// internal/protocol/exchange_test.go
package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/tamzrod/bms-telemetry/internal/transport"
)

type fakeLink struct {
	writes   int
	drains   int
	writeErr error
}

func (f *fakeLink) Write(ctx context.Context, p []byte) error {
	f.writes++
	return f.writeErr
}

func (f *fakeLink) ReadFull(ctx context.Context, p []byte) error { return nil }

func (f *fakeLink) ReadUntil(ctx context.Context, delim byte, max int) ([]byte, error) {
	return nil, nil
}

func (f *fakeLink) Drain() { f.drains++ }

func (f *fakeLink) Close() error { return nil }

func TestExchange_Success(t *testing.T) {
	link := &fakeLink{}
	ex := &Exchanger{Link: link, Retries: 2}

	got, err := ex.Exchange(context.Background(), []byte{1}, func(ctx context.Context) ([]byte, error) {
		return []byte{0xAA}, nil
	})
	if err != nil {
		t.Fatalf("Exchange err=%v", err)
	}
	if got[0] != 0xAA {
		t.Fatalf("Exchange got % X", got)
	}
	if link.writes != 1 || link.drains != 1 {
		t.Fatalf("writes=%d drains=%d", link.writes, link.drains)
	}
}

func TestExchange_RetriesCorruptFrame(t *testing.T) {
	link := &fakeLink{}
	ex := &Exchanger{Link: link, Retries: 2}

	calls := 0
	got, err := ex.Exchange(context.Background(), []byte{1}, func(ctx context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, ErrChecksum
		}
		return []byte{0x01}, nil
	})
	if err != nil {
		t.Fatalf("Exchange err=%v", err)
	}
	if got == nil || calls != 3 {
		t.Fatalf("calls=%d got=%v", calls, got)
	}
	// Every attempt drains before writing.
	if link.drains != 3 {
		t.Fatalf("drains=%d", link.drains)
	}
}

func TestExchange_BudgetExhausted(t *testing.T) {
	ex := &Exchanger{Link: &fakeLink{}, Retries: 1}

	_, err := ex.Exchange(context.Background(), []byte{1}, func(ctx context.Context) ([]byte, error) {
		return nil, transport.ErrTimeout
	})
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExchange_LinkErrorAbortsImmediately(t *testing.T) {
	link := &fakeLink{writeErr: transport.ErrLink}
	ex := &Exchanger{Link: link, Retries: 5}

	_, err := ex.Exchange(context.Background(), []byte{1}, func(ctx context.Context) ([]byte, error) {
		t.Fatal("read must not run after a failed write")
		return nil, nil
	})
	if !errors.Is(err, transport.ErrLink) {
		t.Fatalf("expected ErrLink, got %v", err)
	}
	if link.writes != 1 {
		t.Fatalf("writes=%d", link.writes)
	}
}

func TestExchange_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &Exchanger{Link: &fakeLink{}, Retries: 5}
	_, err := ex.Exchange(ctx, []byte{1}, func(ctx context.Context) ([]byte, error) {
		return nil, ErrChecksum
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
