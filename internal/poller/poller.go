// internal/poller/poller.go

// Package poller runs the per-link read cycle: enumerate the pack
// chain once, then read every pack each interval and fold the results
// into a snapshot. A pack that misses one cycle keeps its last good
// reading, marked stale; only a cycle with zero fresh packs counts as
// a link outage.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/reading"
	"github.com/tamzrod/bms-telemetry/internal/transport"
)

var (
	// ErrNoPacks reports an enumeration that found nothing to poll.
	ErrNoPacks = errors.New("poller: no packs enumerated")

	// ErrLinkDown reports a cycle in which every pack read failed.
	ErrLinkDown = errors.New("poller: all pack reads failed")
)

// Config parameterizes one poll controller.
type Config struct {
	LinkID string

	// Interval is the nominal cycle spacing; energy accumulation in the
	// derived fields integrates over it.
	Interval time.Duration

	// EnumerateRetries is the number of additional enumeration attempts
	// after the first one fails or comes back empty.
	EnumerateRetries int
}

// Controller owns the pack arena of one link.
type Controller struct {
	cfg    Config
	driver protocol.Driver
	log    *slog.Logger

	addrs []int
	arena []reading.Pack

	now func() time.Time
}

func New(cfg Config, driver protocol.Driver, log *slog.Logger) (*Controller, error) {
	if cfg.LinkID == "" {
		return nil, fmt.Errorf("poller: link id is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poller: interval must be positive, got %v", cfg.Interval)
	}
	if driver == nil {
		return nil, fmt.Errorf("poller: driver is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		driver: driver,
		log:    log.With("link", cfg.LinkID),
		now:    time.Now,
	}, nil
}

// Addresses returns the enumerated pack chain, in discovery order.
func (c *Controller) Addresses() []int {
	return append([]int(nil), c.addrs...)
}

// Enumerate discovers the pack chain and sizes the arena. It retries
// within the configured budget; link failure and cancellation abort.
func (c *Controller) Enumerate(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.EnumerateRetries; attempt++ {
		addrs, err := c.driver.Enumerate(ctx)
		if err != nil {
			if isFatal(ctx, err) {
				return err
			}
			c.log.Warn("enumeration attempt failed", "attempt", attempt, "err", err)
			lastErr = err
			continue
		}
		if len(addrs) == 0 {
			c.log.Warn("enumeration found no packs", "attempt", attempt)
			lastErr = ErrNoPacks
			continue
		}

		c.addrs = addrs
		c.arena = make([]reading.Pack, len(addrs))
		for i, a := range addrs {
			c.arena[i].Address = a
		}
		c.log.Info("pack chain enumerated", "family", c.driver.Family(), "packs", len(addrs))
		return nil
	}
	if lastErr == nil {
		lastErr = ErrNoPacks
	}
	return lastErr
}

// RunCycle reads every enumerated pack once and aggregates the arena.
// Packs that fail to read keep their previous values with Fresh unset.
func (c *Controller) RunCycle(ctx context.Context) (reading.Snapshot, error) {
	if len(c.addrs) == 0 {
		return reading.Snapshot{}, ErrNoPacks
	}

	fresh := 0
	for i, addr := range c.addrs {
		p, err := c.driver.ReadPack(ctx, addr)
		if err != nil {
			if isFatal(ctx, err) {
				return reading.Snapshot{}, err
			}
			c.log.Warn("pack read failed, keeping stale values", "pack", addr, "err", err)
			c.arena[i].Fresh = false
			continue
		}

		p.Fresh = true
		p.Taken = c.now()
		p.Derive(c.cfg.Interval)
		c.arena[i] = p
		fresh++
	}

	if fresh == 0 {
		return reading.Snapshot{}, ErrLinkDown
	}

	// A slot that has never produced a reading carries no values worth
	// aggregating; it joins the snapshot after its first good read.
	polled := make([]reading.Pack, 0, len(c.arena))
	for _, p := range c.arena {
		if p.Taken.IsZero() {
			continue
		}
		polled = append(polled, p)
	}

	snap := reading.Aggregate(c.cfg.LinkID, polled, c.now())
	snap.LinkUp = true
	return snap, nil
}

func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, transport.ErrLink)
}
