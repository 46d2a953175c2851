// internal/session/supervisor.go

// Package session supervises the lifecycle of one link: open the
// transport, enumerate the pack chain, poll until the link fails, then
// back off and start over with a fresh connection. The last snapshot
// survives an outage, republished with the link flagged down.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/config"
	"github.com/tamzrod/bms-telemetry/internal/poller"
	"github.com/tamzrod/bms-telemetry/internal/reading"
)

// BuildFunc opens a fresh transport and read path for one connection
// attempt. The closer releases the transport when the attempt ends.
type BuildFunc func() (*poller.Controller, func(), error)

// Config parameterizes one supervisor.
type Config struct {
	Link config.LinkConfig

	// Build overrides the default connection factory. Every reconnect
	// calls it again, so each attempt starts from a closed transport.
	Build BuildFunc

	// OnSnapshot receives every published snapshot, including the
	// link-down republication after an outage. Called from the
	// supervisor goroutine.
	OnSnapshot func(reading.Snapshot)

	Logger *slog.Logger
}

// Supervisor runs one link's connect/poll/reconnect loop.
type Supervisor struct {
	linkID     string
	build      BuildFunc
	onSnapshot func(reading.Snapshot)
	interval   time.Duration
	reconnect  time.Duration
	log        *slog.Logger

	// sleep is swapped out by tests to drive the loop synchronously.
	sleep func(ctx context.Context, d time.Duration) bool

	mu     sync.RWMutex
	state  State
	latest *reading.Snapshot
}

func New(cfg Config) *Supervisor {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	build := cfg.Build
	if build == nil {
		lc := cfg.Link
		build = func() (*poller.Controller, func(), error) {
			return poller.Build(lc, log)
		}
	}
	return &Supervisor{
		linkID:     cfg.Link.ID,
		build:      build,
		onSnapshot: cfg.OnSnapshot,
		interval:   cfg.Link.Poll.Interval(),
		reconnect:  cfg.Link.Poll.ReconnectDelay(),
		log:        log.With("link", cfg.Link.ID),
		sleep:      sleepCtx,
	}
}

func (s *Supervisor) LinkID() string { return s.linkID }

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Latest returns a copy of the most recent snapshot, if any exists.
func (s *Supervisor) Latest() (reading.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return reading.Snapshot{}, false
	}
	return s.latest.Clone(), true
}

// Run drives the lifecycle until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	for {
		s.setState(StateConnecting)
		ctrl, closer, err := s.build()
		if err != nil {
			s.log.Warn("connect failed", "err", err)
			if !s.backOff(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.setState(StateEnumerating)
		if err := ctrl.Enumerate(ctx); err != nil {
			closer()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("enumeration failed", "err", err)
			if !s.backOff(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.setState(StatePolling)
		s.log.Info("polling", "packs", len(ctrl.Addresses()))
		err = s.poll(ctx, ctrl)
		closer()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.log.Warn("link lost", "err", err)
		if !s.backOff(ctx) {
			return ctx.Err()
		}
	}
}

// poll cycles until a fatal read error or cancellation.
func (s *Supervisor) poll(ctx context.Context, ctrl *poller.Controller) error {
	for {
		snap, err := ctrl.RunCycle(ctx)
		if err != nil {
			return err
		}
		s.publish(snap)

		if !s.sleep(ctx, s.interval) {
			return ctx.Err()
		}
	}
}

// backOff republishes the last snapshot flagged down, then waits out
// the reconnect delay. Returns false when the context ended first.
func (s *Supervisor) backOff(ctx context.Context) bool {
	s.markDown()
	s.setState(StateReconnecting)
	return s.sleep(ctx, s.reconnect)
}

func (s *Supervisor) publish(snap reading.Snapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()

	if s.onSnapshot != nil {
		s.onSnapshot(snap.Clone())
	}
}

func (s *Supervisor) markDown() {
	s.mu.Lock()
	if s.latest == nil || !s.latest.LinkUp {
		s.mu.Unlock()
		return
	}
	down := s.latest.Clone()
	down.LinkUp = false
	s.latest = &down
	s.mu.Unlock()

	if s.onSnapshot != nil {
		s.onSnapshot(down.Clone())
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
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
