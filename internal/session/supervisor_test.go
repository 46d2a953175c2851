// internal/session/supervisor_test.go
package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/config"
	"github.com/tamzrod/bms-telemetry/internal/poller"
	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/reading"
	"github.com/tamzrod/bms-telemetry/internal/transport"
)

// fakeDriver serves one pack and can start failing after a number of
// successful reads.
type fakeDriver struct {
	reads    int
	failFrom int // fail once this many reads succeeded; 0 means never
}

func (f *fakeDriver) Family() protocol.Family { return protocol.FamilyPaceLV }

func (f *fakeDriver) Enumerate(ctx context.Context) ([]int, error) {
	return []int{1}, nil
}

func (f *fakeDriver) ReadPack(ctx context.Context, addr int) (reading.Pack, error) {
	if f.failFrom > 0 && f.reads >= f.failFrom {
		return reading.Pack{}, fmt.Errorf("%w: carrier lost", transport.ErrLink)
	}
	f.reads++
	return reading.Pack{Address: addr, VoltageV: 53.2, CurrentA: 1.5}, nil
}

func linkConfig() config.LinkConfig {
	return config.LinkConfig{
		ID:       "bank-a",
		Protocol: "pace-lv",
		Poll:     config.PollConfig{IntervalMs: 1000, ReconnectDelayMs: 1000},
	}
}

func buildFor(d protocol.Driver, closes *int) BuildFunc {
	return func() (*poller.Controller, func(), error) {
		ctrl, err := poller.New(poller.Config{
			LinkID:   "bank-a",
			Interval: time.Second,
		}, d, nil)
		if err != nil {
			return nil, nil, err
		}
		return ctrl, func() { *closes++ }, nil
	}
}

// sleepRecorder replaces the supervisor's sleep: it records every
// requested wait, allows a fixed number through, then cancels the run.
type sleepRecorder struct {
	allow  int
	cancel context.CancelFunc
	waits  []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	r.waits = append(r.waits, d)
	if len(r.waits) > r.allow {
		r.cancel()
		return false
	}
	return true
}

func stopAfter(n int, cancel context.CancelFunc) func(context.Context, time.Duration) bool {
	return (&sleepRecorder{allow: n, cancel: cancel}).sleep
}

func TestSupervisor_PublishesSnapshots(t *testing.T) {
	var snaps []reading.Snapshot
	var closes int
	s := New(Config{
		Link:       linkConfig(),
		Build:      buildFor(&fakeDriver{}, &closes),
		OnSnapshot: func(snap reading.Snapshot) { snaps = append(snaps, snap) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = stopAfter(0, cancel)

	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}

	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if !snaps[0].LinkUp {
		t.Fatal("snapshot not marked link-up")
	}
	if snaps[0].LinkID != "bank-a" {
		t.Fatalf("link id = %q", snaps[0].LinkID)
	}

	latest, ok := s.Latest()
	if !ok || latest.TotalCurrentA != 1.5 {
		t.Fatalf("Latest = %+v ok=%v", latest, ok)
	}
	if got := s.State(); got != StateDisconnected {
		t.Fatalf("state after Run = %v", got)
	}
	if closes != 1 {
		t.Fatalf("transport closed %d times, want 1", closes)
	}
}

func TestSupervisor_RetriesFailedConnect(t *testing.T) {
	var snaps []reading.Snapshot
	var closes int
	attempts := 0
	inner := buildFor(&fakeDriver{}, &closes)
	s := New(Config{
		Link: linkConfig(),
		Build: func() (*poller.Controller, func(), error) {
			attempts++
			if attempts == 1 {
				return nil, nil, fmt.Errorf("%w: port busy", transport.ErrLink)
			}
			return inner()
		},
		OnSnapshot: func(snap reading.Snapshot) { snaps = append(snaps, snap) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = stopAfter(1, cancel) // allow one reconnect wait

	s.Run(ctx)

	if attempts != 2 {
		t.Fatalf("build attempts = %d, want 2", attempts)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
}

func TestSupervisor_MarksSnapshotDownOnLinkLoss(t *testing.T) {
	var snaps []reading.Snapshot
	var closes int
	s := New(Config{
		Link:       linkConfig(),
		Build:      buildFor(&fakeDriver{failFrom: 1}, &closes),
		OnSnapshot: func(snap reading.Snapshot) { snaps = append(snaps, snap) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = stopAfter(1, cancel) // one poll interval, then stop in backoff

	s.Run(ctx)

	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	if !snaps[0].LinkUp {
		t.Fatal("first snapshot should be link-up")
	}
	if snaps[1].LinkUp {
		t.Fatal("outage snapshot should be link-down")
	}
	if snaps[1].TotalCurrentA != snaps[0].TotalCurrentA {
		t.Fatal("outage snapshot lost the last readings")
	}

	latest, ok := s.Latest()
	if !ok || latest.LinkUp {
		t.Fatalf("Latest after outage = %+v ok=%v", latest, ok)
	}
	if closes != 1 {
		t.Fatalf("transport closed %d times, want 1", closes)
	}
}

func TestSupervisor_BackoffUsesConfiguredDelay(t *testing.T) {
	lc := linkConfig()
	lc.Poll.IntervalMs = 750
	lc.Poll.ReconnectDelayMs = 2250

	var closes int
	s := New(Config{
		Link:  lc,
		Build: buildFor(&fakeDriver{failFrom: 1}, &closes),
	})

	ctx, cancel := context.WithCancel(context.Background())
	rec := &sleepRecorder{allow: 1, cancel: cancel}
	s.sleep = rec.sleep

	s.Run(ctx)

	// One poll interval, then the link drops and the reconnect wait runs.
	if len(rec.waits) != 2 {
		t.Fatalf("waits = %v, want interval then backoff", rec.waits)
	}
	if rec.waits[0] != 750*time.Millisecond {
		t.Fatalf("poll wait = %v, want 750ms", rec.waits[0])
	}
	if rec.waits[1] != lc.Poll.ReconnectDelay() {
		t.Fatalf("backoff wait = %v, want %v", rec.waits[1], lc.Poll.ReconnectDelay())
	}
}

func TestSupervisor_LatestIsACopy(t *testing.T) {
	var closes int
	s := New(Config{
		Link:  linkConfig(),
		Build: buildFor(&fakeDriver{}, &closes),
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = stopAfter(0, cancel)
	s.Run(ctx)

	a, ok := s.Latest()
	if !ok {
		t.Fatal("no snapshot")
	}
	a.Packs[0].VoltageV = 0

	b, _ := s.Latest()
	if b.Packs[0].VoltageV != 53.2 {
		t.Fatal("mutating a returned snapshot leaked into the supervisor")
	}
}
