// internal/protocol/tdt/driver.go

// Package tdt implements the TDT dialect. TDT controllers speak the
// same SOI-framed ASCII-hex protocol and LV-V1 payload layout as Pace,
// but answer per-pack requests with the pack number echoed in the
// payload, and never report SOC or SOH directly.
package tdt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/protocol/pace"
	"github.com/tamzrod/bms-telemetry/internal/reading"
	"github.com/tamzrod/bms-telemetry/internal/transport"
)

const cid1 = 0x46

// Config parameterizes a TDT driver.
type Config struct {
	Link     transport.Link
	MaxPacks int
	Settle   time.Duration
	Retries  int
	Logger   *slog.Logger
}

// Driver speaks TDT over one link.
type Driver struct {
	ex       *protocol.Exchanger
	maxPacks int
	log      *slog.Logger
}

func New(cfg Config) *Driver {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		ex: &protocol.Exchanger{
			Link:    cfg.Link,
			Settle:  cfg.Settle,
			Retries: cfg.Retries,
		},
		maxPacks: cfg.MaxPacks,
		log:      log,
	}
}

func (d *Driver) Family() protocol.Family { return protocol.FamilyTDT }

func (d *Driver) exchange(ctx context.Context, req []byte) (protocol.HexFrame, error) {
	var frame protocol.HexFrame
	_, err := d.ex.Exchange(ctx, req, func(ctx context.Context) ([]byte, error) {
		raw, err := d.ex.Link.ReadUntil(ctx, protocol.EOI, protocol.MaxHexFrame)
		if err != nil {
			return nil, err
		}
		f, err := protocol.DecodeHexFrame(raw)
		if err != nil {
			return nil, err
		}
		if f.CID1 != cid1 {
			return nil, fmt.Errorf("%w: CID1=0x%02X", protocol.ErrFunctionMismatch, f.CID1)
		}
		if f.CID2 != 0 {
			return nil, fmt.Errorf("%w: RTN=0x%02X", protocol.ErrResponseCode, f.CID2)
		}
		frame = f
		return raw, nil
	})
	return frame, err
}

// Enumerate asks the master for the chained pack quantity.
func (d *Driver) Enumerate(ctx context.Context) ([]int, error) {
	frame, err := d.exchange(ctx, pace.PackCountRequest())
	if err != nil {
		return nil, err
	}
	if len(frame.Info) < 1 {
		return nil, fmt.Errorf("%w: empty pack quantity payload", protocol.ErrFrameLength)
	}

	n := int(frame.Info[0])
	if d.maxPacks > 0 && n > d.maxPacks {
		d.log.Warn("pack quantity exceeds configured maximum", "count", n, "max", d.maxPacks)
		n = d.maxPacks
	}

	addrs := make([]int, 0, n)
	for a := 1; a <= n; a++ {
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// ReadPack fetches one pack. The controller echoes the requested pack
// number where Pace reports a pack count; a mismatch means the reply
// belongs to a different pack.
func (d *Driver) ReadPack(ctx context.Context, addr int) (reading.Pack, error) {
	frame, err := d.exchange(ctx, pace.AnalogRequest(addr))
	if err != nil {
		return reading.Pack{}, err
	}
	if len(frame.Info) < 2 {
		return reading.Pack{}, fmt.Errorf("%w: analog payload too short", protocol.ErrFrameLength)
	}
	if echo := int(frame.Info[1]); echo != addr {
		return reading.Pack{}, fmt.Errorf("%w: pack echo %d, want %d", protocol.ErrFunctionMismatch, echo, addr)
	}

	// The count byte carries the echo; exactly one pack follows.
	info := append([]byte(nil), frame.Info...)
	info[1] = 0x01
	packs, err := pace.ParseAnalog(info, true)
	if err != nil {
		return reading.Pack{}, err
	}
	if len(packs) == 0 {
		return reading.Pack{}, fmt.Errorf("%w: analog payload carries no packs", protocol.ErrFrameLength)
	}
	p := packs[0]
	p.Address = addr

	frame, err = d.exchange(ctx, pace.WarnRequest(addr))
	if err != nil {
		return reading.Pack{}, err
	}
	flagSets, err := pace.ParseWarn(frame.Info, true)
	if err != nil {
		return reading.Pack{}, err
	}
	if len(flagSets) > 0 {
		p.Alarms = flagSets[0].Slice()
	}

	return p, nil
}
