// internal/protocol/pace/driver.go
package pace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/reading"
	"github.com/tamzrod/bms-telemetry/internal/transport"
)

// Config parameterizes a Pace driver.
type Config struct {
	Link     transport.Link
	V1       bool // LV-V1: derive SOC/SOH from capacities
	MaxPacks int
	Settle   time.Duration
	Retries  int
	Logger   *slog.Logger
}

// Driver speaks Pace LV / LV-V1 over one link.
type Driver struct {
	ex       *protocol.Exchanger
	v1       bool
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
		v1:       cfg.V1,
		maxPacks: cfg.MaxPacks,
		log:      log,
	}
}

func (d *Driver) Family() protocol.Family {
	if d.v1 {
		return protocol.FamilyPaceLVV1
	}
	return protocol.FamilyPaceLV
}

// exchange runs one request and returns the decoded, validated frame.
// Decoding happens inside the retry loop so corrupt frames consume the
// retry budget.
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

// Enumerate asks the master for the chained pack count; packs answer
// on addresses 1..n.
func (d *Driver) Enumerate(ctx context.Context) ([]int, error) {
	frame, err := d.exchange(ctx, PackCountRequest())
	if err != nil {
		return nil, err
	}
	if len(frame.Info) < 1 {
		return nil, fmt.Errorf("%w: empty pack count payload", protocol.ErrFrameLength)
	}

	n := int(frame.Info[0])
	if d.maxPacks > 0 && n > d.maxPacks {
		d.log.Warn("pack count exceeds configured maximum", "count", n, "max", d.maxPacks)
		n = d.maxPacks
	}

	addrs := make([]int, 0, n)
	for a := 1; a <= n; a++ {
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// ReadPack fetches the analog values and warning state of one pack.
func (d *Driver) ReadPack(ctx context.Context, addr int) (reading.Pack, error) {
	frame, err := d.exchange(ctx, AnalogRequest(addr))
	if err != nil {
		return reading.Pack{}, err
	}
	packs, err := ParseAnalog(frame.Info, d.v1)
	if err != nil {
		return reading.Pack{}, err
	}
	if len(packs) == 0 {
		return reading.Pack{}, fmt.Errorf("%w: analog payload carries no packs", protocol.ErrFrameLength)
	}
	p := packs[0]
	p.Address = addr

	frame, err = d.exchange(ctx, WarnRequest(addr))
	if err != nil {
		return reading.Pack{}, err
	}
	flagSets, err := ParseWarn(frame.Info, d.v1)
	if err != nil {
		return reading.Pack{}, err
	}
	if len(flagSets) > 0 {
		p.Alarms = flagSets[0].Slice()
	}

	return p, nil
}
