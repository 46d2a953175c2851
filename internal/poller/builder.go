// internal/poller/builder.go
package poller

import (
	"fmt"
	"log/slog"

	"github.com/tamzrod/bms-telemetry/internal/config"
	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/protocol/jk"
	"github.com/tamzrod/bms-telemetry/internal/protocol/pace"
	"github.com/tamzrod/bms-telemetry/internal/protocol/tdt"
	"github.com/tamzrod/bms-telemetry/internal/transport"
)

// NewDriver instantiates the wire driver for one configured link.
func NewDriver(link transport.Link, lc config.LinkConfig, log *slog.Logger) (protocol.Driver, error) {
	fam, err := protocol.ParseFamily(lc.Protocol)
	if err != nil {
		return nil, err
	}

	switch fam {
	case protocol.FamilyPaceLV, protocol.FamilyPaceLVV1:
		return pace.New(pace.Config{
			Link:     link,
			V1:       fam == protocol.FamilyPaceLVV1,
			MaxPacks: lc.Poll.MaxPacks,
			Settle:   lc.Poll.Settle(),
			Retries:  lc.Poll.RequestRetries,
			Logger:   log,
		}), nil
	case protocol.FamilyTDT:
		return tdt.New(tdt.Config{
			Link:     link,
			MaxPacks: lc.Poll.MaxPacks,
			Settle:   lc.Poll.Settle(),
			Retries:  lc.Poll.RequestRetries,
			Logger:   log,
		}), nil
	case protocol.FamilyJK:
		return jk.New(jk.Config{
			Link:         link,
			FirstAddress: lc.Poll.FirstAddress,
			MaxPacks:     lc.Poll.MaxPacks,
			CellCount:    lc.Poll.CellCount,
			Settle:       lc.Poll.Settle(),
			Retries:      lc.Poll.RequestRetries,
			Logger:       log,
		}), nil
	}
	return nil, fmt.Errorf("poller: no driver for family %q", fam)
}

// Build opens the link's transport and wires the full read path. The
// returned closer releases the transport; the caller owns both.
func Build(lc config.LinkConfig, log *slog.Logger) (*Controller, func(), error) {
	link, err := transport.Open(transport.Config{
		Kind:     lc.Transport.Kind,
		Address:  lc.Transport.Address,
		BaudRate: lc.Transport.BaudRate,
		Timeout:  lc.Transport.Timeout(),
	})
	if err != nil {
		return nil, nil, err
	}

	drv, err := NewDriver(link, lc, log)
	if err != nil {
		link.Close()
		return nil, nil, err
	}

	ctrl, err := New(Config{
		LinkID:           lc.ID,
		Interval:         lc.Poll.Interval(),
		EnumerateRetries: lc.Poll.EnumerateRetries,
	}, drv, log)
	if err != nil {
		link.Close()
		return nil, nil, err
	}

	return ctrl, func() { link.Close() }, nil
}
