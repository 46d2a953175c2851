// internal/protocol/jk/driver.go
package jk

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

// Sensor words outside this band are unpopulated inputs, not readings.
const (
	minPlausibleTempC = -50.0
	maxPlausibleTempC = 150.0
)

// Config parameterizes a JK driver.
type Config struct {
	Link transport.Link

	// FirstAddress is the slave address of the first chained pack;
	// packs answer on consecutive addresses.
	FirstAddress int
	MaxPacks     int
	CellCount    int

	Settle  time.Duration
	Retries int
	Logger  *slog.Logger
}

// Driver speaks JK Modbus-RTU over one link.
type Driver struct {
	ex        *protocol.Exchanger
	probe     *protocol.Exchanger
	first     int
	maxPacks  int
	cellCount int
	log       *slog.Logger
}

func New(cfg Config) *Driver {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	cells := cfg.CellCount
	if cells <= 0 {
		cells = 16
	}
	return &Driver{
		ex: &protocol.Exchanger{
			Link:    cfg.Link,
			Settle:  cfg.Settle,
			Retries: cfg.Retries,
		},
		// Enumeration probes absent addresses; a single attempt per
		// address keeps discovery time bounded.
		probe: &protocol.Exchanger{
			Link:   cfg.Link,
			Settle: cfg.Settle,
		},
		first:     cfg.FirstAddress,
		maxPacks:  cfg.MaxPacks,
		cellCount: cells,
		log:       log,
	}
}

func (d *Driver) Family() protocol.Family { return protocol.FamilyJK }

// readRegisters runs one read-holding-registers exchange and returns
// the register values.
func (d *Driver) readRegisters(ctx context.Context, ex *protocol.Exchanger, slave byte, reg uint16, count int) ([]uint16, error) {
	req := buildRead(slave, reg, uint16(count))

	resp, err := ex.Exchange(ctx, req, func(ctx context.Context) ([]byte, error) {
		hdr := make([]byte, 3)
		if err := ex.Link.ReadFull(ctx, hdr); err != nil {
			return nil, err
		}

		if hdr[1]&0x80 != 0 {
			// Exception reply: hdr[2] is the code, two CRC bytes follow.
			tail := make([]byte, 2)
			if err := ex.Link.ReadFull(ctx, tail); err != nil {
				return nil, err
			}
			want := uint16(tail[0]) | uint16(tail[1])<<8
			if crc16(hdr) != want {
				return nil, fmt.Errorf("%w: exception frame", protocol.ErrChecksum)
			}
			return nil, fmt.Errorf("%w: exception 0x%02X", protocol.ErrResponseCode, hdr[2])
		}

		if hdr[1] != fcReadHolding {
			return nil, fmt.Errorf("%w: function 0x%02X", protocol.ErrFunctionMismatch, hdr[1])
		}

		rest := make([]byte, int(hdr[2])+2)
		if err := ex.Link.ReadFull(ctx, rest); err != nil {
			return nil, err
		}
		frame := append(hdr, rest...)

		body := frame[:len(frame)-2]
		want := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
		if crc16(body) != want {
			return nil, fmt.Errorf("%w: got 0x%04X", protocol.ErrChecksum, want)
		}
		if frame[0] != slave {
			return nil, fmt.Errorf("%w: slave 0x%02X, want 0x%02X", protocol.ErrFunctionMismatch, frame[0], slave)
		}
		if int(hdr[2]) != 2*count {
			return nil, fmt.Errorf("%w: %d payload bytes for %d registers", protocol.ErrFrameLength, hdr[2], count)
		}
		return frame, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeRegisters(resp), nil
}

// Enumerate probes consecutive slave addresses with a battery-voltage
// read; responders form the pack chain.
func (d *Driver) Enumerate(ctx context.Context) ([]int, error) {
	var addrs []int
	for a := d.first; a < d.first+d.maxPacks; a++ {
		_, err := d.readRegisters(ctx, d.probe, byte(a), regBatVol, 2)
		if err == nil {
			addrs = append(addrs, a)
			continue
		}
		if isFatal(ctx, err) {
			return nil, err
		}
		d.log.Debug("no pack at slave address", "address", a, "err", err)
	}
	return addrs, nil
}

// ReadPack reads the cell block and the realtime block of one pack.
func (d *Driver) ReadPack(ctx context.Context, addr int) (reading.Pack, error) {
	cells, err := d.readRegisters(ctx, d.ex, byte(addr), regCellBase, d.cellCount)
	if err != nil {
		return reading.Pack{}, err
	}
	rt, err := d.readRegisters(ctx, d.ex, byte(addr), regRealtime, realtimeQty)
	if err != nil {
		return reading.Pack{}, err
	}

	p := reading.Pack{Address: addr}

	// Unpopulated cell slots read back zero.
	for _, mv := range cells {
		if mv > 0 {
			p.CellMilliVolt = append(p.CellMilliVolt, int(mv))
		}
	}

	if t := reading.DeciCelsius(i16(rt, idxTempMos)); plausibleTemp(t) {
		p.TempMosC = &t
	}
	for _, idx := range []int{idxTempBat1, idxTempBat2} {
		if t := reading.DeciCelsius(i16(rt, idx)); plausibleTemp(t) {
			p.TempC = append(p.TempC, t)
		}
	}

	p.VoltageV = float64(u32(rt, idxBatVol)) / 1000
	p.CurrentA = float64(i32(rt, idxBatCurrent)) / 1000

	bal := float64(i16(rt, idxBalCurrent)) / 1000
	p.BalanceCurrentA = &bal

	p.SOCPercent = float64(rt[idxBalSOC] & 0xFF)
	p.RemainAh = float64(i32(rt, idxCapRemain)) / 1000
	p.FullAh = float64(u32(rt, idxCapFull)) / 1000
	// No design capacity register; the actual capacity estimate is the
	// closest thing the map offers.
	p.DesignAh = p.FullAh
	p.CycleCount = int(u32(rt, idxCycleCount))
	p.SOHPercent = float64(rt[idxSOH] >> 8)

	p.Alarms = alarmFlags(u32(rt, idxAlarm)).Slice()
	p.FinishCells()

	return p, nil
}

func plausibleTemp(t float64) bool {
	return t >= minPlausibleTempC && t <= maxPlausibleTempC
}

func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, transport.ErrLink)
}

// alarmFlags translates the 32-bit alarm status word.
func alarmFlags(sta uint32) reading.FlagSet {
	bit := func(n uint) bool { return sta&(1<<n) != 0 }

	flags := reading.NewFlagSet()
	flags.AddIf(bit(7), reading.ProtectShortCircuit)
	flags.AddIf(bit(13), reading.ProtectDischargeCurrent)
	flags.AddIf(bit(6), reading.ProtectChargeCurrent)
	flags.AddIf(bit(12), reading.ProtectPackLow)
	flags.AddIf(bit(5), reading.ProtectPackHigh)
	flags.AddIf(bit(11), reading.ProtectCellLow)
	flags.AddIf(bit(4), reading.ProtectCellHigh)
	flags.AddIf(bit(9), reading.ProtectEnvTempLow)
	flags.AddIf(bit(9), reading.ProtectChargeTempLow)
	flags.AddIf(bit(8), reading.ProtectEnvTempHigh)
	flags.AddIf(bit(8), reading.ProtectChargeTempHigh)
	flags.AddIf(bit(1), reading.ProtectMosTempHigh)
	flags.AddIf(bit(15), reading.ProtectDischargeTempLow)
	flags.AddIf(bit(15), reading.ProtectDischargeTempHigh)
	flags.AddIf(bit(3), reading.FaultSampling)
	flags.AddIf(bit(2), reading.FaultCell)
	flags.AddIf(bit(17), reading.FaultDischargeMOS)
	flags.AddIf(bit(16), reading.FaultChargeMOS)
	return flags
}
