// internal/protocol/pace/codec.go

// Package pace implements the Pace LV and LV-V1 ASCII-hex dialect.
// The TDT family reuses its payload layout; see the tdt package.
package pace

import (
	"fmt"

	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/reading"
)

const (
	ver  = 0x25
	cid1 = 0x46

	cmdAnalog    = 0x42
	cmdWarn      = 0x44
	cmdPackCount = 0x90

	maxCellsPerPack = 32
	maxTempsPerPack = 16
	maxPacksInFrame = 16
)

// The pack address rides both in the ADR header field and as the
// one-byte INFO payload.
func addrInfo(addr int) []byte {
	return []byte(fmt.Sprintf("%02X", addr))
}

// AnalogRequest builds the analog-values request for one pack.
func AnalogRequest(addr int) []byte {
	return protocol.EncodeHexFrame(ver, byte(addr), cid1, cmdAnalog, addrInfo(addr))
}

// WarnRequest builds the warning-state request for one pack.
func WarnRequest(addr int) []byte {
	return protocol.EncodeHexFrame(ver, byte(addr), cid1, cmdWarn, addrInfo(addr))
}

// PackCountRequest asks the master how many packs are chained.
func PackCountRequest() []byte {
	return protocol.EncodeHexFrame(ver, 0xFF, cid1, cmdPackCount, nil)
}

// cursor walks an INFO payload with sticky truncation tracking.
type cursor struct {
	b     []byte
	i     int
	short bool
}

func (c *cursor) u8() int {
	if c.i+1 > len(c.b) {
		c.short = true
		return 0
	}
	v := int(c.b[c.i])
	c.i++
	return v
}

func (c *cursor) u16() int {
	if c.i+2 > len(c.b) {
		c.short = true
		return 0
	}
	v := int(c.b[c.i])<<8 | int(c.b[c.i+1])
	c.i += 2
	return v
}

func (c *cursor) i16() int {
	v := c.u16()
	if v >= 0x8000 {
		v -= 0x10000
	}
	return v
}

func (c *cursor) skip(n int) {
	if c.i+n > len(c.b) {
		c.short = true
		return
	}
	c.i += n
}

func (c *cursor) err() error {
	if c.short {
		return fmt.Errorf("%w: truncated payload at byte %d", protocol.ErrFrameLength, c.i)
	}
	return nil
}

// ParseAnalog decodes an analog-values INFO payload. With derived set
// (LV-V1 and TDT), SOC and SOH are computed from the capacity fields;
// otherwise the trailing LV fields carry them directly.
func ParseAnalog(info []byte, derived bool) ([]reading.Pack, error) {
	c := &cursor{b: info}

	c.u8() // INFOFLAG
	numPacks := c.u8()
	if c.short {
		return nil, c.err()
	}
	if numPacks > maxPacksInFrame {
		return nil, fmt.Errorf("%w: %d packs in frame", protocol.ErrFieldRange, numPacks)
	}

	packs := make([]reading.Pack, 0, numPacks)
	for pi := 0; pi < numPacks; pi++ {
		var p reading.Pack

		numCells := c.u8()
		if c.short {
			return nil, c.err()
		}
		if numCells > maxCellsPerPack {
			return nil, fmt.Errorf("%w: %d cells", protocol.ErrFieldRange, numCells)
		}
		p.CellMilliVolt = make([]int, numCells)
		for i := range p.CellMilliVolt {
			p.CellMilliVolt[i] = c.u16()
		}

		numTemps := c.u8()
		if c.short {
			return nil, c.err()
		}
		if numTemps > maxTempsPerPack {
			return nil, fmt.Errorf("%w: %d temp sensors", protocol.ErrFieldRange, numTemps)
		}
		p.TempC = make([]float64, numTemps)
		for i := range p.TempC {
			p.TempC[i] = reading.DeciKelvinToCelsius(uint16(c.u16()))
		}

		p.CurrentA = float64(c.i16()) / 100
		p.VoltageV = reading.Round(float64(c.u16())/1000, 2)
		p.RemainAh = reading.Round(float64(c.u16())/100, 2)
		c.u8() // user-defined item count P
		p.FullAh = reading.Round(float64(c.u16())/100, 2)

		if derived {
			if p.FullAh > 0 {
				p.SOCPercent = reading.Round(p.RemainAh/p.FullAh*100, 1)
			}
			p.CycleCount = c.u16()
			p.DesignAh = reading.Round(float64(c.u16())/100, 2)
			if p.DesignAh > 0 {
				p.SOHPercent = reading.Round(p.FullAh/p.DesignAh*100, 0)
			}
		} else {
			p.CycleCount = c.u16()
			p.DesignAh = reading.Round(float64(c.u16())/100, 2)
			p.SOCPercent = float64(c.u8())
			c.skip(8) // accumulated charge/discharge counters
			p.SOHPercent = float64(c.u8())
			c.skip(4) // secondary voltage and current sampling
		}

		if err := c.err(); err != nil {
			return nil, err
		}

		p.FinishCells()
		packs = append(packs, p)
	}

	return packs, nil
}
