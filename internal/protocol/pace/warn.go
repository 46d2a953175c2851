// internal/protocol/pace/warn.go
package pace

import (
	"fmt"

	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/reading"
)

// Per-item warning levels.
const (
	warnNormal     = 0x00
	warnBelowLimit = 0x01
	warnAboveLimit = 0x02
)

// ParseWarn decodes a warning-state INFO payload into canonical flag
// sets, one per pack. The V2 layout trails one extra reserved byte per
// pack; everything else is shared.
func ParseWarn(info []byte, v1 bool) ([]reading.FlagSet, error) {
	c := &cursor{b: info}

	c.u8() // INFOFLAG
	numPacks := c.u8()
	if c.short {
		return nil, c.err()
	}
	if numPacks > maxPacksInFrame {
		return nil, fmt.Errorf("%w: %d packs in frame", protocol.ErrFieldRange, numPacks)
	}

	out := make([]reading.FlagSet, 0, numPacks)
	for pi := 0; pi < numPacks; pi++ {
		flags := reading.NewFlagSet()

		numCells := c.u8()
		if c.short {
			return nil, c.err()
		}
		if numCells > maxCellsPerPack {
			return nil, fmt.Errorf("%w: %d cells", protocol.ErrFieldRange, numCells)
		}
		for i := 0; i < numCells; i++ {
			switch c.u8() {
			case warnBelowLimit:
				flags.Add(reading.WarnCellLow)
			case warnAboveLimit:
				flags.Add(reading.WarnCellHigh)
			}
		}

		numTemps := c.u8()
		if c.short {
			return nil, c.err()
		}
		if numTemps > maxTempsPerPack {
			return nil, fmt.Errorf("%w: %d temp sensors", protocol.ErrFieldRange, numTemps)
		}
		for i := 0; i < numTemps; i++ {
			switch c.u8() {
			case warnBelowLimit:
				flags.Add(reading.WarnTempLow)
			case warnAboveLimit:
				flags.Add(reading.WarnTempHigh)
			}
		}

		flags.AddIf(c.u8() == warnAboveLimit, reading.WarnChargeCurrentHigh)
		switch c.u8() {
		case warnBelowLimit:
			flags.Add(reading.WarnPackLow)
		case warnAboveLimit:
			flags.Add(reading.WarnPackHigh)
		}
		flags.AddIf(c.u8() == warnAboveLimit, reading.WarnDischargeCurrentHigh)

		protect1 := c.u8()
		flags.AddIf(protect1&0x40 != 0, reading.ProtectShortCircuit)
		flags.AddIf(protect1&0x20 != 0, reading.ProtectDischargeCurrent)
		flags.AddIf(protect1&0x10 != 0, reading.ProtectChargeCurrent)
		flags.AddIf(protect1&0x08 != 0, reading.ProtectPackLow)
		flags.AddIf(protect1&0x04 != 0, reading.ProtectPackHigh)
		flags.AddIf(protect1&0x02 != 0, reading.ProtectCellLow)
		flags.AddIf(protect1&0x01 != 0, reading.ProtectCellHigh)

		protect2 := c.u8()
		flags.AddIf(protect2&0x80 != 0, reading.FullyCharged)
		flags.AddIf(protect2&0x40 != 0, reading.ProtectEnvTempLow)
		flags.AddIf(protect2&0x20 != 0, reading.ProtectEnvTempHigh)
		flags.AddIf(protect2&0x10 != 0, reading.ProtectMosTempHigh)
		flags.AddIf(protect2&0x08 != 0, reading.ProtectDischargeTempLow)
		flags.AddIf(protect2&0x04 != 0, reading.ProtectChargeTempLow)
		flags.AddIf(protect2&0x02 != 0, reading.ProtectDischargeTempHigh)
		flags.AddIf(protect2&0x01 != 0, reading.ProtectChargeTempHigh)

		c.u8() // instruction state
		c.u8() // control state

		fault := c.u8()
		flags.AddIf(fault&0x20 != 0, reading.FaultSampling)
		flags.AddIf(fault&0x10 != 0, reading.FaultCell)
		flags.AddIf(fault&0x04 != 0, reading.FaultNTC)
		flags.AddIf(fault&0x02 != 0, reading.FaultDischargeMOS)
		flags.AddIf(fault&0x01 != 0, reading.FaultChargeMOS)

		c.u8() // balance state 1
		c.u8() // balance state 2

		warn1 := c.u8()
		flags.AddIf(warn1&0x20 != 0, reading.WarnDischargeCurrentHigh)
		flags.AddIf(warn1&0x10 != 0, reading.WarnChargeCurrentHigh)
		flags.AddIf(warn1&0x08 != 0, reading.WarnPackLow)
		flags.AddIf(warn1&0x04 != 0, reading.WarnPackHigh)
		flags.AddIf(warn1&0x02 != 0, reading.WarnCellLow)
		flags.AddIf(warn1&0x01 != 0, reading.WarnCellHigh)

		warn2 := c.u8()
		flags.AddIf(warn2&0x80 != 0, reading.WarnSOCLow)
		flags.AddIf(warn2&0x40 != 0, reading.WarnMosTempHigh)
		flags.AddIf(warn2&0x20 != 0, reading.WarnEnvTempLow)
		flags.AddIf(warn2&0x10 != 0, reading.WarnEnvTempHigh)
		flags.AddIf(warn2&0x08 != 0, reading.WarnDischargeTempLow)
		flags.AddIf(warn2&0x04 != 0, reading.WarnChargeTempLow)
		flags.AddIf(warn2&0x02 != 0, reading.WarnDischargeTempHigh)
		flags.AddIf(warn2&0x01 != 0, reading.WarnChargeTempHigh)

		if !v1 {
			c.u8() // reserved
		}

		if err := c.err(); err != nil {
			return nil, err
		}
		out = append(out, flags)
	}

	return out, nil
}
