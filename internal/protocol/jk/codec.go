// internal/protocol/jk/codec.go

// Package jk implements the JK inverter-BMS Modbus-RTU dialect.
//
// The vendor register map spaces 16-bit values two address units apart
// (cell n lives at 0x1200+2n) while read quantities count 16-bit
// registers, so a block read of n registers starting at the cell base
// returns the first n cells.
package jk

import "encoding/binary"

const (
	fcReadHolding = 0x03

	// Realtime data area, base 0x1200.
	regCellBase = 0x1200
	regBatVol   = 0x1290

	// One block read at 0x128A covers everything from the MOS
	// temperature through the SOH estimate.
	regRealtime = 0x128A
	realtimeQty = 24

	// Word offsets inside the realtime block.
	idxTempMos     = 0
	idxBatVol      = 3 // u32
	idxBatWatt     = 5 // u32
	idxBatCurrent  = 7 // i32, mA
	idxTempBat1    = 9
	idxTempBat2    = 10
	idxAlarm       = 11 // u32
	idxBalCurrent  = 13 // i16, mA
	idxBalSOC      = 14 // balance state high byte, SOC low byte
	idxCapRemain   = 15 // i32, mAh
	idxCapFull     = 17 // u32, mAh
	idxCycleCount  = 19 // u32
	idxSOH         = 23 // high byte
)

// buildRead renders a read-holding-registers request.
func buildRead(slave byte, reg uint16, count uint16) []byte {
	frame := make([]byte, 6)
	frame[0] = slave
	frame[1] = fcReadHolding
	binary.BigEndian.PutUint16(frame[2:4], reg)
	binary.BigEndian.PutUint16(frame[4:6], count)
	return appendCRC(frame)
}

// decodeRegisters unpacks the payload of an already validated response.
func decodeRegisters(frame []byte) []uint16 {
	payload := frame[3 : len(frame)-2]
	regs := make([]uint16, len(payload)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(payload[2*i:])
	}
	return regs
}

func u32(regs []uint16, idx int) uint32 {
	return uint32(regs[idx])<<16 | uint32(regs[idx+1])
}

func i32(regs []uint16, idx int) int32 {
	return int32(u32(regs, idx))
}

func i16(regs []uint16, idx int) int16 {
	return int16(regs[idx])
}
