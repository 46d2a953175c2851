// internal/protocol/jk/driver_test.go
package jk

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tamzrod/bms-telemetry/internal/protocol"
	"github.com/tamzrod/bms-telemetry/internal/reading"
	"github.com/tamzrod/bms-telemetry/internal/transport"
)

// scriptLink feeds one canned response per write. A nil entry makes
// the address go silent.
type scriptLink struct {
	responses [][]byte
	stream    []byte
	writes    [][]byte
}

func (s *scriptLink) Write(ctx context.Context, p []byte) error {
	s.writes = append(s.writes, append([]byte(nil), p...))
	s.stream = nil
	if len(s.responses) > 0 {
		s.stream = s.responses[0]
		s.responses = s.responses[1:]
	}
	return nil
}

func (s *scriptLink) ReadFull(ctx context.Context, p []byte) error {
	if len(s.stream) < len(p) {
		return transport.ErrTimeout
	}
	copy(p, s.stream[:len(p)])
	s.stream = s.stream[len(p):]
	return nil
}

func (s *scriptLink) ReadUntil(ctx context.Context, delim byte, max int) ([]byte, error) {
	return nil, transport.ErrTimeout
}

func (s *scriptLink) Drain() {}

func (s *scriptLink) Close() error { return nil }

// respFrame builds a valid read response carrying the given registers.
func respFrame(slave byte, regs []uint16) []byte {
	frame := []byte{slave, fcReadHolding, byte(2 * len(regs))}
	for _, r := range regs {
		frame = binary.BigEndian.AppendUint16(frame, r)
	}
	return appendCRC(frame)
}

func realtimeRegs() []uint16 {
	rt := make([]uint16, realtimeQty)
	rt[idxTempMos] = 235 // 23.5 C
	rt[idxBatVol] = 0
	rt[idxBatVol+1] = 53200 // 53.2 V
	rt[idxBatCurrent] = 0xFFFF
	rt[idxBatCurrent+1] = 0xFA24 // -1500 mA
	rt[idxTempBat1] = 201        // 20.1 C
	rt[idxTempBat2] = 5000       // implausible, dropped
	rt[idxAlarm+1] = 0x0080      // short circuit
	rt[idxBalCurrent] = 250      // 0.25 A
	rt[idxBalSOC] = 0x0155       // balancing, SOC 85
	rt[idxCapRemain+1] = 50000   // 50 Ah
	rt[idxCapFull] = 0x0001
	rt[idxCapFull+1] = 0x86A0 // 100000 mAh
	rt[idxCycleCount+1] = 12
	rt[idxSOH] = 0x6200 // SOH 98
	return rt
}

func TestCRC16_ReferenceVector(t *testing.T) {
	assert.Equal(t, uint16(0xB220), crc16([]byte{0x01, 0x03, 0x12, 0x02, 0x00, 0x01}))
}

func TestBuildRead_CellVoltage(t *testing.T) {
	got := buildRead(1, 0x1202, 1)
	assert.Equal(t, []byte{0x01, 0x03, 0x12, 0x02, 0x00, 0x01, 0x20, 0xB2}, got)
}

func TestReadRegisters_RoundTrip(t *testing.T) {
	link := &scriptLink{responses: [][]byte{
		respFrame(1, []uint16{3300}),
	}}
	d := New(Config{Link: link, MaxPacks: 1})

	regs, err := d.readRegisters(context.Background(), d.ex, 1, 0x1202, 1)
	if err != nil {
		t.Fatalf("readRegisters err=%v", err)
	}
	assert.Equal(t, []uint16{3300}, regs)
	assert.Equal(t, buildRead(1, 0x1202, 1), link.writes[0])
}

func TestReadRegisters_CorruptCRC(t *testing.T) {
	bad := respFrame(1, []uint16{3300})
	bad[3] ^= 0x01

	link := &scriptLink{responses: [][]byte{bad}}
	d := New(Config{Link: link})

	_, err := d.readRegisters(context.Background(), d.ex, 1, 0x1202, 1)
	assert.True(t, errors.Is(err, protocol.ErrChecksum), "got %v", err)
}

func TestReadRegisters_ShortByteCount(t *testing.T) {
	link := &scriptLink{responses: [][]byte{
		respFrame(1, []uint16{3300}),
	}}
	d := New(Config{Link: link})

	_, err := d.readRegisters(context.Background(), d.ex, 1, 0x1200, 2)
	assert.True(t, errors.Is(err, protocol.ErrFrameLength), "got %v", err)
}

func TestReadRegisters_Exception(t *testing.T) {
	exc := appendCRC([]byte{0x01, 0x83, 0x02})
	link := &scriptLink{responses: [][]byte{exc}}
	d := New(Config{Link: link})

	_, err := d.readRegisters(context.Background(), d.ex, 1, 0x1200, 1)
	assert.True(t, errors.Is(err, protocol.ErrResponseCode), "got %v", err)
}

func TestDriver_Enumerate_ProbesAddresses(t *testing.T) {
	batVol := []uint16{0, 53200}
	link := &scriptLink{responses: [][]byte{
		nil, // address 0 silent
		respFrame(1, batVol),
		respFrame(2, batVol),
		nil, // address 3 silent
	}}
	d := New(Config{Link: link, FirstAddress: 0, MaxPacks: 4})

	addrs, err := d.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate err=%v", err)
	}
	assert.Equal(t, []int{1, 2}, addrs)
}

func TestDriver_ReadPack(t *testing.T) {
	link := &scriptLink{responses: [][]byte{
		respFrame(1, []uint16{3300, 3304, 0, 0}),
		respFrame(1, realtimeRegs()),
	}}
	d := New(Config{Link: link, MaxPacks: 1, CellCount: 4})

	p, err := d.ReadPack(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReadPack err=%v", err)
	}

	assert.Equal(t, []int{3300, 3304}, p.CellMilliVolt)
	assert.Equal(t, 53.2, p.VoltageV)
	assert.Equal(t, -1.5, p.CurrentA)
	if assert.NotNil(t, p.TempMosC) {
		assert.Equal(t, 23.5, *p.TempMosC)
	}
	assert.Equal(t, []float64{20.1}, p.TempC)
	assert.Equal(t, 85.0, p.SOCPercent)
	assert.Equal(t, 50.0, p.RemainAh)
	assert.Equal(t, 100.0, p.FullAh)
	assert.Equal(t, 100.0, p.DesignAh)
	assert.Equal(t, 12, p.CycleCount)
	assert.Equal(t, 98.0, p.SOHPercent)
	if assert.NotNil(t, p.BalanceCurrentA) {
		assert.Equal(t, 0.25, *p.BalanceCurrentA)
	}
	assert.Equal(t, []reading.Flag{reading.ProtectShortCircuit}, p.Alarms)
	assert.Equal(t, 4, p.CellDiffMilliVolt)
}
