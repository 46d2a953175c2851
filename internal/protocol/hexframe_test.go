// internal/protocol/hexframe_test.go
package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

const analogResponse = "~25014600002E0001020CE40CE8010B69FF9C33901388032710000A2710F3E3\r"

func TestEncodeHexFrame_AnalogRequest(t *testing.T) {
	got := EncodeHexFrame(0x25, 0x01, 0x46, 0x42, []byte("01"))
	assert.Equal(t, "~25014642E00201FD30\r", string(got))
}

func TestEncodeHexFrame_EmptyInfo(t *testing.T) {
	got := EncodeHexFrame(0x25, 0xFF, 0x46, 0x90, nil)
	assert.Equal(t, "~25FF46900000FD7A\r", string(got))
}

func TestLenChecksum(t *testing.T) {
	assert.Equal(t, byte('E'), lenChecksum("002"))
	assert.Equal(t, byte('0'), lenChecksum("000"))
}

func TestDecodeHexFrame(t *testing.T) {
	f, err := DecodeHexFrame([]byte(analogResponse))
	if err != nil {
		t.Fatalf("decode err=%v", err)
	}

	assert.Equal(t, byte(0x25), f.Ver)
	assert.Equal(t, byte(0x01), f.Adr)
	assert.Equal(t, byte(0x46), f.CID1)
	assert.Equal(t, byte(0x00), f.CID2)
	assert.Equal(t, 23, len(f.Info))
	assert.Equal(t, byte(0x02), f.Info[2]) // cell count
}

func TestDecodeHexFrame_RoundTrip(t *testing.T) {
	enc := EncodeHexFrame(0x25, 0x02, 0x46, 0x44, []byte("02"))
	f, err := DecodeHexFrame(enc)
	if err != nil {
		t.Fatalf("decode err=%v", err)
	}
	assert.Equal(t, byte(0x02), f.Adr)
	assert.Equal(t, byte(0x44), f.CID2)
	assert.Equal(t, []byte{0x02}, f.Info)
}

func TestDecodeHexFrame_CorruptChecksum(t *testing.T) {
	raw := []byte(analogResponse)
	raw[15] ^= 0x01 // flip one INFO character

	_, err := DecodeHexFrame(raw)
	assert.True(t, errors.Is(err, ErrChecksum), "got %v", err)
}

func TestDecodeHexFrame_LengthMismatch(t *testing.T) {
	// LENID says 4 chars but only 2 follow; checksum recomputed so the
	// length check is what trips.
	body := []byte("25014600" + "0" + "004" + "01")
	body[8] = lenChecksum("004")
	frame := append([]byte{SOI}, body...)
	frame = append(frame, []byte(fmt.Sprintf("%04X", frameChecksum(body)))...)
	frame = append(frame, EOI)

	_, err := DecodeHexFrame(frame)
	assert.True(t, errors.Is(err, ErrFrameLength), "got %v", err)
}

func TestDecodeHexFrame_MissingDelimiters(t *testing.T) {
	_, err := DecodeHexFrame([]byte("25014600002E00FD30\r"))
	assert.True(t, errors.Is(err, ErrFrameLength), "got %v", err)
}
