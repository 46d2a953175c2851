// internal/protocol/hexframe.go
package protocol

import (
	"bytes"
	"fmt"
)

// SOI-framed ASCII-hex frames, shared by the Pace and TDT families.
//
// Layout after the 0x7E SOI, all rendered as uppercase hex pairs:
//
//	VER ADR CID1 CID2 LCHKSUM+LENID INFO... CHKSUM(4) 0x0D
//
// LENID counts the INFO characters (two per byte) as three hex digits;
// LCHKSUM is a nibble checksum over those digits. CHKSUM covers every
// ASCII byte between SOI and itself.
const (
	SOI = 0x7E
	EOI = 0x0D

	// MaxHexFrame bounds ReadUntil when collecting a response.
	MaxHexFrame = 4096
)

// HexFrame is one decoded frame. In responses CID2 carries the device
// return code.
type HexFrame struct {
	Ver  byte
	Adr  byte
	CID1 byte
	CID2 byte
	Info []byte
}

// EncodeHexFrame renders one complete request frame. info must already
// be ASCII-hex encoded.
func EncodeHexFrame(ver, adr, cid1, cid2 byte, info []byte) []byte {
	var b bytes.Buffer
	b.WriteByte(SOI)
	fmt.Fprintf(&b, "%02X%02X%02X%02X", ver, adr, cid1, cid2)

	lenid := fmt.Sprintf("%03X", len(info))
	b.WriteByte(lenChecksum(lenid))
	b.WriteString(lenid)
	b.Write(info)

	fmt.Fprintf(&b, "%04X", frameChecksum(b.Bytes()[1:]))
	b.WriteByte(EOI)
	return b.Bytes()
}

// DecodeHexFrame validates delimiters, both checksums and the declared
// length, returning the header bytes and the binary-decoded INFO.
func DecodeHexFrame(raw []byte) (HexFrame, error) {
	// SOI + 4 header pairs + LCHKSUM/LENID + CHKSUM + EOI
	const minLen = 1 + 8 + 4 + 4 + 1
	if len(raw) < minLen {
		return HexFrame{}, fmt.Errorf("%w: %d bytes", ErrFrameLength, len(raw))
	}
	if raw[0] != SOI || raw[len(raw)-1] != EOI {
		return HexFrame{}, fmt.Errorf("%w: missing frame delimiters", ErrFrameLength)
	}

	body := raw[1 : len(raw)-1]
	sumField := body[len(body)-4:]
	payload := body[:len(body)-4]

	wantSum, err := parseHex(sumField)
	if err != nil {
		return HexFrame{}, err
	}
	if frameChecksum(payload) != uint16(wantSum) {
		return HexFrame{}, fmt.Errorf("%w: frame checksum", ErrChecksum)
	}

	var hdr [4]byte
	for i := range hdr {
		v, err := parseHex(payload[2*i : 2*i+2])
		if err != nil {
			return HexFrame{}, err
		}
		hdr[i] = byte(v)
	}

	lenField := payload[8:12]
	if lenChecksum(string(lenField[1:])) != lenField[0] {
		return HexFrame{}, fmt.Errorf("%w: length checksum", ErrChecksum)
	}
	infoChars, err := parseHex(lenField[1:])
	if err != nil {
		return HexFrame{}, err
	}

	infoHex := payload[12:]
	if len(infoHex) != infoChars {
		return HexFrame{}, fmt.Errorf("%w: LENID=%d INFO=%d", ErrFrameLength, infoChars, len(infoHex))
	}
	if infoChars%2 != 0 {
		return HexFrame{}, fmt.Errorf("%w: odd LENID %d", ErrFrameLength, infoChars)
	}

	info := make([]byte, infoChars/2)
	for i := range info {
		v, err := parseHex(infoHex[2*i : 2*i+2])
		if err != nil {
			return HexFrame{}, err
		}
		info[i] = byte(v)
	}

	return HexFrame{Ver: hdr[0], Adr: hdr[1], CID1: hdr[2], CID2: hdr[3], Info: info}, nil
}

// lenChecksum computes the LCHKSUM character for a 3-digit LENID.
func lenChecksum(lenid string) byte {
	sum := 0
	for i := 0; i < len(lenid); i++ {
		v, ok := hexVal(lenid[i])
		if !ok {
			return 0
		}
		sum += v
	}
	n := ((^(sum % 16)) & 0xF) + 1
	return hexDigit(n & 0xF)
}

// frameChecksum sums the ASCII bytes between SOI and the checksum
// field, then takes the 16-bit two's complement.
func frameChecksum(body []byte) uint16 {
	var sum uint16
	for _, b := range body {
		sum += uint16(b)
	}
	return ^sum + 1
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	}
	return 0, false
}

func hexDigit(v int) byte {
	if v < 10 {
		return byte('0' + v)
	}
	return byte('A' + v - 10)
}

func parseHex(chars []byte) (int, error) {
	n := 0
	for _, c := range chars {
		v, ok := hexVal(c)
		if !ok {
			return 0, fmt.Errorf("%w: non-hex character 0x%02X", ErrFieldRange, c)
		}
		n = n<<4 | v
	}
	return n, nil
}
