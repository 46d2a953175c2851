// internal/protocol/protocol.go

// Package protocol defines the family-independent contract between the
// poll loop and the per-family wire codecs: the capability set a
// driver must implement and the error taxonomy the retry policy keys
// on.
package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/tamzrod/bms-telemetry/internal/reading"
)

// Family identifies a supported BMS wire dialect.
type Family string

const (
	FamilyPaceLV   Family = "pace-lv"
	FamilyPaceLVV1 Family = "pace-lv-v1"
	FamilyJK       Family = "jk-modbus"
	FamilyTDT      Family = "tdt"
)

// ParseFamily maps a config string to a Family.
func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case FamilyPaceLV, FamilyPaceLVV1, FamilyJK, FamilyTDT:
		return Family(s), nil
	}
	return "", fmt.Errorf("protocol: unknown family %q", s)
}

// Frame-level failures. All are recoverable by retrying the request;
// none implicate the link itself.
var (
	// ErrChecksum reports a frame whose checksum did not verify.
	ErrChecksum = errors.New("protocol: checksum mismatch")

	// ErrFrameLength reports a frame whose declared and actual sizes
	// disagree, or a payload too short for its layout.
	ErrFrameLength = errors.New("protocol: frame length mismatch")

	// ErrFunctionMismatch reports a response that echoes a different
	// command or address than was requested.
	ErrFunctionMismatch = errors.New("protocol: function mismatch")

	// ErrFieldRange reports a structurally valid frame carrying an
	// impossible field value.
	ErrFieldRange = errors.New("protocol: field out of range")

	// ErrResponseCode reports a well-formed device-level error reply.
	ErrResponseCode = errors.New("protocol: device response code")
)

// Driver is the capability set one BMS family exposes to the poller.
// Implementations are not safe for concurrent use; the poll loop is
// the single caller.
type Driver interface {
	Family() Family

	// Enumerate discovers the chained pack addresses, in stable order.
	Enumerate(ctx context.Context) ([]int, error)

	// ReadPack reads one pack's full normalized state.
	ReadPack(ctx context.Context, addr int) (reading.Pack, error)
}
