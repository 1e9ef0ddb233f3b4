package vtable

import (
	"errors"
	"fmt"
	"math"

	"vtgamedata/internal/elfx"
)

// ErrOffsetTooLarge is matched by every *OffsetTooLargeError.
var ErrOffsetTooLarge = errors.New("vtable: >= 32-bit rodata is not supported")

// OffsetTooLargeError reports an address, offset or size that does not fit in
// 32 bits while locating a symbol's bytes.
type OffsetTooLargeError struct {
	Symbol string
	Value  uint64
}

func (e *OffsetTooLargeError) Error() string {
	return fmt.Sprintf("vtable: %s: value 0x%x exceeds 32 bits (>= 32-bit rodata is not supported)", e.Symbol, e.Value)
}

func (e *OffsetTooLargeError) Is(target error) bool { return target == ErrOffsetTooLarge }

// SymbolData returns the bytes backing sym in the rodata or relocated rodata
// section. It returns nil without error when sym is undefined, lives in another
// section, or does not fit entirely inside one chunk.
func SymbolData(img *elfx.Image, sym elfx.Symbol) ([]byte, error) {
	var sec *elfx.Section
	switch {
	case sym.Section == 0:
		return nil, nil
	case img.Rodata.Present() && sym.Section == img.Rodata.Index:
		sec = &img.Rodata
	case img.RelRodata.Present() && sym.Section == img.RelRodata.Index:
		sec = &img.RelRodata
	default:
		return nil, nil
	}
	return sliceSection(sec, sym.Name, sym.Address, sym.Size)
}

func sliceSection(sec *elfx.Section, name string, addr, size uint64) ([]byte, error) {
	for _, v := range []uint64{sec.Addr, addr, size} {
		if v > math.MaxUint32 {
			return nil, &OffsetTooLargeError{Symbol: name, Value: v}
		}
	}
	for _, c := range sec.Chunks {
		if c.Offset > math.MaxUint32 {
			return nil, &OffsetTooLargeError{Symbol: name, Value: c.Offset}
		}
		base := sec.Addr + c.Offset
		if addr < base {
			continue
		}
		start := addr - base
		end := start + size
		if end > uint64(len(c.Data)) {
			continue
		}
		return c.Data[start:end], nil
	}
	return nil, nil
}
