// Package diag accumulates non-fatal issues found while reading a binary.
package diag

import "fmt"

// Kind classifies a diagnostic message.
type Kind string

const (
	KindUnreadable     Kind = "unreadable"
	KindUnnamed        Kind = "unnamed"
	KindOffsetTooLarge Kind = "offset_too_large"
	KindOutsideData    Kind = "outside_data"
	KindNoSegment      Kind = "no_segment"
	KindRelocation64   Kind = "relocation_64bit"
	KindDemangle       Kind = "demangle"
	KindMemberOffset   Kind = "member_offset"
)

// Diag records a non-fatal issue encountered during extraction or graph building.
// Offset is an address, file offset or table index depending on Kind.
type Diag struct {
	Offset uint64 `json:"offset"`
	Kind   Kind   `json:"kind"`
	Msg    string `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics. The zero value is ready to use.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind Kind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind Kind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// Merge appends all of other's diagnostics.
func (d *Diags) Merge(other []Diag) {
	d.items = append(d.items, other...)
}

func (d *Diags) Items() []Diag { return d.items }

// Count returns the number of diagnostics of the given kind.
func (d *Diags) Count(kind Kind) int {
	n := 0
	for _, it := range d.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}
