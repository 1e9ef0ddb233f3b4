// Package vtable reconstructs classes, vtable segments and virtual functions
// from the raw vtable bytes of an Itanium C++ ABI binary.
package vtable

import (
	"vtgamedata/internal/diag"
	"vtgamedata/internal/elfx"
)

// PureVirtualName is the display name of a slot that points at a runtime
// pure or deleted virtual call helper.
const PureVirtualName = "(pure virtual function)"

// Runtime helpers installed in slots of pure and deleted virtual functions.
const (
	SymPureVirtual    = "__cxa_pure_virtual"
	SymDeletedVirtual = "__cxa_deleted_virtual"
)

// Function is one virtual function implementation, shared by every class
// whose vtable references it.
//
//	Demangled  CNEO_Player::EndTouch(CBaseEntity*)
//	Name       EndTouch(CBaseEntity*)
//	ShortName  EndTouch
//	Namespace  CNEO_Player
type Function struct {
	ID        uint64      // resolved slot target; 0 for placeholders
	Symbol    elfx.Symbol // zero for placeholders
	Demangled string
	Name      string
	ShortName string
	Namespace string
	IsThunk   bool
	IsMulti   bool // more than one symbol aliases ID
	Classes   []*Class
}

// IsPlaceholder reports whether f stands in for a pure or deleted virtual.
func (f *Function) IsPlaceholder() bool { return f.Symbol.Name == "" }

// Segment is the run of slots belonging to one base sub-object.
// Position in Functions is the Itanium slot number.
type Segment struct {
	OffsetToTop uint64
	Functions   []*Function
}

// Class is one vtable root.
type Class struct {
	ID                  uint64 // vtable symbol address
	Name                string
	Symbol              elfx.Symbol
	VTables             []Segment
	HasMissingFunctions bool
}

// Primary returns the first vtable segment, or nil if the class has none.
func (c *Class) Primary() *Segment {
	if len(c.VTables) == 0 {
		return nil
	}
	return &c.VTables[0]
}

func (c *Class) String() string { return c.Name }

// Graph owns every class and function built from one image. It is
// append-only while being built and read-only afterwards.
type Graph struct {
	PtrSize       int
	Classes       []*Class
	Functions     []*Function
	Symbols       []elfx.Symbol // filtered: non-zero address and size, non-empty name
	MemberOffsets []elfx.MemberOffset
	Diags         []diag.Diag

	img    *elfx.Image
	byAddr map[uint64]*Function
}

// FunctionAt returns the function resolved for a slot target address.
func (g *Graph) FunctionAt(addr uint64) (*Function, bool) {
	f, ok := g.byAddr[addr]
	return f, ok
}

// Class returns the first class with the given name.
func (g *Graph) Class(name string) (*Class, bool) {
	for _, c := range g.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FunctionBytes returns the code bytes of fn from the text section. It returns
// nil when the image has no text section or fn lies outside it.
func (g *Graph) FunctionBytes(fn *Function) ([]byte, error) {
	if g.img == nil || !g.img.Text.Present() || fn.IsPlaceholder() {
		return nil, nil
	}
	return sliceSection(&g.img.Text, fn.Symbol.Name, fn.ID, fn.Symbol.Size)
}
