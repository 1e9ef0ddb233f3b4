package vtable

import (
	"errors"
	"slices"
	"strings"

	"vtgamedata/internal/demangle"
	"vtgamedata/internal/diag"
	"vtgamedata/internal/elfx"
)

// wordSize is the unit the slot walk advances by.
const wordSize = 4

type builder struct {
	img      *elfx.Image
	g        *Graph
	diags    diag.Diags
	symbols  map[uint64][]elfx.Symbol
	relocs   map[uint64]uint64
	warned64 bool
}

// Build walks every vtable symbol of img and returns the resulting graph.
// Problems with individual symbols are recorded in Graph.Diags.
func Build(img *elfx.Image) *Graph {
	b := &builder{
		img: img,
		g: &Graph{
			PtrSize:       img.PtrSize,
			MemberOffsets: img.MemberOffsets,
			img:           img,
			byAddr:        make(map[uint64]*Function),
		},
		symbols: make(map[uint64][]elfx.Symbol),
		relocs:  make(map[uint64]uint64, len(img.Relocations)),
	}
	b.diags.Merge(img.Diags)

	var roots []elfx.Symbol
	for _, s := range img.Symbols {
		if s.Address == 0 || s.Size == 0 || s.Name == "" {
			continue
		}
		if strings.HasPrefix(s.Name, demangle.PrefixVTable) {
			roots = append(roots, s)
		}
		b.symbols[s.Address] = append(b.symbols[s.Address], s)
		b.g.Symbols = append(b.g.Symbols, s)
	}
	for _, r := range img.Relocations {
		b.relocs[r.Address] = r.Target
	}

	for _, s := range roots {
		b.class(s)
	}

	b.g.Diags = b.diags.Items()
	return b.g
}

func (b *builder) class(sym elfx.Symbol) {
	name, err := demangle.VTableClass(sym.Name)
	if err != nil {
		b.diags.Addf(sym.Address, diag.KindDemangle, "%v", err)
		name = sym.Name
	}

	data, err := SymbolData(b.img, sym)
	if err != nil {
		kind := diag.KindUnreadable
		if errors.Is(err, ErrOffsetTooLarge) {
			kind = diag.KindOffsetTooLarge
		}
		b.diags.Addf(sym.Address, kind, "vtable for %s: %v", name, err)
		return
	}
	if len(data) == 0 {
		if sym.Section != 0 {
			b.diags.Addf(sym.Address, diag.KindOutsideData, "vtable for %s is outside data", name)
		}
		return
	}

	c := &Class{ID: sym.Address, Name: name, Symbol: sym}
	b.g.Classes = append(b.g.Classes, c)
	b.walk(c, data)
}

// walk reads the vtable in pointer-width slots. An unresolvable value starts a
// new segment (offset-to-top followed by the RTTI pointer); a zero inside an
// open segment is a pure virtual slot.
func (b *builder) walk(c *Class, data []byte) {
	ptr := b.img.PtrSize
	bo := b.img.ByteOrder
	mask := ^uint64(0)
	if ptr == 4 {
		mask = 0xffffffff
	}

	words := len(data) / wordSize
	cur := -1
	for i := 0; i < words; i++ {
		slotAddr := c.Symbol.Address + uint64(i)*wordSize
		value := uint64(bo.Uint32(data[i*wordSize:]))
		if ptr > wordSize {
			i++
			if i >= words {
				break
			}
			value |= uint64(bo.Uint32(data[i*wordSize:])) << 32
		}

		if ptr == wordSize {
			if target, ok := b.relocs[slotAddr]; ok {
				value = target
			}
		} else if !b.warned64 {
			b.diags.Add(slotAddr, diag.KindRelocation64, "relocations not supported for 64-bit binaries")
			b.warned64 = true
		}

		syms, found := b.symbols[value]
		if !found {
			if cur < 0 || value != 0 {
				c.VTables = append(c.VTables, Segment{OffsetToTop: ^(value - 1) & mask})
				cur = len(c.VTables) - 1
				// Skip the RTTI pointer.
				i += ptr / wordSize
			} else {
				b.pure(c, cur)
			}
			continue
		}

		if cur < 0 {
			b.diags.Addf(slotAddr, diag.KindNoSegment, "vtable for %s: slot before offset-to-top", c.Name)
			c.VTables = append(c.VTables, Segment{})
			cur = 0
		}

		sym := syms[len(syms)-1]
		if sym.Name == SymPureVirtual || sym.Name == SymDeletedVirtual {
			b.pure(c, cur)
			continue
		}

		fn, ok := b.g.byAddr[value]
		if ok {
			if !slices.Contains(fn.Classes, c) {
				fn.Classes = append(fn.Classes, c)
			}
		} else {
			fn = b.function(value, sym, len(syms) > 1)
			fn.Classes = append(fn.Classes, c)
		}
		c.VTables[cur].Functions = append(c.VTables[cur].Functions, fn)
	}
}

func (b *builder) pure(c *Class, cur int) {
	fn := &Function{Name: PureVirtualName}
	b.g.Functions = append(b.g.Functions, fn)
	c.HasMissingFunctions = true
	c.VTables[cur].Functions = append(c.VTables[cur].Functions, fn)
}

func (b *builder) function(addr uint64, sym elfx.Symbol, multi bool) *Function {
	dm, err := demangle.Symbol(sym.Name)
	if err != nil {
		b.diags.Addf(addr, diag.KindDemangle, "%v", err)
		dm = sym.Name
	}

	fn := &Function{
		ID:        addr,
		Symbol:    sym,
		Demangled: dm,
		IsMulti:   multi,
	}
	fn.Name, fn.ShortName, fn.Namespace = SplitName(dm)

	if strings.HasPrefix(sym.Name, demangle.PrefixNonVirtualThunk) {
		fn.IsThunk = true
		// A thunk keeps its qualified name so it never collides with the
		// unqualified names of primary-segment entries.
		target := strings.TrimPrefix(dm, demangle.NonVirtualThunk)
		_, fn.ShortName, fn.Namespace = SplitName(target)
		fn.Name = target
	}

	b.g.Functions = append(b.g.Functions, fn)
	b.g.byAddr[addr] = fn
	return fn
}
