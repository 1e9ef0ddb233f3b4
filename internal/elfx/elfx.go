// Package elfx extracts the sections of an x86 or x86-64 ELF shared object
// needed to recover C++ vtables: symbols, relocations and read-only data.
package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"vtgamedata/internal/diag"
)

var (
	ErrNotELF             = errors.New("elfx: not an ELF file")
	ErrUnsupportedMachine = errors.New("elfx: unsupported architecture")
	ErrMissingSections    = errors.New("elfx: failed to find all required ELF sections")
)

// Section names matched by role.
const (
	SecSymtab        = ".symtab"
	SecStrtab        = ".strtab"
	SecRodata        = ".rodata"
	SecRelRodata     = ".data.rel.ro"
	SecRelDyn        = ".rel.dyn"
	SecDynsym        = ".dynsym"
	SecText          = ".text"
	SecMemberOffsets = ".member_offsets"
)

// Symbol is one entry of the static symbol table.
type Symbol struct {
	Section uint32
	Address uint64
	Size    uint64
	Name    string
}

// Relocation maps a patched location to the value of its target symbol.
type Relocation struct {
	Address uint64
	Target  uint64
}

// Chunk is one piece of a section's data. Offset is relative to the section base.
type Chunk struct {
	Offset uint64
	Data   []byte
}

// Section is a captured data section. Index is 0 (SHN_UNDEF) when the section is absent.
type Section struct {
	Index  uint32
	Addr   uint64
	Chunks []Chunk
}

// Present reports whether the section was found in the image.
func (s *Section) Present() bool { return s.Index != uint32(elf.SHN_UNDEF) }

// MemberOffset is one row of the auxiliary member offset table.
type MemberOffset struct {
	ClassName  string `json:"class" yaml:"class"`
	MemberName string `json:"member" yaml:"member"`
	Offset     uint64 `json:"offset" yaml:"offset"`
}

// Image holds everything extracted from one binary. Chunk data and symbol names
// are views into the raw image bytes, which must outlive the Image.
type Image struct {
	PtrSize       int
	ByteOrder     binary.ByteOrder
	Rodata        Section
	RelRodata     Section
	Text          Section
	Symbols       []Symbol
	Relocations   []Relocation
	MemberOffsets []MemberOffset
	Diags         []diag.Diag

	raw []byte
}

// Size returns the size of the raw image in bytes.
func (img *Image) Size() int { return len(img.raw) }

// Open reads the file at path and extracts its sections.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}
	return Extract(data)
}

type roles struct {
	symtab, strtab, rodata *elf.Section
	relRodata, relDyn      *elf.Section
	dynsym, text, members  *elf.Section
	rodataIdx, relRoIdx    int
	textIdx                int
}

// Extract parses an in-memory ELF image. Malformed individual sections or
// symbols are recorded as diagnostics; only header-level problems and missing
// required sections are returned as errors.
func Extract(data []byte) (*Image, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	defer ef.Close()

	img := &Image{ByteOrder: ef.ByteOrder, raw: data}
	switch {
	case ef.Machine == elf.EM_386 && ef.Class == elf.ELFCLASS32:
		img.PtrSize = 4
	case ef.Machine == elf.EM_X86_64 && ef.Class == elf.ELFCLASS64:
		img.PtrSize = 8
	default:
		// Symbol layouts follow the class, slot widths follow the machine;
		// mixed objects such as x32 are rejected.
		return nil, fmt.Errorf("%w: %s (%d) %s", ErrUnsupportedMachine, ef.Machine, uint16(ef.Machine), ef.Class)
	}

	var diags diag.Diags
	var r roles
	for i, s := range ef.Sections {
		switch {
		case s.Type == elf.SHT_REL && s.Name == SecRelDyn:
			r.relDyn = s
		case s.Type == elf.SHT_DYNSYM && s.Name == SecDynsym:
			r.dynsym = s
		case s.Type == elf.SHT_SYMTAB && s.Name == SecSymtab:
			r.symtab = s
		case s.Type == elf.SHT_STRTAB && s.Name == SecStrtab:
			r.strtab = s
		case s.Type == elf.SHT_PROGBITS && s.Name == SecRodata:
			r.rodata, r.rodataIdx = s, i
		case s.Type == elf.SHT_PROGBITS && s.Name == SecRelRodata:
			r.relRodata, r.relRoIdx = s, i
		case s.Type == elf.SHT_PROGBITS && s.Name == SecText:
			r.text, r.textIdx = s, i
		case s.Type == elf.SHT_PROGBITS && s.Name == SecMemberOffsets:
			r.members = s
		}
	}

	if r.symtab == nil || r.strtab == nil || r.rodata == nil {
		return nil, ErrMissingSections
	}

	img.Rodata = img.capture(r.rodata, r.rodataIdx, &diags)
	if r.relRodata != nil {
		img.RelRodata = img.capture(r.relRodata, r.relRoIdx, &diags)
	}
	if r.text != nil {
		img.Text = img.capture(r.text, r.textIdx, &diags)
	}

	if r.relDyn != nil && r.dynsym != nil && img.PtrSize == 4 {
		img.Relocations = img.readRelocations(r.relDyn, r.dynsym, &diags)
	}

	strtab, ok := img.sectionBytes(r.strtab, &diags)
	if ok {
		img.Symbols = img.readSymbols(r.symtab, strtab, &diags)
	}

	if r.members != nil {
		img.MemberOffsets = img.readMemberOffsets(r.members, &diags)
	}

	img.Diags = diags.Items()
	return img, nil
}

// sectionBytes returns the section's contents, as a view into the raw image
// when the section is stored uncompressed.
func (img *Image) sectionBytes(s *elf.Section, diags *diag.Diags) ([]byte, bool) {
	if s.Type == elf.SHT_NOBITS {
		return nil, true
	}
	if s.Flags&elf.SHF_COMPRESSED == 0 {
		end := s.Offset + s.FileSize
		if end < s.Offset || end > uint64(len(img.raw)) {
			diags.Addf(s.Offset, diag.KindUnreadable, "section %s extends past end of file", s.Name)
			return nil, false
		}
		return img.raw[s.Offset:end], true
	}
	data, err := s.Data()
	if err != nil {
		diags.Addf(s.Offset, diag.KindUnreadable, "section %s: %v", s.Name, err)
		return nil, false
	}
	return data, true
}

func (img *Image) capture(s *elf.Section, index int, diags *diag.Diags) Section {
	sec := Section{Index: uint32(index), Addr: s.Addr}
	if data, ok := img.sectionBytes(s, diags); ok {
		sec.Chunks = append(sec.Chunks, Chunk{Offset: 0, Data: data})
	}
	return sec
}

func (img *Image) readSymbols(symtab *elf.Section, strtab []byte, diags *diag.Diags) []Symbol {
	data, ok := img.sectionBytes(symtab, diags)
	if !ok {
		return nil
	}
	bo := img.ByteOrder
	entSize := elf.Sym32Size
	if img.PtrSize == 8 {
		entSize = elf.Sym64Size
	}

	n := len(data) / entSize
	syms := make([]Symbol, 0, n)
	// Entry 0 is the reserved null symbol.
	for i := 1; i < n; i++ {
		e := data[i*entSize : (i+1)*entSize]
		var nameOff uint32
		var sym Symbol
		if img.PtrSize == 8 {
			nameOff = bo.Uint32(e[0:4])
			sym.Section = uint32(bo.Uint16(e[6:8]))
			sym.Address = bo.Uint64(e[8:16])
			sym.Size = bo.Uint64(e[16:24])
		} else {
			nameOff = bo.Uint32(e[0:4])
			sym.Address = uint64(bo.Uint32(e[4:8]))
			sym.Size = uint64(bo.Uint32(e[8:12]))
			sym.Section = uint32(bo.Uint16(e[14:16]))
		}
		name, err := cString(strtab, uint64(nameOff))
		if err != nil {
			diags.Addf(uint64(i), diag.KindUnnamed, "failed to get symbol name for %d: %v", i, err)
			continue
		}
		sym.Name = name
		syms = append(syms, sym)
	}
	return syms
}

// readRelocations collects R_386_32 entries of .rel.dyn, resolving each
// against .dynsym to the symbol's value.
func (img *Image) readRelocations(relDyn, dynsym *elf.Section, diags *diag.Diags) []Relocation {
	rels, ok := img.sectionBytes(relDyn, diags)
	if !ok {
		return nil
	}
	syms, ok := img.sectionBytes(dynsym, diags)
	if !ok {
		return nil
	}
	bo := img.ByteOrder

	var out []Relocation
	for off := 0; off+8 <= len(rels); off += 8 {
		rOff := bo.Uint32(rels[off : off+4])
		info := bo.Uint32(rels[off+4 : off+8])
		if elf.R_386(elf.R_TYPE32(info)) != elf.R_386_32 {
			continue
		}
		symIdx := int(elf.R_SYM32(info))
		ent := symIdx * elf.Sym32Size
		if ent+elf.Sym32Size > len(syms) {
			diags.Addf(uint64(rOff), diag.KindUnreadable, "relocation references dynamic symbol %d out of range", symIdx)
			continue
		}
		out = append(out, Relocation{
			Address: uint64(rOff),
			Target:  uint64(bo.Uint32(syms[ent+4 : ent+8])),
		})
	}
	return out
}

func (img *Image) readMemberOffsets(s *elf.Section, diags *diag.Diags) []MemberOffset {
	data, ok := img.sectionBytes(s, diags)
	if !ok {
		return nil
	}
	w := img.PtrSize
	row := 3 * w
	var out []MemberOffset
	for off := 0; off+row <= len(data); off += row {
		classPtr := img.word(data[off:])
		memberPtr := img.word(data[off+w:])
		fieldOff := img.word(data[off+2*w:])

		className, err := cString(img.raw, classPtr)
		if err != nil {
			diags.Addf(classPtr, diag.KindMemberOffset, "row %d class name: %v", off/row, err)
			continue
		}
		memberName, err := cString(img.raw, memberPtr)
		if err != nil {
			diags.Addf(memberPtr, diag.KindMemberOffset, "row %d member name: %v", off/row, err)
			continue
		}
		out = append(out, MemberOffset{ClassName: className, MemberName: memberName, Offset: fieldOff})
	}
	return out
}

// word reads one pointer-width value.
func (img *Image) word(b []byte) uint64 {
	if img.PtrSize == 8 {
		return img.ByteOrder.Uint64(b)
	}
	return uint64(img.ByteOrder.Uint32(b))
}

// cString reads a NUL-terminated string starting at off.
func cString(b []byte, off uint64) (string, error) {
	if off >= uint64(len(b)) {
		return "", fmt.Errorf("offset 0x%x beyond 0x%x bytes", off, len(b))
	}
	end := bytes.IndexByte(b[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated string at 0x%x", off)
	}
	return string(b[off : off+uint64(end)]), nil
}
