// Package elftest builds small little-endian ELF shared objects in memory for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

var le = binary.LittleEndian

// Sym is a static symbol to emit into .symtab.
type Sym struct {
	Name    string
	Section uint16
	Value   uint64
	Size    uint64
	BadName bool // st_name points past the end of .strtab
}

type section struct {
	name    string
	typ     elf.SectionType
	addr    uint64
	data    []byte
	off     uint64
	link    uint32
	entsize uint64
	overrun uint64
}

// Builder accumulates sections and symbols. Section data is laid out in the
// order sections are added, directly after the ELF header.
type Builder struct {
	Class    elf.Class
	Machine  elf.Machine
	Symbols  []Sym
	NoSymtab bool

	sections []section
	cursor   uint64
}

// New32 returns a builder for an x86 (EM_386) object.
func New32() *Builder {
	return &Builder{Class: elf.ELFCLASS32, Machine: elf.EM_386, cursor: 52}
}

// New64 returns a builder for an x86-64 (EM_X86_64) object.
func New64() *Builder {
	return &Builder{Class: elf.ELFCLASS64, Machine: elf.EM_X86_64, cursor: 64}
}

func align(v, a uint64) uint64 { return (v + a - 1) &^ (a - 1) }

// AddSection appends a section and returns its section header index.
func (b *Builder) AddSection(name string, typ elf.SectionType, addr uint64, data []byte) uint16 {
	off := align(b.cursor, 8)
	b.sections = append(b.sections, section{name: name, typ: typ, addr: addr, data: data, off: off})
	b.cursor = off + uint64(len(data))
	return uint16(len(b.sections))
}

// Offset returns the file offset of the data of section idx.
func (b *Builder) Offset(idx uint16) uint64 {
	return b.sections[idx-1].off
}

// Overrun declares section idx n bytes larger than its data, so its header
// extends past the end of the file.
func (b *Builder) Overrun(idx uint16, n uint64) {
	b.sections[idx-1].overrun = n
}

// AddSymbol appends a static symbol.
func (b *Builder) AddSymbol(name string, section uint16, value, size uint64) {
	b.Symbols = append(b.Symbols, Sym{Name: name, Section: section, Value: value, Size: size})
}

func (b *Builder) is64() bool { return b.Class == elf.ELFCLASS64 }

// Words encodes pointer-width little-endian values.
func (b *Builder) Words(vals ...uint64) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		if b.is64() {
			binary.Write(&buf, le, v)
		} else {
			binary.Write(&buf, le, uint32(v))
		}
	}
	return buf.Bytes()
}

// DynSym32 encodes a 32-bit dynamic symbol table whose entry i+1 has value values[i].
func DynSym32(values ...uint32) []byte {
	buf := make([]byte, elf.Sym32Size*(len(values)+1))
	for i, v := range values {
		le.PutUint32(buf[(i+1)*elf.Sym32Size+4:], v)
	}
	return buf
}

// Rel32 is one SHT_REL entry for a 32-bit object.
type Rel32 struct {
	Offset uint32
	Sym    uint32
	Type   elf.R_386
}

// EncodeRel32 encodes REL entries.
func EncodeRel32(rels ...Rel32) []byte {
	buf := make([]byte, 8*len(rels))
	for i, r := range rels {
		le.PutUint32(buf[i*8:], r.Offset)
		le.PutUint32(buf[i*8+4:], elf.R_INFO32(r.Sym, uint32(r.Type)))
	}
	return buf
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

func (b *Builder) symtab() (symtab, strs []byte) {
	st := newStrtab()
	var buf bytes.Buffer
	if b.is64() {
		buf.Write(make([]byte, elf.Sym64Size))
	} else {
		buf.Write(make([]byte, elf.Sym32Size))
	}
	for _, s := range b.Symbols {
		name := st.add(s.Name)
		if s.BadName {
			name = 0xfffffff0
		}
		if b.is64() {
			binary.Write(&buf, le, elf.Sym64{Name: name, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: s.Section, Value: s.Value, Size: s.Size})
		} else {
			binary.Write(&buf, le, elf.Sym32{Name: name, Value: uint32(s.Value), Size: uint32(s.Size), Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: s.Section})
		}
	}
	return buf.Bytes(), st.buf.Bytes()
}

// Bytes lays out the object: header, section data, then the section header table.
func (b *Builder) Bytes() []byte {
	secs := append([]section(nil), b.sections...)
	cursor := b.cursor
	place := func(s section) section {
		s.off = align(cursor, 8)
		cursor = s.off + uint64(len(s.data))
		return s
	}
	if !b.NoSymtab {
		symData, strData := b.symtab()
		ent := uint64(elf.Sym32Size)
		if b.is64() {
			ent = elf.Sym64Size
		}
		strIdx := uint32(len(secs) + 2)
		secs = append(secs, place(section{name: ".symtab", typ: elf.SHT_SYMTAB, data: symData, link: strIdx, entsize: ent}))
		secs = append(secs, place(section{name: ".strtab", typ: elf.SHT_STRTAB, data: strData}))
	}

	shstr := newStrtab()
	names := make([]uint32, len(secs))
	for i, s := range secs {
		names[i] = shstr.add(s.name)
	}
	shstrName := shstr.add(".shstrtab")
	secs = append(secs, place(section{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstr.buf.Bytes()}))
	names = append(names, shstrName)

	shoff := align(cursor, 8)
	shnum := uint16(len(secs) + 1)

	var out bytes.Buffer
	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(b.Class), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)}
	if b.is64() {
		binary.Write(&out, le, elf.Header64{
			Ident: ident, Type: uint16(elf.ET_DYN), Machine: uint16(b.Machine), Version: uint32(elf.EV_CURRENT),
			Shoff: shoff, Ehsize: 64, Shentsize: 64, Shnum: shnum, Shstrndx: shnum - 1,
		})
	} else {
		binary.Write(&out, le, elf.Header32{
			Ident: ident, Type: uint16(elf.ET_DYN), Machine: uint16(b.Machine), Version: uint32(elf.EV_CURRENT),
			Shoff: uint32(shoff), Ehsize: 52, Shentsize: 40, Shnum: shnum, Shstrndx: shnum - 1,
		})
	}

	for _, s := range secs {
		out.Write(make([]byte, int(s.off)-out.Len()))
		out.Write(s.data)
	}
	out.Write(make([]byte, int(shoff)-out.Len()))

	if b.is64() {
		binary.Write(&out, le, elf.Section64{})
	} else {
		binary.Write(&out, le, elf.Section32{})
	}
	for i, s := range secs {
		if b.is64() {
			binary.Write(&out, le, elf.Section64{
				Name: names[i], Type: uint32(s.typ), Addr: s.addr, Off: s.off, Size: uint64(len(s.data)) + s.overrun,
				Link: s.link, Addralign: 8, Entsize: s.entsize,
			})
		} else {
			binary.Write(&out, le, elf.Section32{
				Name: names[i], Type: uint32(s.typ), Addr: uint32(s.addr), Off: uint32(s.off), Size: uint32(uint64(len(s.data)) + s.overrun),
				Link: s.link, Addralign: 8, Entsize: uint32(s.entsize),
			})
		}
	}
	return out.Bytes()
}
