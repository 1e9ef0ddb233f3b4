package elfx

import (
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtgamedata/internal/diag"
	"vtgamedata/internal/elfx/elftest"
)

func TestExtract32(t *testing.T) {
	b := elftest.New32()
	rodata := b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, b.Words(0, 0, 0x2000, 0x2010))
	relro := b.AddSection(SecRelRodata, elf.SHT_PROGBITS, 0x3000, b.Words(0, 0, 0))
	b.AddSection(SecDynsym, elf.SHT_DYNSYM, 0, elftest.DynSym32(0x2020, 0x2030))
	b.AddSection(SecRelDyn, elf.SHT_REL, 0, elftest.EncodeRel32(
		elftest.Rel32{Offset: 0x3008, Sym: 1, Type: elf.R_386_32},
		elftest.Rel32{Offset: 0x300c, Sym: 2, Type: elf.R_386_RELATIVE},
	))
	b.AddSymbol("_ZTV3Foo", rodata, 0x1000, 16)
	b.AddSymbol("_ZN3Foo3BarEv", 0, 0x2000, 4)

	img, err := Extract(b.Bytes())
	require.NoError(t, err)

	assert.Equal(t, 4, img.PtrSize)
	assert.Equal(t, uint32(rodata), img.Rodata.Index)
	assert.Equal(t, uint64(0x1000), img.Rodata.Addr)
	require.Len(t, img.Rodata.Chunks, 1)
	assert.Len(t, img.Rodata.Chunks[0].Data, 16)
	assert.Equal(t, uint32(relro), img.RelRodata.Index)
	assert.False(t, img.Text.Present())

	require.Len(t, img.Symbols, 2)
	assert.Equal(t, Symbol{Section: uint32(rodata), Address: 0x1000, Size: 16, Name: "_ZTV3Foo"}, img.Symbols[0])
	assert.Equal(t, "_ZN3Foo3BarEv", img.Symbols[1].Name)

	// Only the R_386_32 entry survives.
	assert.Equal(t, []Relocation{{Address: 0x3008, Target: 0x2020}}, img.Relocations)
	assert.Empty(t, img.Diags)
}

func TestExtract64IgnoresRelocations(t *testing.T) {
	b := elftest.New64()
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, b.Words(0, 0))
	b.AddSection(SecText, elf.SHT_PROGBITS, 0x5000, []byte{0xc3})
	b.AddSection(SecDynsym, elf.SHT_DYNSYM, 0, elftest.DynSym32(0x2020))
	b.AddSection(SecRelDyn, elf.SHT_REL, 0, elftest.EncodeRel32(elftest.Rel32{Offset: 0x1000, Sym: 1, Type: elf.R_386_32}))
	b.AddSymbol("_ZTV3Foo", 1, 0x1000, 16)

	img, err := Extract(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 8, img.PtrSize)
	assert.Empty(t, img.Relocations)
	assert.True(t, img.Text.Present())
	assert.Equal(t, uint64(0x5000), img.Text.Addr)
	require.Len(t, img.Symbols, 1)
	assert.Equal(t, uint64(16), img.Symbols[0].Size)
}

func TestExtractMissingRodata(t *testing.T) {
	b := elftest.New32()
	b.AddSection(SecRelRodata, elf.SHT_PROGBITS, 0x1000, []byte{0, 0, 0, 0})
	b.AddSymbol("_ZTV3Foo", 1, 0x1000, 4)

	img, err := Extract(b.Bytes())
	assert.Nil(t, img)
	assert.True(t, errors.Is(err, ErrMissingSections))
}

func TestExtractMissingSymtab(t *testing.T) {
	b := elftest.New32()
	b.NoSymtab = true
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, []byte{0, 0, 0, 0})

	_, err := Extract(b.Bytes())
	assert.True(t, errors.Is(err, ErrMissingSections))
}

func TestExtractRodataWrongType(t *testing.T) {
	b := elftest.New32()
	b.AddSection(SecRodata, elf.SHT_NOBITS, 0x1000, nil)

	_, err := Extract(b.Bytes())
	assert.True(t, errors.Is(err, ErrMissingSections))
}

func TestExtractUnsupportedMachine(t *testing.T) {
	b := elftest.New64()
	b.Machine = elf.EM_AARCH64
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, []byte{0})

	_, err := Extract(b.Bytes())
	assert.True(t, errors.Is(err, ErrUnsupportedMachine))
}

func TestExtractClassMachineMismatch(t *testing.T) {
	// x32: ELFCLASS32 with EM_X86_64.
	b := elftest.New32()
	b.Machine = elf.EM_X86_64
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, []byte{0, 0, 0, 0})
	b.AddSymbol("_ZN3Foo3BarEv", 1, 0x1000, 4)

	img, err := Extract(b.Bytes())
	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrUnsupportedMachine)

	b = elftest.New64()
	b.Machine = elf.EM_386
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, []byte{0, 0, 0, 0})

	_, err = Extract(b.Bytes())
	assert.ErrorIs(t, err, ErrUnsupportedMachine)
}

func TestExtractUnnamedSymbol(t *testing.T) {
	b := elftest.New32()
	rodata := b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, b.Words(0, 0))
	b.AddSymbol("_ZTV3Foo", rodata, 0x1000, 8)
	b.Symbols = append(b.Symbols, elftest.Sym{Name: "_ZN3Foo3BazEv", Section: 0, Value: 0x2010, Size: 4, BadName: true})
	b.AddSymbol("_ZN3Foo3BarEv", 0, 0x2000, 4)

	img, err := Extract(b.Bytes())
	require.NoError(t, err)

	require.Len(t, img.Symbols, 2)
	assert.Equal(t, "_ZTV3Foo", img.Symbols[0].Name)
	assert.Equal(t, "_ZN3Foo3BarEv", img.Symbols[1].Name)

	var d diag.Diags
	d.Merge(img.Diags)
	require.Equal(t, 1, d.Count(diag.KindUnnamed))
	assert.Equal(t, uint64(2), img.Diags[0].Offset)
}

func TestExtractRelocationSymbolOutOfRange(t *testing.T) {
	b := elftest.New32()
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, b.Words(0, 0))
	b.AddSection(SecRelRodata, elf.SHT_PROGBITS, 0x3000, b.Words(0, 0, 0))
	b.AddSection(SecDynsym, elf.SHT_DYNSYM, 0, elftest.DynSym32(0x2020))
	b.AddSection(SecRelDyn, elf.SHT_REL, 0, elftest.EncodeRel32(
		elftest.Rel32{Offset: 0x3000, Sym: 1, Type: elf.R_386_32},
		elftest.Rel32{Offset: 0x3004, Sym: 9, Type: elf.R_386_32},
		elftest.Rel32{Offset: 0x3008, Sym: 1, Type: elf.R_386_32},
	))
	b.AddSymbol("_ZN3Foo3BarEv", 0, 0x2020, 4)

	img, err := Extract(b.Bytes())
	require.NoError(t, err)

	assert.Equal(t, []Relocation{
		{Address: 0x3000, Target: 0x2020},
		{Address: 0x3008, Target: 0x2020},
	}, img.Relocations)
	require.Len(t, img.Diags, 1)
	assert.Equal(t, diag.KindUnreadable, img.Diags[0].Kind)
	assert.Equal(t, uint64(0x3004), img.Diags[0].Offset)
	assert.Len(t, img.Symbols, 1)
}

func TestExtractSectionPastEOF(t *testing.T) {
	b := elftest.New32()
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, b.Words(0, 0))
	relro := b.AddSection(SecRelRodata, elf.SHT_PROGBITS, 0x3000, b.Words(0, 0))
	b.Overrun(relro, 1<<20)
	b.AddSymbol("_ZTV3Foo", 1, 0x1000, 8)

	img, err := Extract(b.Bytes())
	require.NoError(t, err)

	assert.True(t, img.RelRodata.Present())
	assert.Empty(t, img.RelRodata.Chunks)
	require.Len(t, img.Rodata.Chunks, 1)
	assert.Len(t, img.Symbols, 1)

	var d diag.Diags
	d.Merge(img.Diags)
	assert.Equal(t, 1, d.Count(diag.KindUnreadable))
}

func TestExtractRejectsNonELF(t *testing.T) {
	_, err := Extract([]byte("not an ELF file at all"))
	assert.True(t, errors.Is(err, ErrNotELF))
}

func TestExtractMemberOffsets(t *testing.T) {
	b := elftest.New64()
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, []byte{0})
	names := b.AddSection(".names", elf.SHT_PROGBITS, 0, []byte("CPlayer\x00m_iHealth\x00"))
	base := b.Offset(names)
	b.AddSection(SecMemberOffsets, elf.SHT_PROGBITS, 0, b.Words(
		base, base+8, 0x1c4,
		base, 0xffffff, 4, // member pointer past end of file
	))

	img, err := Extract(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []MemberOffset{{ClassName: "CPlayer", MemberName: "m_iHealth", Offset: 0x1c4}}, img.MemberOffsets)

	var d diag.Diags
	d.Merge(img.Diags)
	assert.Equal(t, 1, d.Count(diag.KindMemberOffset))
}

func TestOpen(t *testing.T) {
	b := elftest.New32()
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, []byte{0, 0, 0, 0})
	path := filepath.Join(t.TempDir(), "server.so")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0644))

	img, err := Open(path)
	require.NoError(t, err)
	assert.Greater(t, img.Size(), 0)

	_, err = Open(filepath.Join(t.TempDir(), "missing.so"))
	assert.Error(t, err)
}

func TestCString(t *testing.T) {
	s, err := cString([]byte("abc\x00def\x00"), 4)
	require.NoError(t, err)
	assert.Equal(t, "def", s)

	_, err = cString([]byte("abc"), 0)
	assert.Error(t, err)
	_, err = cString([]byte("abc"), 9)
	assert.Error(t, err)
}

func FuzzExtract(f *testing.F) {
	b := elftest.New32()
	b.AddSection(SecRodata, elf.SHT_PROGBITS, 0x1000, b.Words(0, 0, 0x2000))
	b.AddSymbol("_ZTV3Foo", 1, 0x1000, 12)
	f.Add(b.Bytes())
	f.Add([]byte("\x7fELF\x01\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	f.Add([]byte("not an elf at all"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		img, err := Extract(data)
		if err != nil {
			return
		}
		if img.PtrSize != 4 && img.PtrSize != 8 {
			t.Fatalf("pointer size %d", img.PtrSize)
		}
	})
}
