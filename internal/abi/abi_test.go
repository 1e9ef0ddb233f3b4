package abi

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtgamedata/internal/elfx"
	"vtgamedata/internal/vtable"
)

var nextID uint64 = 0x1000

func fn(demangled string) *vtable.Function {
	nextID += 0x10
	f := &vtable.Function{ID: nextID, Symbol: elfx.Symbol{Name: "_Z" + demangled, Address: nextID, Size: 4}, Demangled: demangled}
	f.Name, f.ShortName, f.Namespace = vtable.SplitName(demangled)
	return f
}

func thunk(demangled string) *vtable.Function {
	f := fn(demangled)
	f.IsThunk = true
	f.Name = demangled
	return f
}

func pure() *vtable.Function {
	return &vtable.Function{Name: vtable.PureVirtualName}
}

func class(segs ...[]*vtable.Function) *vtable.Class {
	c := &vtable.Class{Name: "Foo"}
	for _, s := range segs {
		c.VTables = append(c.VTables, vtable.Segment{Functions: s})
	}
	return c
}

type pair struct {
	linux   int
	windows int // -1 when absent
}

func pairs(entries []Entry) []pair {
	var out []pair
	for _, e := range entries {
		w := -1
		if e.HasWindows {
			w = e.Windows
		}
		out = append(out, pair{e.Linux, w})
	}
	return out
}

func TestIndexSimple(t *testing.T) {
	c := class([]*vtable.Function{fn("Foo::A()"), fn("Foo::B()"), fn("Foo::C()")})
	assert.Equal(t, []pair{{0, 0}, {1, 1}, {2, 2}}, pairs(Index(c)))
}

func TestIndexLinuxIsPosition(t *testing.T) {
	dtor := fn("Foo::~Foo()")
	c := class([]*vtable.Function{dtor, fn("Foo::~Foo()"), pure(), fn("Foo::Write(int)"), fn("Foo::Write(char)")})
	for i, e := range Index(c) {
		assert.Equal(t, i, e.Linux)
		assert.Same(t, c.VTables[0].Functions[i], e.Function)
	}
}

func TestIndexDestructorPair(t *testing.T) {
	c := class([]*vtable.Function{fn("Foo::~Foo()"), fn("Foo::~Foo()"), fn("Foo::Run()")})
	assert.Equal(t, []pair{{0, 0}, {1, -1}, {2, 1}}, pairs(Index(c)))
}

func TestIndexDestructorNotAdjacent(t *testing.T) {
	c := class([]*vtable.Function{fn("Foo::~Foo()"), fn("Foo::Run()"), fn("Foo::~Foo()")})
	assert.Equal(t, []pair{{0, 0}, {1, 1}, {2, 2}}, pairs(Index(c)))
}

func TestIndexThunkInLaterSegment(t *testing.T) {
	primary := []*vtable.Function{fn("Foo::A()"), fn("Foo::Bar()"), fn("Foo::C()")}
	secondary := []*vtable.Function{thunk("Foo::Bar()")}
	c := class(primary, secondary)

	// Thunks keep their qualified name, so the primary entry keeps its index
	// and the secondary segment adds none.
	got := pairs(Index(c))
	assert.Equal(t, []pair{{0, 0}, {1, 1}, {2, 2}}, got)
	assert.Len(t, got, len(primary))
}

func TestShouldSkipWindowsMatchingThunk(t *testing.T) {
	bar := fn("Foo::Bar()")
	relisted := thunk("Bar()")
	c := class([]*vtable.Function{fn("Foo::A()"), bar, fn("Foo::C()")}, []*vtable.Function{relisted})

	assert.True(t, ShouldSkipWindows(c, 0, 1))
	assert.False(t, ShouldSkipWindows(c, 0, 0))
	assert.False(t, ShouldSkipWindows(c, 1, 0))
	assert.Equal(t, []pair{{0, 0}, {1, -1}, {2, 1}}, pairs(Index(c)))
}

func TestShouldSkipWindowsIgnoresNonThunk(t *testing.T) {
	c := class([]*vtable.Function{fn("Foo::Bar()")}, []*vtable.Function{fn("Base::Bar()")})
	assert.False(t, ShouldSkipWindows(c, 0, 0))
}

func TestIndexOverloadRun(t *testing.T) {
	c := class([]*vtable.Function{
		fn("Foo::A()"),
		fn("Foo::Write(int)"),
		fn("Foo::Write(char)"),
		fn("Foo::Write(float)"),
		fn("Foo::B()"),
	})
	got := pairs(Index(c))
	assert.Equal(t, []pair{{0, 0}, {1, 3}, {2, 2}, {3, 1}, {4, 4}}, got)

	run := []int{got[1].windows, got[2].windows, got[3].windows}
	sort.Ints(run)
	assert.Equal(t, []int{1, 2, 3}, run)
}

func TestIndexOverloadRunBrokenBySkip(t *testing.T) {
	c := class([]*vtable.Function{
		fn("Foo::~Foo()"),
		fn("Foo::~Foo()"),
		fn("Foo::Write(int)"),
		fn("Foo::Write(char)"),
	})
	assert.Equal(t, []pair{{0, 0}, {1, -1}, {2, 2}, {3, 1}}, pairs(Index(c)))
}

func TestIndexMultiNotShifted(t *testing.T) {
	a := fn("Foo::Write(int)")
	b := fn("Foo::Write(char)")
	b.IsMulti = true
	c := class([]*vtable.Function{a, b})
	// a still counts b as an overload; b itself is not shifted.
	assert.Equal(t, []pair{{0, 1}, {1, 1}}, pairs(Index(c)))
}

func TestIndexPureVirtual(t *testing.T) {
	c := class([]*vtable.Function{fn("Foo::A()"), pure(), pure(), fn("Foo::B()")})
	c.HasMissingFunctions = true
	assert.Equal(t, []pair{{0, 0}, {1, 1}, {2, 2}, {3, 3}}, pairs(Index(c)))
}

func TestIndexNoSegments(t *testing.T) {
	assert.Nil(t, Index(&vtable.Class{Name: "Empty"}))
}

func TestIndexIdempotent(t *testing.T) {
	c := class(
		[]*vtable.Function{fn("Foo::~Foo()"), fn("Foo::~Foo()"), fn("Foo::Write(int)"), fn("Foo::Write(char)"), fn("Foo::Bar()")},
		[]*vtable.Function{thunk("Bar()")},
	)
	first := pairs(Index(c))
	second := pairs(Index(c))
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestOverloadShift(t *testing.T) {
	c := class([]*vtable.Function{fn("Foo::Write(int)"), fn("Foo::Write(char)"), pure()})
	assert.Equal(t, 1, OverloadShift(c, 0, 0))
	assert.Equal(t, -1, OverloadShift(c, 0, 1))
	assert.Equal(t, 0, OverloadShift(c, 0, 2))
}
