// Package abi infers MSVC vtable slot indices from Itanium vtable layouts.
//
// The mapping is empirical. Relative to the Itanium layout, MSVC:
//
//   - emits one slot for the complete/deleting destructor pair
//   - omits primary-vtable entries for overrides that a secondary base re-lists
//   - declares each contiguous overload set in reverse order
package abi

import (
	"strings"

	"vtgamedata/internal/vtable"
)

// Entry is the indexing result for one slot of a class's primary segment.
type Entry struct {
	Function   *vtable.Function
	Linux      int
	Windows    int
	HasWindows bool
}

// ShouldSkipWindows reports whether the slot at idx of segment seg has no
// counterpart in the MSVC vtable.
func ShouldSkipWindows(c *vtable.Class, seg, idx int) bool {
	fns := c.VTables[seg].Functions
	fn := fns[idx]

	if strings.HasPrefix(fn.Name, "~") {
		return idx > 0 && fns[idx-1].Name == fn.Name
	}

	for n := seg + 1; n < len(c.VTables); n++ {
		for _, other := range c.VTables[n].Functions {
			if other.IsThunk && other.Name == fn.Name {
				return true
			}
		}
	}
	return false
}

// OverloadShift returns the correction applied to the running MSVC index of
// the slot at idx: the number of contiguous kept overloads after it minus the
// number before it. Placeholders and aliased functions are never shifted.
func OverloadShift(c *vtable.Class, seg, idx int) int {
	fns := c.VTables[seg].Functions
	fn := fns[idx]
	if fn.Symbol.Name == "" || fn.IsMulti {
		return 0
	}

	previous := 0
	for i := idx - 1; i >= 0; i-- {
		if ShouldSkipWindows(c, seg, i) || fns[i].ShortName != fn.ShortName {
			break
		}
		previous++
	}

	remaining := 0
	for i := idx + 1; i < len(fns); i++ {
		if ShouldSkipWindows(c, seg, i) || fns[i].ShortName != fn.ShortName {
			break
		}
		remaining++
	}

	return remaining - previous
}

// Index assigns Linux and Windows slot indices to every function of the
// primary segment of c. Secondary segments are not indexed. Indices of a class
// with HasMissingFunctions set are unreliable.
func Index(c *vtable.Class) []Entry {
	if len(c.VTables) == 0 {
		return nil
	}
	const seg = 0
	fns := c.VTables[seg].Functions
	out := make([]Entry, 0, len(fns))

	windows := 0
	for i, fn := range fns {
		e := Entry{Function: fn, Linux: i}
		if !ShouldSkipWindows(c, seg, i) {
			e.Windows = windows + OverloadShift(c, seg, i)
			e.HasWindows = true
			windows++
		}
		out = append(out, e)
	}
	return out
}
