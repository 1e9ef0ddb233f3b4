package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"vtgamedata/internal/abi"
	"vtgamedata/internal/demangle"
	"vtgamedata/internal/thunk"
	"vtgamedata/internal/vtable"
)

var (
	colorHeader = color.New(color.FgCyan, color.Bold).SprintFunc()
	colorIndex  = color.New(color.FgHiBlue).SprintFunc()
	colorMulti  = color.New(color.FgRed).SprintFunc()
	colorFaint  = color.New(color.Faint).SprintFunc()
)

// decodeThunk decodes fn's body when it is a thunk with code in .text.
func decodeThunk(g *vtable.Graph, fn *vtable.Function) (thunk.Thunk, bool) {
	if !fn.IsThunk {
		return thunk.Thunk{}, false
	}
	code, err := g.FunctionBytes(fn)
	if err != nil || len(code) == 0 {
		return thunk.Thunk{}, false
	}
	t, err := thunk.Decode(code, g.PtrSize, fn.ID)
	if err != nil {
		return thunk.Thunk{}, false
	}
	return t, true
}

// thunkTarget resolves a thunk to the demangled name of the function it jumps to.
func thunkTarget(g *vtable.Graph) func(*vtable.Function) (string, bool) {
	return func(fn *vtable.Function) (string, bool) {
		t, ok := decodeThunk(g, fn)
		if !ok {
			return "", false
		}
		if to, ok := g.FunctionAt(t.Target); ok {
			return to.Demangled, true
		}
		return "", false
	}
}

// selectClasses resolves names to classes, keeping the order given. No names
// selects every class.
func selectClasses(g *vtable.Graph, names []string) ([]*vtable.Class, error) {
	if len(names) == 0 {
		return g.Classes, nil
	}
	out := make([]*vtable.Class, 0, len(names))
	for _, name := range names {
		c, ok := g.Class(name)
		if !ok {
			return nil, fmt.Errorf("failed to find class vtable by its name '%s'", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// thunkNote renders "this-=N -> target" for a thunk slot, or "".
func thunkNote(g *vtable.Graph, fn *vtable.Function) string {
	t, ok := decodeThunk(g, fn)
	if !ok {
		return ""
	}
	if to, ok := g.FunctionAt(t.Target); ok {
		return t.Format(to.Demangled)
	}
	return t.String()
}

// dumpSlots prints, per class, a header line followed by one row per primary
// slot: native index, inferred index (blank when absent) and name.
//
//	L W CBaseEntity
//	0 0 ~CBaseEntity()
//	1   ~CBaseEntity()
//	2 1 Spawn()
func dumpSlots(w io.Writer, g *vtable.Graph, classes []*vtable.Class) error {
	bw := bufio.NewWriter(w)
	for _, c := range classes {
		bw.WriteString(colorHeader("L W " + c.Name))
		bw.WriteByte('\n')
		for _, e := range abi.Index(c) {
			win := " "
			if e.HasWindows {
				win = strconv.Itoa(e.Windows)
			}
			bw.WriteString(colorIndex(strconv.Itoa(e.Linux) + " " + win))
			bw.WriteByte(' ')
			bw.WriteString(e.Function.Name)
			if e.Function.IsMulti {
				bw.WriteString(" " + colorMulti("[Multi]"))
			}
			if note := thunkNote(g, e.Function); note != "" {
				bw.WriteString(" " + colorFaint("("+note+")"))
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// dumpSymbols prints every named symbol with its address, size and demangled name.
func dumpSymbols(w io.Writer, g *vtable.Graph) error {
	bw := bufio.NewWriter(w)
	for _, s := range g.Symbols {
		bw.WriteString(colorIndex(fmt.Sprintf("%08x", s.Address)))
		bw.WriteByte(' ')
		bw.WriteString(colorFaint(fmt.Sprintf("%6d", s.Size)))
		bw.WriteByte(' ')
		bw.WriteString(demangle.OrRaw(s.Name))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
