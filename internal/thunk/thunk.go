// Package thunk decodes Itanium non-virtual thunks on x86 and x86-64.
//
// A non-virtual thunk adjusts the this pointer and tail-calls the override:
//
//	x86-64:  sub $0x8, %rdi        ; or add $-0x8, %rdi
//	         jmp Foo::Bar()
//	x86:     subl $0x8, 0x4(%esp)
//	         jmp Foo::Bar()
package thunk

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

var (
	ErrNoAdjust = errors.New("thunk: no this-pointer adjustment found")
	ErrNoJump   = errors.New("thunk: no tail jump found")
)

// maxInsts bounds how far into a thunk body decoding goes.
const maxInsts = 4

// Thunk is a decoded this-adjusting trampoline.
type Thunk struct {
	Adjust int64  // added to this; negative for the usual secondary-base thunk
	Target uint64 // address the thunk jumps to
}

func (t Thunk) String() string {
	return t.Format(fmt.Sprintf("0x%x", t.Target))
}

// Format renders t with target standing in for the jump address.
func (t Thunk) Format(target string) string {
	if t.Adjust < 0 {
		return fmt.Sprintf("this-=%d -> %s", -t.Adjust, target)
	}
	return fmt.Sprintf("this+=%d -> %s", t.Adjust, target)
}

// Decode decodes the thunk at addr. ptrSize selects the instruction set:
// 4 for 32-bit x86, 8 for x86-64.
func Decode(code []byte, ptrSize int, addr uint64) (Thunk, error) {
	mode := 64
	if ptrSize == 4 {
		mode = 32
	}

	var t Thunk
	haveAdjust := false
	for off, n := 0, 0; off < len(code) && n < maxInsts; n++ {
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil {
			return Thunk{}, fmt.Errorf("thunk: decode at 0x%x: %w", addr+uint64(off), err)
		}
		next := addr + uint64(off+inst.Len)

		switch inst.Op {
		case x86asm.ADD, x86asm.SUB:
			if haveAdjust || !isThis(inst.Args[0], mode) {
				break
			}
			imm, ok := inst.Args[1].(x86asm.Imm)
			if !ok {
				break
			}
			t.Adjust = int64(imm)
			if inst.Op == x86asm.SUB {
				t.Adjust = -t.Adjust
			}
			haveAdjust = true
		case x86asm.JMP:
			rel, ok := inst.Args[0].(x86asm.Rel)
			if !ok {
				return Thunk{}, ErrNoJump
			}
			if !haveAdjust {
				return Thunk{}, ErrNoAdjust
			}
			t.Target = uint64(int64(next) + int64(rel))
			return t, nil
		}
		off += inst.Len
	}
	if !haveAdjust {
		return Thunk{}, ErrNoAdjust
	}
	return Thunk{}, ErrNoJump
}

// isThis reports whether arg is where the calling convention passes this:
// RDI on x86-64, the first stack argument [ESP+4] on x86.
func isThis(arg x86asm.Arg, mode int) bool {
	if mode == 64 {
		return arg == x86asm.RDI
	}
	mem, ok := arg.(x86asm.Mem)
	return ok && mem.Base == x86asm.ESP && mem.Index == 0 && mem.Disp == 4
}
