// Package gamedata resolves symbolic vtable keys to slot indices and renders
// them into template files.
package gamedata

import (
	"errors"
	"fmt"
	"strings"

	"vtgamedata/internal/abi"
	"vtgamedata/internal/vtable"
)

var (
	ErrBadKey   = errors.New("gamedata: malformed symbol key")
	ErrNotFound = errors.New("gamedata: symbol not found")
)

// PlatformLinux selects the native index; any other key suffix selects the
// inferred one.
const PlatformLinux = "linux"

// Slot holds both indices of one virtual function.
type Slot struct {
	Linux   int `json:"linux" yaml:"linux"`
	Windows int `json:"windows" yaml:"windows"`
}

// Offsets maps class name -> function namespace -> function name -> slot.
type Offsets map[string]map[string]map[string]Slot

// Prepare indexes every class. Functions without a Windows index are left
// out; on duplicate names the first class or function wins.
func Prepare(classes []*vtable.Class) Offsets {
	out := make(Offsets)
	for _, c := range classes {
		if _, dup := out[c.Name]; dup {
			continue
		}
		namespaces := make(map[string]map[string]Slot)
		for _, e := range abi.Index(c) {
			if !e.HasWindows {
				continue
			}
			fn := e.Function
			fns := namespaces[fn.Namespace]
			if fns == nil {
				fns = make(map[string]Slot)
				namespaces[fn.Namespace] = fns
			}
			if _, dup := fns[fn.Name]; dup {
				continue
			}
			fns[fn.Name] = Slot{Linux: e.Linux, Windows: e.Windows}
		}
		out[c.Name] = namespaces
	}
	return out
}

// Key is a parsed "Class::Namespace::Function.platform" reference.
type Key struct {
	Class     string
	Namespace string
	Function  string
	Platform  string
}

// ParseKey splits a symbol key. The platform follows the final '.', the class
// precedes the first "::", the function follows the last "::" before its
// argument list, and the namespace is everything in between.
func ParseKey(s string) (Key, error) {
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return Key{}, fmt.Errorf("%w: %s (missing '.' separator)", ErrBadKey, s)
	}
	sym, platform := s[:dot], s[dot+1:]

	first := strings.Index(sym, "::")
	if first < 0 {
		return Key{}, fmt.Errorf("%w: %s (missing '::' separator)", ErrBadKey, s)
	}
	head := sym
	if p := strings.IndexByte(sym, '('); p >= 0 {
		head = sym[:p]
	}
	last := strings.LastIndex(head, "::")
	if last <= first {
		return Key{}, fmt.Errorf("%w: %s (missing namespace)", ErrBadKey, s)
	}
	return Key{
		Class:     sym[:first],
		Namespace: sym[first+2 : last],
		Function:  sym[last+2:],
		Platform:  platform,
	}, nil
}

// Lookup resolves a key to its Linux index for platform "linux" and its
// Windows index otherwise.
func (o Offsets) Lookup(s string) (int, error) {
	k, err := ParseKey(s)
	if err != nil {
		return 0, err
	}
	namespaces, ok := o[k.Class]
	if !ok {
		return 0, fmt.Errorf("%w: failed to find class vtable by its name '%s'", ErrNotFound, k.Class)
	}
	fns, ok := namespaces[k.Namespace]
	if !ok {
		return 0, fmt.Errorf("%w: failed to find class namespace by its name '%s'", ErrNotFound, k.Namespace)
	}
	slot, ok := fns[k.Function]
	if !ok {
		return 0, fmt.Errorf("%w: failed to find function by its name '%s'", ErrNotFound, k.Function)
	}
	if k.Platform == PlatformLinux {
		return slot.Linux, nil
	}
	return slot.Windows, nil
}
