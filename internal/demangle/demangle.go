// Package demangle turns Itanium C++ ABI symbol names into readable text.
package demangle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// ErrNotMangled is returned for names that are not valid Itanium mangled names.
var ErrNotMangled = errors.New("demangle: not a mangled name")

// Itanium ABI symbol prefixes.
const (
	PrefixVTable          = "_ZTV"
	PrefixNonVirtualThunk = "_ZTh"
)

// Fixed text the demangler puts in front of special names.
const (
	VTableFor       = "vtable for "
	NonVirtualThunk = "non-virtual thunk to "
)

// Symbol demangles name. Clone suffixes (".cold", ".isra.0") are dropped.
func Symbol(name string) (string, error) {
	s, err := demangle.ToString(name, demangle.NoClones)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotMangled, name)
	}
	return s, nil
}

// OrRaw demangles name, falling back to name itself when it is not mangled.
func OrRaw(name string) string {
	if s, err := Symbol(name); err == nil {
		return s
	}
	return name
}

// VTableClass returns the class name of a vtable symbol such as _ZTV3Foo.
func VTableClass(name string) (string, error) {
	s, err := Symbol(name)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(s, VTableFor) {
		return "", fmt.Errorf("%w: %s is not a vtable", ErrNotMangled, name)
	}
	return s[len(VTableFor):], nil
}
