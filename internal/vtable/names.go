package vtable

import "strings"

// qualifiers that may follow a member function's argument list.
var trailingQualifiers = []string{" const", " volatile", " &&", " &", " noexcept"}

// argsStart returns the index of the '(' opening the outermost trailing
// argument list of a demangled name, or len(s) if there is none.
func argsStart(s string) int {
	t := s
	for {
		trimmed := false
		for _, q := range trailingQualifiers {
			if strings.HasSuffix(t, q) {
				t = t[:len(t)-len(q)]
				trimmed = true
			}
		}
		if !trimmed {
			break
		}
	}
	if !strings.HasSuffix(t, ")") {
		return len(s)
	}
	depth := 0
	for i := len(t) - 1; i >= 0; i-- {
		switch t[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s)
}

// lastScope returns the index of the last "::" outside template arguments.
func lastScope(s string) int {
	last, depth := -1, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 && i+1 < len(s) && s[i+1] == ':' {
				last = i
				i++
			}
		}
	}
	return last
}

// SplitName decomposes a demangled function name.
//
//	"ns::Foo::Write(char const*, int) const" -> "Write(char const*, int) const", "Write", "ns::Foo"
func SplitName(demangled string) (name, shortName, namespace string) {
	head := demangled[:argsStart(demangled)]
	sep := lastScope(head)
	if sep < 0 {
		return demangled, head, ""
	}
	return demangled[sep+2:], head[sep+2:], head[:sep]
}
