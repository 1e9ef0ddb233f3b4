// Package output writes the indexed vtable graph to files.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"vtgamedata/internal/abi"
	"vtgamedata/internal/elfx"
	"vtgamedata/internal/vtable"
)

var ErrFormat = errors.New("output: unsupported export format")

// Format selects the export encoding.
type Format int

const (
	JSON Format = iota
	YAML
)

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrFormat, path)
}

// FunctionEntry is one primary-segment slot.
type FunctionEntry struct {
	Name      string `json:"name" yaml:"name"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	ShortName string `json:"shortName" yaml:"shortName"`
	Linux     int    `json:"linux" yaml:"linux"`
	Windows   *int   `json:"windows,omitempty" yaml:"windows,omitempty"`
	Multi     bool   `json:"multi,omitempty" yaml:"multi,omitempty"`
	Thunk     bool   `json:"thunk,omitempty" yaml:"thunk,omitempty"`
}

// ClassEntry is one class with its indexed primary vtable.
type ClassEntry struct {
	Name             string          `json:"name" yaml:"name"`
	ID               uint64          `json:"id" yaml:"id"`
	MissingFunctions bool            `json:"missingFunctions,omitempty" yaml:"missingFunctions,omitempty"`
	Functions        []FunctionEntry `json:"functions" yaml:"functions"`
}

// Export is the document written by WriteExport.
type Export struct {
	Classes       []ClassEntry        `json:"classes" yaml:"classes"`
	MemberOffsets []elfx.MemberOffset `json:"memberOffsets,omitempty" yaml:"memberOffsets,omitempty"`
}

// NewExport indexes every class of g.
func NewExport(g *vtable.Graph) *Export {
	x := &Export{
		Classes:       make([]ClassEntry, 0, len(g.Classes)),
		MemberOffsets: g.MemberOffsets,
	}
	for _, c := range g.Classes {
		ce := ClassEntry{
			Name:             c.Name,
			ID:               c.ID,
			MissingFunctions: c.HasMissingFunctions,
			Functions:        []FunctionEntry{},
		}
		for _, e := range abi.Index(c) {
			fe := FunctionEntry{
				Name:      e.Function.Name,
				Namespace: e.Function.Namespace,
				ShortName: e.Function.ShortName,
				Linux:     e.Linux,
				Multi:     e.Function.IsMulti,
				Thunk:     e.Function.IsThunk,
			}
			if e.HasWindows {
				w := e.Windows
				fe.Windows = &w
			}
			ce.Functions = append(ce.Functions, fe)
		}
		x.Classes = append(x.Classes, ce)
	}
	return x
}

// Encode writes x to w in format f.
func (x *Export) Encode(w io.Writer, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(x)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(x); err != nil {
			return err
		}
		return enc.Close()
	}
	return ErrFormat
}

// WriteExport writes the indexed graph to path, choosing JSON or YAML by
// extension.
func WriteExport(path string, g *vtable.Graph) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		return NewExport(g).Encode(w, f)
	})
}

// WriteDOT writes a rendered graph.
func WriteDOT(path, dot string) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, dot)
		return err
	})
}

func writeFile(path string, fill func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("output: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	if err := fill(f); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return f.Close()
}
