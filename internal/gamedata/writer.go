package gamedata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TemplateExt is the required suffix of template inputs.
const TemplateExt = ".in"

var (
	ErrSingleDelimiter = errors.New("gamedata: line contains only one '#'")
	ErrEmptyKey        = errors.New("gamedata: empty symbol key")
	ErrTemplateExt     = errors.New("gamedata: template must have " + TemplateExt + " extension")
	ErrNoOutputDir     = errors.New("gamedata: no output directory")
)

// LineError locates a template failure.
type LineError struct {
	File string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// RenderLine substitutes the span between the first and last '#' with the
// index the key resolves to. Lines without '#' are returned unchanged.
func RenderLine(line string, o Offsets) (string, error) {
	start := strings.IndexByte(line, '#')
	if start < 0 {
		return line, nil
	}
	end := strings.LastIndexByte(line, '#')
	if end == start {
		return "", ErrSingleDelimiter
	}
	key := line[start+1 : end]
	if key == "" {
		return "", ErrEmptyKey
	}
	idx, err := o.Lookup(key)
	if err != nil {
		return "", err
	}
	return line[:start] + strconv.Itoa(idx) + line[end+1:], nil
}

// scanLines splits on '\n' only, so a '\r' before it stays part of the line
// and CRLF templates keep their line endings.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Render copies a template from r to w line by line. name is used in errors.
func Render(w io.Writer, r io.Reader, name string, o Offsets) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(scanLines)
	bw := bufio.NewWriter(w)
	n := 0
	for sc.Scan() {
		n++
		out, err := RenderLine(sc.Text(), o)
		if err != nil {
			return &LineError{File: name, Line: n, Err: err}
		}
		bw.WriteString(out)
		bw.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return bw.Flush()
}

// OutputPath returns the file written for a template: the input's base name
// without its extension, inside dir.
func OutputPath(input, dir string) (string, error) {
	if filepath.Ext(input) != TemplateExt {
		return "", fmt.Errorf("%w: %s", ErrTemplateExt, input)
	}
	base := filepath.Base(input)
	return filepath.Join(dir, strings.TrimSuffix(base, TemplateExt)), nil
}

// WriteFiles renders every input into its paired output directory. Output
// directories pair with inputs by position; the last one is reused for any
// surplus inputs. It returns the paths written.
func WriteFiles(o Offsets, inputs, outDirs []string) ([]string, error) {
	if len(inputs) > 0 && len(outDirs) == 0 {
		return nil, ErrNoOutputDir
	}
	var written []string
	for i, in := range inputs {
		dir := outDirs[min(i, len(outDirs)-1)]
		out, err := OutputPath(in, dir)
		if err != nil {
			return written, err
		}
		if err := writeFile(o, in, out); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

func writeFile(o Offsets, in, out string) error {
	src, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := Render(dst, src, in, o); err != nil {
		dst.Close()
		os.Remove(out)
		return err
	}
	return dst.Close()
}
