package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	"vtgamedata/internal/elfx"
	"vtgamedata/internal/gamedata"
	"vtgamedata/internal/output"
	"vtgamedata/internal/render"
	"vtgamedata/internal/vtable"
)

// load extracts the image and builds its vtable graph. Unreadable, non-ELF
// and unsupported inputs are bad input; a missing required section is a
// processing failure.
func load(path string) (*vtable.Graph, error) {
	img, err := elfx.Open(path)
	if err != nil {
		if errors.Is(err, elfx.ErrMissingSections) {
			return nil, fmt.Errorf("failed to process input file '%s': %w", path, err)
		}
		return nil, badInput(fmt.Errorf("failed to process input file '%s': %w", path, err))
	}
	log.WithFields(log.Fields{
		"size":    humanize.Bytes(uint64(img.Size())),
		"ptr":     img.PtrSize,
		"symbols": humanize.Comma(int64(len(img.Symbols))),
		"relocs":  humanize.Comma(int64(len(img.Relocations))),
	}).Debug("Extracted sections")

	g := vtable.Build(img)
	for _, d := range g.Diags {
		log.WithField("kind", d.Kind).WithField("offset", fmt.Sprintf("%#x", d.Offset)).Warn(d.Msg)
	}
	log.WithFields(log.Fields{
		"classes":   humanize.Comma(int64(len(g.Classes))),
		"functions": humanize.Comma(int64(len(g.Functions))),
		"warnings":  len(g.Diags),
	}).Info("Parsed vtables")
	return g, nil
}

func run(opts options, stdout io.Writer) error {
	g, err := load(opts.Binary)
	if err != nil {
		return err
	}

	switch {
	case opts.DumpSymbols:
		return dumpSymbols(stdout, g)
	case opts.DumpSlots || opts.wantsDefaultDump():
		classes, err := selectClasses(g, opts.Classes)
		if err != nil {
			return badInput(err)
		}
		if err := dumpSlots(stdout, g, classes); err != nil {
			return err
		}
	}

	if opts.Export != "" {
		if err := output.WriteExport(opts.Export, g); err != nil {
			if errors.Is(err, output.ErrFormat) {
				return badInput(err)
			}
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d classes, %d member offsets)\n", opts.Export, len(g.Classes), len(g.MemberOffsets))
	}

	if opts.Graph != "" {
		var dot string
		if opts.PlainGraph {
			dot = render.PlainDOT(render.Graph(g.Classes, thunkTarget(g)), filepath.Base(opts.Binary))
		} else {
			dot = render.ClassgraphDOT(g.Classes, thunkTarget(g), filepath.Base(opts.Binary), render.NASA, opts.MaxLabel)
		}
		if err := output.WriteDOT(opts.Graph, dot); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%s)\n", opts.Graph, humanize.Bytes(uint64(len(dot))))
	}

	if len(opts.Inputs) > 0 {
		for _, c := range g.Classes {
			if c.HasMissingFunctions {
				log.WithField("class", c.Name).Debug("Class has pure or deleted virtuals; inferred indices may be unreliable")
			}
		}
		written, err := gamedata.WriteFiles(gamedata.Prepare(g.Classes), opts.Inputs, opts.Outputs)
		for _, p := range written {
			fmt.Fprintf(os.Stderr, "wrote %s\n", p)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
