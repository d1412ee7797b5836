package main

import (
	"flag"
	"os"

	"github.com/brushforge/mapkit"
)

// roundtrip reads a .map file and writes it back out, either to stdout
// or to -out, exercising the reader and writer against the same file.
func roundtrip(args []string) {
	fs := flag.NewFlagSet("roundtrip", flag.ExitOnError)
	format := fs.String("format", "", "map format override; default: auto-detect")
	out := fs.String("out", "", "output path; default: stdout")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("usage: mapkit roundtrip [flags] <file.map>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fatalf("roundtrip: %s", err)
	}
	game, detected := mapkit.ReadMapHeader(data)
	if *format != "" {
		detected = parseFormat(*format)
	}
	if game == "" {
		game = "Quake"
	}

	w, err := mapkit.ReadMap(data, detected, mapkit.FormatStandard, mapkit.EntityPropertyConfig{}, nil)
	if err != nil {
		fatalf("roundtrip: %s", err)
	}

	written := mapkit.WriteMap(w, game)
	if *out == "" {
		os.Stdout.Write(written)
		return
	}
	if err := os.WriteFile(*out, written, 0644); err != nil {
		fatalf("roundtrip: %s", err)
	}
}
