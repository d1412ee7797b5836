package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/brushforge/mapkit"
)

// validate loads a .map file and runs the built-in validators over
// every node, printing one line per issue.
func validate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	format := fs.String("format", "", "map format override; default: auto-detect")
	maxKeyLen := fs.Int("max-key-len", 32, "property key length at which IssueLongPropertyKey fires")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("usage: mapkit validate [flags] <file.map>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fatalf("validate: %s", err)
	}
	_, detected := mapkit.ReadMapHeader(data)
	if *format != "" {
		detected = parseFormat(*format)
	}

	w, err := mapkit.ReadMap(data, detected, mapkit.FormatStandard, mapkit.EntityPropertyConfig{}, nil)
	if err != nil {
		fatalf("validate: %s", err)
	}

	issues := mapkit.ValidateWorld(w, mapkit.DefaultValidators(*maxKeyLen))
	if len(issues) == 0 {
		fmt.Println("no issues found")
		return
	}
	for _, issue := range issues {
		fmt.Printf("node %v: %s\n", issue.Node, issue.Message)
	}
	os.Exit(1)
}
