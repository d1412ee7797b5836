package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/brushforge/mapkit"
)

// dump loads a .map file and prints its scene tree, one line per node,
// indented by depth.
func dump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	format := fs.String("format", "", "map format override (Standard, Valve220, Quake2, Quake2Valve, Quake3, Quake3Valve, Hexen2); default: auto-detect")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("usage: mapkit dump [flags] <file.map>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fatalf("dump: %s", err)
	}
	_, detected := mapkit.ReadMapHeader(data)
	if *format != "" {
		detected = parseFormat(*format)
	}

	w, err := mapkit.ReadMap(data, detected, mapkit.FormatStandard, mapkit.EntityPropertyConfig{}, nil)
	if err != nil {
		fatalf("dump: %s", err)
	}

	fmt.Printf("format: %s\n", w.RootData().Format)
	printNode(w, w.Root(), 0)
}

func printNode(w *mapkit.World, id mapkit.NodeID, depth int) {
	n := w.Node(id)
	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	fmt.Printf("%s %s\n", n.Kind(), nodeLabel(n))
	for _, child := range n.Children() {
		printNode(w, child, depth+1)
	}
}

func nodeLabel(n *mapkit.Node) string {
	if ent, ok := n.Entity(); ok {
		return ent.Classname()
	}
	if layer, ok := n.Layer(); ok {
		return layer.Name
	}
	if group, ok := n.Group(); ok {
		return group.Name
	}
	return ""
}
