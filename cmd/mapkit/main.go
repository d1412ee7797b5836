// Package main provides a small command-line front end for mapkit,
// used to load, validate, and round-trip .map files. Invoked as:
//
//	mapkit [command] [flags]
//
// Invoking mapkit without a command lists the commands that can be run.
package main

import (
	"fmt"
	"log"
	"os"
)

// command combines a CLI verb with its description and entry point.
type command struct {
	tag         string
	description string
	function    func(args []string)
}

func main() {
	commands := []command{
		{"dump", "dump: print a tree summary of a .map file", dump},
		{"validate", "validate: run the built-in validators over a .map file", validate},
		{"roundtrip", "roundtrip: read a .map file and write it back out", roundtrip},
	}

	if len(os.Args) > 1 {
		for _, c := range commands {
			if os.Args[1] == c.tag {
				c.function(os.Args[2:])
				return
			}
		}
	}

	fmt.Printf("Usage: mapkit [command] [flags]\n")
	fmt.Printf("Commands are:\n")
	for _, c := range commands {
		fmt.Printf("   %s\n", c.description)
	}
	os.Exit(1)
}

// fatalf logs and exits, matching the teacher's plain log.Printf/os.Exit
// style for command-line tools rather than panicking.
func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}
