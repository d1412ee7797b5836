package main

import "github.com/brushforge/mapkit"

// parseFormat inverts mapkit.MapFormat.String() for the -format flag;
// an empty or unrecognized name yields
// mapkit.FormatUnknown.
func parseFormat(name string) mapkit.MapFormat {
	for f := mapkit.FormatStandard; f <= mapkit.FormatHexen2; f++ {
		if f.String() == name {
			return f
		}
	}
	return mapkit.FormatUnknown
}
