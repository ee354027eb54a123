// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command vesselforge drives the evolution pipeline from the shell.
//
// The pipeline exposes four stages, each consuming the prior stage's JSON
// artifact and producing the next:
//
//	vesselforge analyze service.py --output blueprint.json
//	vesselforge synthesize blueprint.json --profile profile.yaml --output manifest.json
//	vesselforge validate manifest.json --function hot_loop --output certificate.json
//	vesselforge benchmark --name hot_loop --binary ./hot_loop.bin --output report.json
//
// A fifth command, watch, re-analyzes source files as they change:
//
//	vesselforge watch ./src --output-dir ./blueprints
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
