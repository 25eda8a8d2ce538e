// Seeds a local data/ directory with a two-scene sample registry and a
// marker document, so the server can be exercised without pipeline output.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type geoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type world struct {
	ID      string   `json:"id"`
	File    string   `json:"file"`
	Center  geoPoint `json:"center"`
	Heading float64  `json:"heading"`
	Note    string   `json:"note,omitempty"`
}

func main() {
	dir := "data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Join(dir, "splats"), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir failed: %v\n", err)
		os.Exit(1)
	}

	registry := map[string]any{
		"worlds": []world{
			{
				ID:      "0",
				File:    "block-origin.ply",
				Center:  geoPoint{Lat: 40.7281, Lng: -73.9865},
				Heading: 0,
				Note:    "Start of the walk",
			},
			{
				ID:      "1",
				File:    "block-corner.ply",
				Center:  geoPoint{Lat: 40.72814, Lng: -73.98628},
				Heading: 0,
				Note:    "The corner, about 19m east",
			},
		},
	}

	markers := map[string]any{
		"markers": []map[string]any{
			{
				"id":            "fountain",
				"x":             2.0,
				"z":             3.0,
				"title":         "Fountain",
				"body":          "Cast iron, 1894. The basin still runs in summer.",
				"triggerRadius": 3.0,
			},
		},
	}

	writeJSON(filepath.Join(dir, "worlds.json"), registry)
	writeJSON(filepath.Join(dir, "markers.json"), markers)
	fmt.Printf("Seeded %s: worlds.json, markers.json (drop .ply files into %s)\n", dir, filepath.Join(dir, "splats"))
}

func writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
}
