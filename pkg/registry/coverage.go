package registry

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	h3 "github.com/uber/h3-go/v4"

	"globerun/pkg/model"
)

// Coverage computes the set of H3 cells touched by scene centers. The
// mini-map shades these cells to show where stitched content exists.
type Coverage struct {
	resolution int
}

// NewCoverage creates a coverage calculator at the given H3 resolution.
func NewCoverage(resolution int) *Coverage {
	return &Coverage{resolution: resolution}
}

// Cells returns the sorted, deduplicated cell ids covering the scenes.
// Malformed scenes carry no usable coordinate and are skipped.
func (c *Coverage) Cells(scenes []model.Scene) ([]string, error) {
	seen := make(map[h3.Cell]struct{})
	for _, s := range scenes {
		if s.Malformed {
			continue
		}
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: s.Center.Lat, Lng: s.Center.Lng}, c.resolution)
		if err != nil {
			return nil, fmt.Errorf("failed to index scene %s: %w", s.ID, err)
		}
		seen[cell] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for cell := range seen {
		ids = append(ids, cell.String())
	}
	sort.Strings(ids)
	return ids, nil
}

// GeoJSON renders the coverage cells as a polygon feature collection for
// the map widget.
func (c *Coverage) GeoJSON(scenes []model.Scene) (*geojson.FeatureCollection, error) {
	seen := make(map[h3.Cell]struct{})
	for _, s := range scenes {
		if s.Malformed {
			continue
		}
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: s.Center.Lat, Lng: s.Center.Lng}, c.resolution)
		if err != nil {
			return nil, fmt.Errorf("failed to index scene %s: %w", s.ID, err)
		}
		seen[cell] = struct{}{}
	}

	// Deterministic feature order.
	cells := make([]h3.Cell, 0, len(seen))
	for cell := range seen {
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	fc := geojson.NewFeatureCollection()
	for _, cell := range cells {
		boundary, err := cell.Boundary()
		if err != nil {
			return nil, fmt.Errorf("failed to compute cell boundary: %w", err)
		}

		ring := make(orb.Ring, 0, len(boundary)+1)
		for _, v := range boundary {
			ring = append(ring, orb.Point{v.Lng, v.Lat})
		}
		if len(ring) > 0 {
			ring = append(ring, ring[0]) // close the ring
		}

		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["cell"] = cell.String()
		fc.Append(f)
	}
	return fc, nil
}
