package registry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globerun/pkg/model"
)

func TestCoverageCells(t *testing.T) {
	cov := NewCoverage(11)

	scenes := []model.Scene{
		{ID: "0", Center: model.GeoPoint{Lat: 40.7281, Lng: -73.9865}},
		{ID: "0b", Center: model.GeoPoint{Lat: 40.7281, Lng: -73.9865}}, // same spot
		{ID: "1", Center: model.GeoPoint{Lat: 48.8566, Lng: 2.3522}},    // different city
		{ID: "bad", Malformed: true},
	}

	cells, err := cov.Cells(scenes)
	require.NoError(t, err)
	assert.Len(t, cells, 2, "duplicate and malformed scenes must not add cells")

	// Deterministic between runs.
	again, err := cov.Cells(scenes)
	require.NoError(t, err)
	assert.Equal(t, cells, again)
}

func TestCoverageGeoJSON(t *testing.T) {
	cov := NewCoverage(11)
	scenes := []model.Scene{
		{ID: "0", Center: model.GeoPoint{Lat: 40.7281, Lng: -73.9865}},
	}

	fc, err := cov.GeoJSON(scenes)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.NotEmpty(t, f.Properties["cell"])

	poly := f.Geometry.Bound()
	// The hexagon must enclose the scene center.
	assert.True(t, poly.Contains(orb.Point{-73.9865, 40.7281}))
}

func TestCoverageEmptyRegistry(t *testing.T) {
	cov := NewCoverage(11)
	cells, err := cov.Cells(nil)
	require.NoError(t, err)
	assert.Empty(t, cells)

	fc, err := cov.GeoJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}
