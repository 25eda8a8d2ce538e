package stitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globerun/pkg/model"
	"globerun/pkg/tracker"
)

func testOpts() Options {
	return Options{Scale: 1.25, LoadRadiusM: 60, AssetBaseURL: "/splats/"}
}

// Two captures on the same block, about 19 m apart.
func adjacentScenes() []model.Scene {
	return []model.Scene{
		{ID: "origin", AssetRef: "origin.ply", Center: model.GeoPoint{Lat: 40.7281, Lng: -73.9865}, Heading: 0},
		{ID: "corner", AssetRef: "corner.ply", Center: model.GeoPoint{Lat: 40.72814, Lng: -73.98628}, Heading: 0},
	}
}

func TestOffsetsAnchoredAtOrigin(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	e.SetScenes(adjacentScenes())

	slots := e.Slots()
	require.Len(t, slots, 2)

	assert.Equal(t, model.LocalOffset{}, slots[0].Offset, "origin scene sits at (0,0)")
	assert.InDelta(t, 14.85, slots[1].Offset.X, 0.1)
	assert.InDelta(t, 3.56, slots[1].Offset.Z, 0.1)
}

func TestWalkBetweenCaptures(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	e.SetScenes(adjacentScenes())

	// Standing inside the origin capture.
	resident, nearest := e.UpdateCamera(model.CameraPose{})
	assert.Equal(t, 0, nearest)
	assert.Equal(t, []int{0, 1}, resident, "both captures fit inside the load radius")

	// Walk to the far capture; nearest flips, residency is stable.
	resident, nearest = e.UpdateCamera(model.CameraPose{X: 14.8, Z: 3.5})
	assert.Equal(t, 1, nearest)
	assert.Equal(t, []int{0, 1}, resident)
}

func TestOriginAndNearestAlwaysResident(t *testing.T) {
	opts := testOpts()
	opts.LoadRadiusM = 5 // too tight to include anything by distance alone

	e := NewEngine(opts, tracker.New())
	e.SetScenes(adjacentScenes())

	resident, nearest := e.UpdateCamera(model.CameraPose{X: 14.8, Z: 3.5})
	assert.Equal(t, 1, nearest)
	assert.Contains(t, resident, 0, "origin never unloads")
	assert.Contains(t, resident, 1, "nearest never unloads")
}

func TestResidentSetDebounce(t *testing.T) {
	tr := tracker.New()
	e := NewEngine(testOpts(), tr)

	var fires int
	e.OnChange(func(resident []int, nearest int) { fires = fires + 1 })
	e.SetScenes(adjacentScenes())

	// Moving next to the far capture flips nearest exactly once.
	e.UpdateCamera(model.CameraPose{X: 14.8, Z: 3.5})
	base := tr.Get(tracker.ResidentSetChanges)
	firesBase := fires

	// A stationary camera must not re-trigger load churn.
	for range 10 {
		e.UpdateCamera(model.CameraPose{X: 14.8, Z: 3.5})
	}

	assert.Equal(t, base, tr.Get(tracker.ResidentSetChanges))
	assert.Equal(t, firesBase, fires)
	assert.Greater(t, fires, 0)
}

func TestNearestTieBreaksByRegistryOrder(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	center := model.GeoPoint{Lat: 40.7281, Lng: -73.9865}
	e.SetScenes([]model.Scene{
		{ID: "a", AssetRef: "a.ply", Center: center},
		{ID: "b", AssetRef: "b.ply", Center: center}, // identical offset
	})

	_, nearest := e.UpdateCamera(model.CameraPose{})
	assert.Equal(t, 0, nearest)
}

func TestMalformedSceneNeverNearest(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	scenes := adjacentScenes()
	scenes = append(scenes, model.Scene{ID: "broken", Malformed: true})
	e.SetScenes(scenes)

	// The malformed scene parks at (0,0) but cannot win the comparison.
	resident, nearest := e.UpdateCamera(model.CameraPose{})
	assert.Equal(t, 0, nearest)
	assert.NotContains(t, resident, 2)
}

// Three captures in a line at local offsets (0,0), (15,0), (40,0).
func corridorScenes() []model.Scene {
	unitLng := func(x float64) float64 { return x * 1.25 / 111320.0 }
	return []model.Scene{
		{ID: "a", AssetRef: "a.ply", Center: model.GeoPoint{Lat: 0, Lng: 0}},
		{ID: "b", AssetRef: "b.ply", Center: model.GeoPoint{Lat: 0, Lng: unitLng(15)}},
		{ID: "c", AssetRef: "c.ply", Center: model.GeoPoint{Lat: 0, Lng: unitLng(40)}},
	}
}

func TestResidentSetAlongCorridor(t *testing.T) {
	opts := testOpts()
	opts.LoadRadiusM = 12.5 // 10 local units

	e := NewEngine(opts, tracker.New())
	e.SetScenes(corridorScenes())

	// Camera at the first capture: its neighbor is preloaded, the far
	// end of the corridor is not.
	resident, nearest := e.UpdateCamera(model.CameraPose{})
	assert.Equal(t, 0, nearest)
	assert.Equal(t, []int{0, 1}, resident)

	// Deep in the corridor the whole line is in play.
	resident, nearest = e.UpdateCamera(model.CameraPose{X: 25})
	assert.Equal(t, 1, nearest)
	assert.Equal(t, []int{0, 1, 2}, resident)
}

func TestLoadsRequestedCountsResidentEntries(t *testing.T) {
	opts := testOpts()
	opts.LoadRadiusM = 12.5 // 10 local units

	tr := tracker.New()
	e := NewEngine(opts, tr)
	e.SetScenes(corridorScenes())

	// Installing the registry makes the first two captures resident.
	assert.Equal(t, int64(2), tr.Get(tracker.LoadsRequested))

	// Walking deep into the corridor pulls in the third.
	e.UpdateCamera(model.CameraPose{X: 25})
	assert.Equal(t, int64(3), tr.Get(tracker.LoadsRequested))

	// A stationary camera requests nothing new.
	e.UpdateCamera(model.CameraPose{X: 25})
	assert.Equal(t, int64(3), tr.Get(tracker.LoadsRequested))
}

func TestStaleLoadSignalIsNoOp(t *testing.T) {
	opts := testOpts()
	opts.LoadRadiusM = 5

	tr := tracker.New()
	e := NewEngine(opts, tr)
	e.SetScenes(corridorScenes())

	// Camera at the first capture: "c" is not origin, nearest, neighbor
	// or within radius.
	e.UpdateCamera(model.CameraPose{})
	require.False(t, e.IsResident("c"))

	assert.False(t, e.SceneLoaded("c"))
	assert.False(t, e.IsLoaded("c"))
	assert.Equal(t, int64(1), tr.Get(tracker.LoadsStale))

	assert.True(t, e.SceneLoaded("a"))
	assert.True(t, e.IsLoaded("a"))
	assert.Equal(t, int64(1), tr.Get(tracker.LoadsCompleted))
}

func TestSlotsComposeAssetURLs(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	e.SetScenes([]model.Scene{
		{ID: "rel", AssetRef: "scene.ply", Center: model.GeoPoint{Lat: 1, Lng: 2}},
		{ID: "abs", AssetRef: "https://cdn.example.com/scene.ply", Center: model.GeoPoint{Lat: 1, Lng: 2}},
	})

	slots := e.Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, "/splats/scene.ply", slots[0].AssetURL)
	assert.Equal(t, "https://cdn.example.com/scene.ply", slots[1].AssetURL, "absolute refs pass through untouched")
}

func TestOverrideShiftsOffset(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	e.SetScenes(adjacentScenes())

	before := e.Slots()[1].Offset
	e.SetOverride("corner", model.LocalOffset{X: 0.5, Z: -0.25})
	after := e.Slots()[1].Offset

	assert.InDelta(t, before.X+0.5, after.X, 1e-9)
	assert.InDelta(t, before.Z-0.25, after.Z, 1e-9)
}

func TestEmptyRegistryDegradesGracefully(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	e.SetScenes(nil)

	resident, nearest := e.UpdateCamera(model.CameraPose{X: 10, Z: 10})
	assert.Empty(t, resident)
	assert.Equal(t, 0, nearest)
	assert.Empty(t, e.Slots())
	assert.Equal(t, model.Scene{}, e.NearestScene())

	// Map projection still answers, from a zero-valued origin.
	geo := e.CameraGeo()
	assert.NotPanics(t, func() { _ = geo })
}

func TestCameraGeoRoundTrip(t *testing.T) {
	e := NewEngine(testOpts(), tracker.New())
	e.SetScenes(adjacentScenes())

	e.UpdateCamera(model.CameraPose{X: 14.8, Z: 3.5})
	pos := e.CameraGeo()

	// Near the second capture's anchor.
	assert.InDelta(t, 40.72814, pos.Lat, 0.0001)
	assert.InDelta(t, -73.98628, pos.Lng, 0.0001)
}
