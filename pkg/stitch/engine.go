package stitch

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"globerun/pkg/geo"
	"globerun/pkg/model"
	"globerun/pkg/tracker"
)

// Options configures the stitching engine. All values are explicit; the
// engine never reads the environment.
type Options struct {
	// Scale is the meters-per-local-unit calibration factor.
	Scale float64
	// LoadRadiusM bounds the resident set, in meters around the camera.
	LoadRadiusM float64
	// AssetBaseURL is prefixed to scene asset references.
	AssetBaseURL string
}

// ChangeFunc receives the resident set and nearest index after they change.
type ChangeFunc func(resident []int, nearest int)

// Engine places every scene of the registry at a fixed offset in the local
// frame and tracks which scenes must be resident for the current camera.
// Scenes are never merged geometrically; each stays a discrete renderable
// streamed in and out like game-engine levels.
type Engine struct {
	opts    Options
	tracker *tracker.Tracker
	logger  *slog.Logger

	mu        sync.RWMutex
	scenes    []model.Scene
	offsets   []model.LocalOffset
	overrides map[string]model.LocalOffset
	camera    model.CameraPose
	resident  []int
	nearest   int
	loaded    map[string]bool
	onChange  ChangeFunc
}

// NewEngine creates a stitching engine. Scenes are installed separately via
// SetScenes so the engine can follow registry updates.
func NewEngine(opts Options, tr *tracker.Tracker) *Engine {
	return &Engine{
		opts:      opts,
		tracker:   tr,
		logger:    slog.With("component", "stitch_engine"),
		overrides: make(map[string]model.LocalOffset),
		loaded:    make(map[string]bool),
		resident:  []int{},
	}
}

// OnChange registers the single change listener. Must be set before the
// first camera update.
func (e *Engine) OnChange(fn ChangeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// SetScenes installs a registry snapshot and computes each scene's local
// offset exactly once, relative to the origin scene (index 0). Offsets are
// cached; per-frame updates only read them.
func (e *Engine) SetScenes(scenes []model.Scene) {
	e.mu.Lock()

	e.scenes = scenes
	e.offsets = make([]model.LocalOffset, len(scenes))

	if len(scenes) > 0 {
		origin := scenes[0]
		for i := 1; i < len(scenes); i++ {
			if scenes[i].Malformed || origin.Malformed {
				// Anchored at the origin; a misplaced scene is the
				// documented degraded behavior, not a failure.
				continue
			}
			x, z := geo.ToLocal(origin.Center, origin.Heading, scenes[i].Center, e.opts.Scale)
			e.offsets[i] = model.LocalOffset{X: x, Z: z}
		}
	}

	e.logger.Info("Scene offsets computed", "scenes", len(scenes))

	// Re-evaluate residency for the current camera under the new layout.
	pose := e.camera
	e.mu.Unlock()
	e.UpdateCamera(pose)
}

// UpdateCamera consumes a camera pose snapshot and recomputes the resident
// set and nearest scene. The change listener fires only when the resident
// set or nearest index actually differ from the previous update, so a
// camera standing still never re-triggers downstream load churn.
func (e *Engine) UpdateCamera(pose model.CameraPose) (resident []int, nearest int) {
	e.mu.Lock()

	e.camera = pose
	newNearest, runnerUp := e.nearestLocked(pose)
	newResident := e.residentLocked(pose, newNearest, runnerUp)

	changed := newNearest != e.nearest || !equalSets(newResident, e.resident)
	if entered := countEntered(e.resident, newResident); entered > 0 {
		// Every scene entering the resident set is a load the renderer
		// will now be asked to perform.
		e.tracker.Add(tracker.LoadsRequested, int64(entered))
	}
	e.nearest = newNearest
	e.resident = newResident

	var fn ChangeFunc
	if changed {
		e.tracker.Track(tracker.ResidentSetChanges)
		fn = e.onChange
	}

	out := make([]int, len(newResident))
	copy(out, newResident)
	e.mu.Unlock()

	if fn != nil {
		fn(out, newNearest)
	}
	return out, newNearest
}

// nearestLocked returns the index of the closest well-formed scene,
// tie-broken by registry order, and the runner-up (-1 when there is none).
// Empty registries default to 0.
func (e *Engine) nearestLocked(pose model.CameraPose) (nearest, runnerUp int) {
	nearest, runnerUp = 0, -1
	bestDist, secondDist := math.MaxFloat64, math.MaxFloat64
	seen := false
	for i := range e.scenes {
		if e.scenes[i].Malformed {
			continue
		}
		d := e.distanceLocked(pose, i)
		switch {
		case !seen:
			nearest, bestDist, seen = i, d, true
		case d < bestDist:
			secondDist, runnerUp = bestDist, nearest
			bestDist, nearest = d, i
		case d < secondDist:
			secondDist, runnerUp = d, i
		}
	}
	return nearest, runnerUp
}

// residentLocked builds the resident set: the origin scene (permanently
// resident, it anchors the space), the nearest scene, the runner-up (the
// capture the camera is most likely walking into next), and everything
// within the load radius.
func (e *Engine) residentLocked(pose model.CameraPose, nearest, runnerUp int) []int {
	if len(e.scenes) == 0 {
		return []int{}
	}

	radius := e.opts.LoadRadiusM / e.opts.Scale // local units

	set := map[int]struct{}{0: {}, nearest: {}}
	if runnerUp >= 0 {
		set[runnerUp] = struct{}{}
	}
	for i := range e.scenes {
		if e.scenes[i].Malformed {
			continue
		}
		if e.distanceLocked(pose, i) <= radius {
			set[i] = struct{}{}
		}
	}

	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (e *Engine) distanceLocked(pose model.CameraPose, i int) float64 {
	off := e.offsetLocked(i)
	dx := pose.X - off.X
	dz := pose.Z - off.Z
	return math.Hypot(dx, dz)
}

func (e *Engine) offsetLocked(i int) model.LocalOffset {
	off := e.offsets[i]
	if ovr, ok := e.overrides[e.scenes[i].ID]; ok {
		off.X += ovr.X
		off.Z += ovr.Z
	}
	return off
}

// Slots returns the renderable projection of every scene: id, composed
// asset URL, effective offset and the current should-load flag.
func (e *Engine) Slots() []model.SplatSlot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	residentSet := make(map[int]struct{}, len(e.resident))
	for _, i := range e.resident {
		residentSet[i] = struct{}{}
	}

	slots := make([]model.SplatSlot, len(e.scenes))
	for i, s := range e.scenes {
		_, res := residentSet[i]
		slots[i] = model.SplatSlot{
			ID:         s.ID,
			AssetURL:   joinAssetURL(e.opts.AssetBaseURL, s.AssetRef),
			Offset:     e.offsetLocked(i),
			ShouldLoad: res,
		}
	}
	return slots
}

// SetOverride installs a manual calibration offset for a scene, added on
// top of its computed geographic offset (dual-splat calibration mode).
func (e *Engine) SetOverride(id string, off model.LocalOffset) {
	e.mu.Lock()
	e.overrides[id] = off
	pose := e.camera
	e.mu.Unlock()
	e.UpdateCamera(pose)
}

// Nearest returns the current nearest scene index.
func (e *Engine) Nearest() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nearest
}

// NearestScene returns the nearest scene, or a zero-valued scene when the
// registry is empty.
func (e *Engine) NearestScene() model.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.nearest < 0 || e.nearest >= len(e.scenes) {
		return model.Scene{}
	}
	return e.scenes[e.nearest]
}

// Resident returns a copy of the current resident set.
func (e *Engine) Resident() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]int, len(e.resident))
	copy(out, e.resident)
	return out
}

// IsResident reports whether the scene with the given id is currently in
// the resident set. This is the guard the load-completion path uses to
// drop stale signals.
func (e *Engine) IsResident(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isResidentLocked(id)
}

func (e *Engine) isResidentLocked(id string) bool {
	for _, i := range e.resident {
		if i < len(e.scenes) && e.scenes[i].ID == id {
			return true
		}
	}
	return false
}

// SceneLoaded applies a load-completion signal from the renderer. A signal
// for a scene that has already left the resident set is a safe no-op: loads
// are fire-and-forget and their completions can arrive arbitrarily late.
func (e *Engine) SceneLoaded(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isResidentLocked(id) {
		e.tracker.Track(tracker.LoadsStale)
		e.logger.Debug("Ignoring stale load signal", "id", id)
		return false
	}

	e.loaded[id] = true
	e.tracker.Track(tracker.LoadsCompleted)
	return true
}

// IsLoaded reports whether a scene has signalled load completion.
func (e *Engine) IsLoaded(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded[id]
}

// Camera returns the last consumed camera pose.
func (e *Engine) Camera() model.CameraPose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.camera
}

// CameraGeo projects the current camera position back onto the map, using
// the origin scene's anchor. An empty registry projects from a zero-valued
// origin so the map endpoint still answers.
func (e *Engine) CameraGeo() model.GeoPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	origin := model.GeoPoint{}
	heading := 0.0
	if len(e.scenes) > 0 {
		origin = e.scenes[0].Center
		heading = e.scenes[0].Heading
	}
	return geo.ToGeo(origin, heading, e.camera.X, e.camera.Z, e.opts.Scale)
}

// OriginHeading returns the heading of the origin scene that orients the
// local frame, zero for an empty registry.
func (e *Engine) OriginHeading() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.scenes) == 0 {
		return 0
	}
	return e.scenes[0].Heading
}

// countEntered reports how many indexes are in next but not in prev. Both
// slices are sorted.
func countEntered(prev, next []int) int {
	was := make(map[int]struct{}, len(prev))
	for _, i := range prev {
		was[i] = struct{}{}
	}
	n := 0
	for _, i := range next {
		if _, ok := was[i]; !ok {
			n++
		}
	}
	return n
}

func equalSets(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinAssetURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "/") {
		return ref
	}
	if base == "" {
		return ref
	}
	if strings.HasSuffix(base, "/") {
		return base + ref
	}
	return base + "/" + ref
}
