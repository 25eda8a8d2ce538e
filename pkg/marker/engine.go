package marker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"globerun/pkg/model"
	"globerun/pkg/tracker"
)

// State is the exclusive interaction state: idle, or near/expanded with
// exactly one active marker.
type State struct {
	Phase    model.MarkerPhase `json:"phase"`
	MarkerID string            `json:"markerId,omitempty"`
}

// TransitionFunc receives the active marker (nil when idle) after every
// state transition.
type TransitionFunc func(active *model.Marker, phase model.MarkerPhase)

// Engine scans world-anchored markers against the camera pose and drives
// the tri-state interaction machine. All transitions are sequential: the
// engine is driven by one camera-update stream plus explicit user actions.
type Engine struct {
	tracker *tracker.Tracker
	logger  *slog.Logger

	mu           sync.Mutex
	markers      []model.Marker
	state        State
	paused       bool
	onTransition TransitionFunc
}

// NewEngine creates an idle marker engine with no markers installed.
func NewEngine(tr *tracker.Tracker) *Engine {
	return &Engine{
		tracker: tr,
		logger:  slog.With("component", "marker_engine"),
		state:   State{Phase: model.PhaseIdle},
	}
}

type markerDocument struct {
	Markers []model.Marker `json:"markers"`
}

// LoadFile reads a marker definitions document ({"markers": [...]}).
// A missing file is not an error; the viewer simply runs without markers.
func LoadFile(path string) ([]model.Marker, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading marker document: %w", err)
	}

	var doc markerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing marker document %s: %w", path, err)
	}
	return doc.Markers, nil
}

// SetMarkers installs the marker set. Markers without a positive trigger
// radius are dropped with a warning; they could never activate anyway.
func (e *Engine) SetMarkers(markers []model.Marker) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.markers = e.markers[:0]
	for _, m := range markers {
		if m.TriggerRadius <= 0 {
			e.logger.Warn("Dropping marker with non-positive trigger radius", "id", m.ID)
			continue
		}
		e.markers = append(e.markers, m)
	}
	e.logger.Info("Markers installed", "count", len(e.markers))
}

// OnTransition registers the single transition listener.
func (e *Engine) OnTransition(fn TransitionFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTransition = fn
}

// SetPaused suspends or resumes proximity scanning. Used by the navigation
// controller while a blackout transition is in flight, and by other modal
// overlays. Pausing never changes the current state by itself.
func (e *Engine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
}

// Paused reports whether proximity scanning is suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// UpdateCamera evaluates marker proximity for a camera pose snapshot,
// scoped to markers of the active scene plus global markers. While paused
// or expanded no automatic transition happens, so the visible popup never
// changes underneath the user.
func (e *Engine) UpdateCamera(pose model.CameraPose, activeSceneID string) State {
	e.mu.Lock()

	if e.paused || e.state.Phase == model.PhaseExpanded {
		st := e.state
		e.mu.Unlock()
		return st
	}

	// Closest marker whose distance is strictly inside its own trigger
	// radius. The radius is a pure cutoff, not a priority weight; ties on
	// distance resolve to the first marker in installation order.
	bestID := ""
	bestDist := math.MaxFloat64
	for _, m := range e.markers {
		if m.SceneID != "" && m.SceneID != activeSceneID {
			continue
		}
		d := distance(pose, m)
		if d < m.TriggerRadius && d < bestDist {
			bestDist = d
			bestID = m.ID
		}
	}

	var next State
	if bestID == "" {
		next = State{Phase: model.PhaseIdle}
	} else {
		next = State{Phase: model.PhaseNear, MarkerID: bestID}
	}

	fire := e.applyLocked(next)
	st := e.state
	e.mu.Unlock()

	fire()
	return st
}

// Toggle switches between near and expanded for the active marker. In idle
// there is nothing to toggle; the call is a no-op.
func (e *Engine) Toggle() State {
	e.mu.Lock()

	var next State
	switch e.state.Phase {
	case model.PhaseNear:
		next = State{Phase: model.PhaseExpanded, MarkerID: e.state.MarkerID}
	case model.PhaseExpanded:
		next = State{Phase: model.PhaseNear, MarkerID: e.state.MarkerID}
	default:
		st := e.state
		e.mu.Unlock()
		return st
	}

	fire := e.applyLocked(next)
	st := e.state
	e.mu.Unlock()

	fire()
	return st
}

// Dismiss closes an expanded marker and returns to idle. Proximity scanning
// resumes on the next camera update, which may immediately re-enter near if
// the camera is still inside a trigger radius.
func (e *Engine) Dismiss() State {
	e.mu.Lock()

	if e.state.Phase != model.PhaseExpanded {
		st := e.state
		e.mu.Unlock()
		return st
	}

	fire := e.applyLocked(State{Phase: model.PhaseIdle})
	st := e.state
	e.mu.Unlock()

	fire()
	return st
}

// State returns the current interaction state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ActiveMarker returns the marker behind the current near/expanded state.
func (e *Engine) ActiveMarker() (model.Marker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.findLocked(e.state.MarkerID)
	if m == nil {
		return model.Marker{}, false
	}
	return *m, true
}

// Markers returns a copy of the installed marker set.
func (e *Engine) Markers() []model.Marker {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Marker, len(e.markers))
	copy(out, e.markers)
	return out
}

// applyLocked commits a state change and returns the deferred listener
// invocation, a no-op when nothing changed. Callers invoke it after
// releasing the mutex so listeners can call back into the engine.
func (e *Engine) applyLocked(next State) func() {
	if next == e.state {
		return func() {}
	}

	e.logger.Debug("Marker transition", "from", e.state.Phase, "to", next.Phase, "id", next.MarkerID)
	e.state = next
	e.tracker.Track(tracker.MarkerTransitions)

	fn := e.onTransition
	if fn == nil {
		return func() {}
	}

	var active *model.Marker
	if m := e.findLocked(next.MarkerID); m != nil && next.Phase != model.PhaseIdle {
		cp := *m
		active = &cp
	}
	phase := next.Phase
	return func() { fn(active, phase) }
}

func (e *Engine) findLocked(id string) *model.Marker {
	if id == "" {
		return nil
	}
	for i := range e.markers {
		if e.markers[i].ID == id {
			return &e.markers[i]
		}
	}
	return nil
}

// distance is the full 3D Euclidean distance from the camera to a marker.
// Vertical offsets are usually zero but the contract keeps the Y term.
func distance(pose model.CameraPose, m model.Marker) float64 {
	dx := pose.X - m.X
	dy := pose.Y - m.Y
	dz := pose.Z - m.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
