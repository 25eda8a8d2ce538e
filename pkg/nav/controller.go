package nav

import (
	"log/slog"
	"sync"
	"time"

	"globerun/pkg/model"
	"globerun/pkg/tracker"
)

// Timer is the stoppable handle returned by the controller's timer source.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules fn after d. Production uses time.AfterFunc; tests
// substitute a manual trigger.
type TimerFunc func(d time.Duration, fn func()) Timer

// Options configures the sequential navigation controller.
type Options struct {
	// MinBlackout is how long the occluder stays fully opaque even when
	// the target scene loads instantly. Avoids a jarring flash.
	MinBlackout time.Duration
	// LoadTimeout aborts a transition whose target never reports load
	// completion, reverting to the scene the camera came from. Zero
	// disables the timeout: a stalled load keeps the occluder up.
	LoadTimeout time.Duration
	// TimerFunc overrides the timer source.
	TimerFunc TimerFunc
}

// Status is the externally visible controller state.
type Status struct {
	Phase      model.NavPhase `json:"phase"`
	Index      int            `json:"index"`
	From       int            `json:"from,omitempty"`
	To         int            `json:"to,omitempty"`
	OccluderUp bool           `json:"occluderUp"`
	SceneID    string         `json:"sceneId,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// ChangeFunc receives the status after every phase change.
type ChangeFunc func(Status)

// Controller steps through the registry one scene at a time, masking each
// swap behind a full-screen blackout occluder. At most one transition is
// in flight; the occluder drops only when the minimum blackout has elapsed
// AND the target scene reports load completion.
type Controller struct {
	opts    Options
	tracker *tracker.Tracker
	logger  *slog.Logger

	mu         sync.Mutex
	scenes     []model.Scene
	phase      model.NavPhase
	index      int
	from, to   int
	minElapsed bool
	loaded     bool
	minTimer   Timer
	stallTimer Timer
	onChange   ChangeFunc
}

type realTimer struct{ *time.Timer }

// NewController creates a controller resting at index 0.
func NewController(opts Options, tr *tracker.Tracker) *Controller {
	if opts.TimerFunc == nil {
		opts.TimerFunc = func(d time.Duration, fn func()) Timer {
			return realTimer{time.AfterFunc(d, fn)}
		}
	}
	return &Controller{
		opts:    opts,
		tracker: tr,
		logger:  slog.With("component", "nav_controller"),
		phase:   model.NavSteady,
	}
}

// SetScenes installs the registry snapshot the controller steps through.
// The current index is clamped into the new bounds.
func (c *Controller) SetScenes(scenes []model.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scenes = scenes
	if c.index >= len(scenes) {
		c.index = max(0, len(scenes)-1)
	}
}

// OnChange registers the single status listener.
func (c *Controller) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Advance steps to the adjacent scene. Stepping past either end of the
// registry, or while a transition is already in flight, is a no-op and
// reports false.
func (c *Controller) Advance(dir model.NavDirection) bool {
	c.mu.Lock()

	if c.phase != model.NavSteady {
		c.tracker.Track(tracker.NavRejected)
		c.mu.Unlock()
		return false
	}

	target := c.index
	switch dir {
	case model.NavNext:
		target++
	case model.NavPrev:
		target--
	default:
		c.mu.Unlock()
		return false
	}
	if target < 0 || target >= len(c.scenes) {
		c.tracker.Track(tracker.NavRejected)
		c.mu.Unlock()
		return false
	}

	c.phase = model.NavTransitioning
	c.from, c.to = c.index, target
	c.minElapsed = false
	c.loaded = false

	c.logger.Info("Navigation transition", "from", c.from, "to", c.to)
	c.minTimer = c.opts.TimerFunc(c.opts.MinBlackout, c.minBlackoutDone)
	if c.opts.LoadTimeout > 0 {
		c.stallTimer = c.opts.TimerFunc(c.opts.LoadTimeout, c.loadStalled)
	}

	fire := c.notifyLocked()
	c.mu.Unlock()
	fire()
	return true
}

// SceneLoaded feeds a load-completion signal. Signals for scenes other
// than the current transition target are ignored.
func (c *Controller) SceneLoaded(id string) {
	c.mu.Lock()

	if c.phase != model.NavTransitioning || c.to >= len(c.scenes) || c.scenes[c.to].ID != id {
		c.mu.Unlock()
		return
	}

	c.loaded = true
	fire := c.maybeReleaseLocked()
	c.mu.Unlock()
	fire()
}

func (c *Controller) minBlackoutDone() {
	c.mu.Lock()
	c.minElapsed = true
	fire := c.maybeReleaseLocked()
	c.mu.Unlock()
	fire()
}

// loadStalled reverts a transition whose target never loaded. The scene
// the camera came from is still resident, so going back is safe.
func (c *Controller) loadStalled() {
	c.mu.Lock()

	if c.phase != model.NavTransitioning || c.loaded {
		c.mu.Unlock()
		return
	}

	c.logger.Warn("Transition target never loaded, reverting", "from", c.from, "to", c.to)
	c.phase = model.NavSteady
	c.index = c.from
	c.stopTimersLocked()

	fire := c.notifyLocked()
	c.mu.Unlock()
	fire()
}

// maybeReleaseLocked drops the occluder once both gates are open.
func (c *Controller) maybeReleaseLocked() func() {
	if c.phase != model.NavTransitioning || !c.minElapsed || !c.loaded {
		return func() {}
	}

	c.phase = model.NavSteady
	c.index = c.to
	c.stopTimersLocked()
	c.tracker.Track(tracker.NavTransitions)
	c.logger.Info("Navigation transition complete", "index", c.index)

	return c.notifyLocked()
}

func (c *Controller) stopTimersLocked() {
	if c.minTimer != nil {
		c.minTimer.Stop()
		c.minTimer = nil
	}
	if c.stallTimer != nil {
		c.stallTimer.Stop()
		c.stallTimer = nil
	}
}

func (c *Controller) notifyLocked() func() {
	fn := c.onChange
	if fn == nil {
		return func() {}
	}
	st := c.statusLocked()
	return func() { fn(st) }
}

// Status returns the current controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{Phase: c.phase, Index: c.index}
	if c.phase == model.NavTransitioning {
		st.From, st.To = c.from, c.to
		st.OccluderUp = true
	}
	if c.index < len(c.scenes) {
		st.SceneID = c.scenes[c.index].ID
		st.Note = c.scenes[c.index].Note
	}
	return st
}

// Index returns the current steady index (the from-index mid-transition).
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}
