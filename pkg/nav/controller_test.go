package nav

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globerun/pkg/model"
	"globerun/pkg/tracker"
)

// manualTimers records scheduled callbacks so tests control time.
type manualTimers struct {
	fns []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (m *manualTimers) timerFunc(d time.Duration, fn func()) Timer {
	m.fns = append(m.fns, fn)
	return manualTimer{}
}

// fire runs and clears all pending callbacks.
func (m *manualTimers) fire() {
	fns := m.fns
	m.fns = nil
	for _, fn := range fns {
		fn()
	}
}

func testScenes() []model.Scene {
	return []model.Scene{
		{ID: "a", AssetRef: "a.ply", Note: "start of the walk"},
		{ID: "b", AssetRef: "b.ply", Note: "the corner"},
		{ID: "c", AssetRef: "c.ply"},
	}
}

func newTestController(opts Options) (*Controller, *manualTimers, *tracker.Tracker) {
	timers := &manualTimers{}
	opts.TimerFunc = timers.timerFunc
	tr := tracker.New()
	c := NewController(opts, tr)
	c.SetScenes(testScenes())
	return c, timers, tr
}

func TestAdvanceHappyPath(t *testing.T) {
	c, timers, tr := newTestController(Options{MinBlackout: 500 * time.Millisecond})

	require.True(t, c.Advance(model.NavNext))
	st := c.Status()
	assert.Equal(t, model.NavTransitioning, st.Phase)
	assert.True(t, st.OccluderUp)
	assert.Equal(t, 0, st.From)
	assert.Equal(t, 1, st.To)

	// Load completes before the minimum blackout: occluder stays up.
	c.SceneLoaded("b")
	assert.True(t, c.Status().OccluderUp, "minimum occluder time not yet elapsed")

	timers.fire()
	st = c.Status()
	assert.Equal(t, model.NavSteady, st.Phase)
	assert.False(t, st.OccluderUp)
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, "the corner", st.Note)
	assert.Equal(t, int64(1), tr.Get(tracker.NavTransitions))
}

func TestOccluderWaitsForSlowLoad(t *testing.T) {
	c, timers, _ := newTestController(Options{MinBlackout: 500 * time.Millisecond})

	require.True(t, c.Advance(model.NavNext))

	// Blackout elapsed but the target is still loading.
	timers.fire()
	assert.True(t, c.Status().OccluderUp)

	c.SceneLoaded("b")
	st := c.Status()
	assert.False(t, st.OccluderUp)
	assert.Equal(t, 1, st.Index)
}

func TestDoubleAdvanceIsNoOp(t *testing.T) {
	c, timers, tr := newTestController(Options{MinBlackout: 500 * time.Millisecond})

	require.True(t, c.Advance(model.NavNext))
	assert.False(t, c.Advance(model.NavNext), "second advance while in flight must be rejected")
	assert.Equal(t, int64(1), tr.Get(tracker.NavRejected))

	c.SceneLoaded("b")
	timers.fire()

	// Only one step happened.
	assert.Equal(t, 1, c.Index())
}

func TestAdvanceBounds(t *testing.T) {
	c, _, tr := newTestController(Options{MinBlackout: time.Millisecond})

	assert.False(t, c.Advance(model.NavPrev), "prev at index 0")
	assert.Equal(t, 0, c.Index())

	c.SetScenes(testScenes()[:1])
	assert.False(t, c.Advance(model.NavNext), "next at the last index")
	assert.Equal(t, int64(2), tr.Get(tracker.NavRejected))
}

func TestAdvanceEmptyRegistry(t *testing.T) {
	timers := &manualTimers{}
	c := NewController(Options{TimerFunc: timers.timerFunc}, tracker.New())

	assert.False(t, c.Advance(model.NavNext))
	assert.Equal(t, model.NavSteady, c.Status().Phase)
}

func TestWrongSceneLoadSignalIgnored(t *testing.T) {
	c, timers, _ := newTestController(Options{MinBlackout: time.Millisecond})

	require.True(t, c.Advance(model.NavNext))
	timers.fire()

	c.SceneLoaded("c") // not the target
	assert.True(t, c.Status().OccluderUp)

	c.SceneLoaded("b")
	assert.False(t, c.Status().OccluderUp)
}

func TestStalledLoadReverts(t *testing.T) {
	c, timers, _ := newTestController(Options{
		MinBlackout: 500 * time.Millisecond,
		LoadTimeout: 10 * time.Second,
	})

	require.True(t, c.Advance(model.NavNext))

	// Both the blackout and the stall timers fire; the target never loaded.
	timers.fire()
	st := c.Status()
	assert.Equal(t, model.NavSteady, st.Phase)
	assert.Equal(t, 0, st.Index, "reverted to the scene the camera came from")
	assert.False(t, st.OccluderUp)

	// The controller is usable again.
	assert.True(t, c.Advance(model.NavNext))
}

func TestStalledLoadKeepsOccluderWhenTimeoutDisabled(t *testing.T) {
	c, timers, _ := newTestController(Options{MinBlackout: 500 * time.Millisecond})

	require.True(t, c.Advance(model.NavNext))
	timers.fire()

	// No timeout configured: the degraded state is visible, not hidden.
	assert.True(t, c.Status().OccluderUp)
}

func TestChangeListener(t *testing.T) {
	c, timers, _ := newTestController(Options{MinBlackout: time.Millisecond})

	var phases []model.NavPhase
	c.OnChange(func(st Status) { phases = append(phases, st.Phase) })

	c.Advance(model.NavNext)
	c.SceneLoaded("b")
	timers.fire()

	assert.Equal(t, []model.NavPhase{model.NavTransitioning, model.NavSteady}, phases)
}

func TestStatusExposesSceneNote(t *testing.T) {
	c, _, _ := newTestController(Options{MinBlackout: time.Millisecond})

	st := c.Status()
	assert.Equal(t, "a", st.SceneID)
	assert.Equal(t, "start of the walk", st.Note)
}
