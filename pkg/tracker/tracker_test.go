package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()

	tr.Track(LoadsRequested)
	tr.Track(LoadsRequested)
	tr.Add(ScenesIngested, 3)

	if got := tr.Get(LoadsRequested); got != 2 {
		t.Errorf("LoadsRequested = %d, want 2", got)
	}
	if got := tr.Get(ScenesIngested); got != 3 {
		t.Errorf("ScenesIngested = %d, want 3", got)
	}
	if got := tr.Get(LoadsStale); got != 0 {
		t.Errorf("LoadsStale = %d, want 0", got)
	}

	snap := tr.Snapshot()
	if snap[LoadsRequested] != 2 || snap[ScenesIngested] != 3 {
		t.Errorf("Snapshot mismatch: %v", snap)
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Track(MarkerTransitions)
			}
		}()
	}
	wg.Wait()

	if got := tr.Get(MarkerTransitions); got != 5000 {
		t.Errorf("MarkerTransitions = %d, want 5000", got)
	}
}
