package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"globerun/pkg/geo"
	"globerun/pkg/model"
	"globerun/pkg/tracker"
)

// dedupRadiusM treats a new capture centered within this distance of an
// existing scene as a pipeline re-run of the same spot, not a new scene.
const dedupRadiusM = 5.0

// Watcher polls the splat output directory for freshly generated scenes.
// The generation pipeline drops a .ply next to a metadata sidecar
// ("scene.ply" + "scene.json"); once both exist the scene is appended to
// the live registry.
type Watcher struct {
	dir      string
	interval time.Duration
	reg      *Registry
	tracker  *tracker.Tracker
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// sidecar is the metadata the pipeline writes next to each generated splat.
type sidecar struct {
	ID      string          `json:"id"`
	Center  *model.GeoPoint `json:"center"`
	Heading float64         `json:"heading"`
	Note    string          `json:"note"`
}

// NewWatcher creates an ingest watcher. A missing directory is tolerated;
// it may be created by the pipeline later.
func NewWatcher(dir string, interval time.Duration, reg *Registry, tr *tracker.Tracker) *Watcher {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Warn("Ingest: directory does not exist yet", "path", dir)
	}
	return &Watcher{
		dir:      dir,
		interval: interval,
		reg:      reg,
		tracker:  tr,
		logger:   slog.With("component", "ingest_watcher"),
		seen:     make(map[string]struct{}),
	}
}

// Start polls until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

// Scan performs one directory sweep and appends any complete new scenes.
// It returns the number of scenes ingested.
func (w *Watcher) Scan() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".ply") {
			continue
		}
		if _, ok := w.seen[name]; ok {
			continue
		}

		metaPath := filepath.Join(w.dir, strings.TrimSuffix(name, filepath.Ext(name))+".json")
		meta, err := os.ReadFile(metaPath)
		if err != nil {
			// Sidecar not written yet; pick the splat up next sweep.
			continue
		}

		var sc sidecar
		if err := json.Unmarshal(meta, &sc); err != nil {
			w.logger.Warn("Ingest: unreadable sidecar, skipping", "file", metaPath, "error", err)
			w.seen[name] = struct{}{}
			continue
		}

		scene := model.Scene{
			ID:       sc.ID,
			AssetRef: name,
			Heading:  sc.Heading,
			Note:     sc.Note,
		}
		if scene.ID == "" {
			scene.ID = uuid.NewString()
		}
		if sc.Center != nil && sc.Center.Valid() {
			scene.Center = *sc.Center
		} else {
			scene.Malformed = true
		}
		if w.reg.HasScene(scene.ID) {
			w.seen[name] = struct{}{}
			continue
		}
		if !scene.Malformed {
			if dup, ok := w.nearbyScene(scene.Center); ok {
				w.logger.Info("Ingest: capture duplicates an existing scene, skipping", "file", name, "existing", dup)
				w.seen[name] = struct{}{}
				continue
			}
		}

		w.reg.Append(scene)
		w.seen[name] = struct{}{}
		w.tracker.Track(tracker.ScenesIngested)
		w.logger.Info("Ingest: new scene appended", "id", scene.ID, "file", name)
		count++
	}
	return count
}

// nearbyScene returns the id of a well-formed registry scene whose center
// lies within the dedup radius of p.
func (w *Watcher) nearbyScene(p model.GeoPoint) (string, bool) {
	for _, s := range w.reg.Scenes() {
		if s.Malformed {
			continue
		}
		if geo.Distance(s.Center, p) < dedupRadiusM {
			return s.ID, true
		}
	}
	return "", false
}
