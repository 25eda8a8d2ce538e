package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"globerun/pkg/model"
)

// Document is the wire format of the scene registry.
type Document struct {
	Worlds []json.RawMessage `json:"worlds"`
}

// rawWorld mirrors one registry entry with every optional field nullable, so
// the parse step can substitute explicit defaults exactly once. The engines
// never see a possibly-absent field.
type rawWorld struct {
	ID         *string  `json:"id"`
	File       *string  `json:"file"`
	SecondFile *string  `json:"secondFile"`
	Center     *rawGeo  `json:"center"`
	Heading    *float64 `json:"heading"`
	Note       *string  `json:"note"`
}

type rawGeo struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Registry holds the validated, ordered scene list. Element 0 is the origin
// scene for stitching. Scenes are appended at runtime by the ingest watcher
// but individual entries are never mutated.
type Registry struct {
	mu     sync.RWMutex
	scenes []model.Scene
	subs   []func([]model.Scene)
}

// New creates a registry from already-validated scenes.
func New(scenes []model.Scene) *Registry {
	return &Registry{scenes: scenes}
}

// Parse validates a registry document into strict scenes. Entries missing
// required geographic fields are kept, flagged malformed, and anchored at
// the origin rather than dropped: a misplaced scene beats a missing one.
func Parse(data []byte) ([]model.Scene, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed registry document: %w", err)
	}

	scenes := make([]model.Scene, 0, len(doc.Worlds))
	for i, raw := range doc.Worlds {
		var w rawWorld
		if err := json.Unmarshal(raw, &w); err != nil {
			slog.Warn("Skipping unreadable registry entry", "index", i, "error", err)
			continue
		}
		scenes = append(scenes, normalize(&w, i))
	}
	return scenes, nil
}

func normalize(w *rawWorld, index int) model.Scene {
	s := model.Scene{}

	if w.ID != nil && *w.ID != "" {
		s.ID = *w.ID
	} else {
		s.ID = fmt.Sprintf("scene-%d", index)
	}
	if w.File != nil {
		s.AssetRef = *w.File
	}
	if w.SecondFile != nil {
		s.SecondaryAssetRef = *w.SecondFile
	}
	if w.Heading != nil {
		s.Heading = *w.Heading
	}
	if w.Note != nil {
		s.Note = *w.Note
	}

	switch {
	case w.Center == nil || w.Center.Lat == nil || w.Center.Lng == nil:
		s.Malformed = true
	default:
		s.Center = model.GeoPoint{Lat: *w.Center.Lat, Lng: *w.Center.Lng}
		if !s.Center.Valid() {
			s.Center = model.GeoPoint{}
			s.Malformed = true
		}
	}
	if s.AssetRef == "" {
		s.Malformed = true
	}

	if s.Malformed {
		slog.Warn("Registry entry missing required fields, anchoring at origin", "id", s.ID)
	}
	return s
}

// Scenes returns a copy of the current scene list.
func (r *Registry) Scenes() []model.Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Scene, len(r.scenes))
	copy(out, r.scenes)
	return out
}

// Len returns the number of scenes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenes)
}

// Scene returns the scene at index, and whether it exists.
func (r *Registry) Scene(index int) (model.Scene, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.scenes) {
		return model.Scene{}, false
	}
	return r.scenes[index], true
}

// Append adds newly generated scenes to the end of the registry and
// notifies subscribers with the full updated list.
func (r *Registry) Append(scenes ...model.Scene) {
	if len(scenes) == 0 {
		return
	}
	r.mu.Lock()
	r.scenes = append(r.scenes, scenes...)
	snapshot := make([]model.Scene, len(r.scenes))
	copy(snapshot, r.scenes)
	subs := r.subs
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Subscribe registers a callback invoked with the full scene list whenever
// the registry changes. Not safe to call concurrently with Append.
func (r *Registry) Subscribe(fn func([]model.Scene)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// HasScene reports whether a scene with the given id exists.
func (r *Registry) HasScene(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.scenes {
		if s.ID == id {
			return true
		}
	}
	return false
}
