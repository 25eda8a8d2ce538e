package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"globerun/pkg/geo"
	"globerun/pkg/marker"
	"globerun/pkg/model"
	"globerun/pkg/nav"
	"globerun/pkg/registry"
	"globerun/pkg/stitch"
	"globerun/pkg/store"
)

// ViewerHandler exposes the stitched-viewer state: registry, slots, camera,
// markers, navigation and map projection.
type ViewerHandler struct {
	registry *registry.Registry
	coverage *registry.Coverage
	stitch   *stitch.Engine
	markers  *marker.Engine
	nav      *nav.Controller
	state    store.StateStore

	mu        sync.Mutex
	lastSaved time.Time
}

// StateKeyCamera is where the last camera pose is persisted for session
// restore on the next startup.
const StateKeyCamera = "last_camera_pose"

func NewViewerHandler(reg *registry.Registry, cov *registry.Coverage, st *stitch.Engine, mk *marker.Engine, nv *nav.Controller, state store.StateStore) *ViewerHandler {
	return &ViewerHandler{
		registry: reg,
		coverage: cov,
		stitch:   st,
		markers:  mk,
		nav:      nv,
		state:    state,
	}
}

type registryEntry struct {
	model.Scene
	Offset model.LocalOffset `json:"offset"`
}

// HandleRegistry returns the validated scene list with computed offsets.
func (h *ViewerHandler) HandleRegistry(w http.ResponseWriter, r *http.Request) {
	scenes := h.registry.Scenes()
	slots := h.stitch.Slots()

	entries := make([]registryEntry, len(scenes))
	for i, s := range scenes {
		entries[i] = registryEntry{Scene: s}
		if i < len(slots) {
			entries[i].Offset = slots[i].Offset
		}
	}
	writeJSON(w, map[string]any{"scenes": entries})
}

// HandleSlots returns the renderable slots with their should-load flags.
func (h *ViewerHandler) HandleSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"slots":   h.stitch.Slots(),
		"nearest": h.stitch.Nearest(),
	})
}

// HandleCamera consumes a camera pose snapshot (polling fallback for
// clients without the websocket).
func (h *ViewerHandler) HandleCamera(w http.ResponseWriter, r *http.Request) {
	var pose model.CameraPose
	if err := json.NewDecoder(r.Body).Decode(&pose); err != nil {
		http.Error(w, "invalid camera pose", http.StatusBadRequest)
		return
	}

	h.ApplyCamera(pose)
	w.WriteHeader(http.StatusNoContent)
}

// ApplyCamera runs one pose snapshot through the stitching and marker
// engines and persists it, throttled, for session restore.
func (h *ViewerHandler) ApplyCamera(pose model.CameraPose) {
	h.stitch.UpdateCamera(pose)
	h.markers.UpdateCamera(pose, h.stitch.NearestScene().ID)
	h.persistCamera(pose)
}

func (h *ViewerHandler) persistCamera(pose model.CameraPose) {
	if h.state == nil {
		return
	}

	h.mu.Lock()
	due := time.Since(h.lastSaved) >= time.Second
	if due {
		h.lastSaved = time.Now()
	}
	h.mu.Unlock()
	if !due {
		return
	}

	data, err := json.Marshal(pose)
	if err != nil {
		return
	}
	if err := h.state.SetState(context.Background(), StateKeyCamera, string(data)); err != nil {
		slog.Warn("Failed to persist camera pose", "error", err)
	}
}

// HandleSceneLoaded applies a load-complete signal from the renderer.
func (h *ViewerHandler) HandleSceneLoaded(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing scene id", http.StatusBadRequest)
		return
	}

	applied := h.stitch.SceneLoaded(id)
	h.nav.SceneLoaded(id)
	writeJSON(w, map[string]any{"applied": applied})
}

// HandleMarkers returns the marker set and the interaction state.
func (h *ViewerHandler) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"markers": h.markers.Markers(),
		"state":   h.markers.State(),
	})
}

// HandleMarkerToggle switches the active marker between near and expanded.
func (h *ViewerHandler) HandleMarkerToggle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.markers.Toggle())
}

// HandleMarkerDismiss closes an expanded marker.
func (h *ViewerHandler) HandleMarkerDismiss(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.markers.Dismiss())
}

// HandleMapPosition projects the live camera position back onto the map,
// with the bearing toward the nearest capture so the mini-map can draw a
// direction hint. The relative bearing is against the local frame's
// forward axis (the origin scene's heading).
func (h *ViewerHandler) HandleMapPosition(w http.ResponseWriter, r *http.Request) {
	pos := h.stitch.CameraGeo()
	resp := map[string]any{
		"lat":     pos.Lat,
		"lng":     pos.Lng,
		"nearest": h.stitch.Nearest(),
	}

	if ns := h.stitch.NearestScene(); ns.ID != "" && !ns.Malformed {
		b := geo.Bearing(pos, ns.Center)
		resp["bearingToNearest"] = b
		resp["relativeBearing"] = geo.NormalizeAngle(b - h.stitch.OriginHeading())
	}
	writeJSON(w, resp)
}

// HandleMapCoverage returns the H3 coverage layer as GeoJSON.
func (h *ViewerHandler) HandleMapCoverage(w http.ResponseWriter, r *http.Request) {
	fc, err := h.coverage.GeoJSON(h.registry.Scenes())
	if err != nil {
		slog.Error("Failed to build coverage layer", "error", err)
		http.Error(w, "coverage unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, fc)
}

// HandleNav returns the navigation controller status.
func (h *ViewerHandler) HandleNav(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.nav.Status())
}

type advanceRequest struct {
	Direction model.NavDirection `json:"direction"`
}

// HandleNavAdvance steps the sequential navigation one scene over.
func (h *ViewerHandler) HandleNavAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid advance request", http.StatusBadRequest)
		return
	}
	if req.Direction != model.NavNext && req.Direction != model.NavPrev {
		http.Error(w, "direction must be next or prev", http.StatusBadRequest)
		return
	}

	accepted := h.nav.Advance(req.Direction)
	writeJSON(w, map[string]any{
		"accepted": accepted,
		"status":   h.nav.Status(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
