package api

import (
	"net/http"

	"globerun/pkg/marker"
	"globerun/pkg/registry"
	"globerun/pkg/stitch"
	"globerun/pkg/tracker"
)

type StatsHandler struct {
	tracker  *tracker.Tracker
	registry *registry.Registry
	stitch   *stitch.Engine
	markers  *marker.Engine
}

func NewStatsHandler(t *tracker.Tracker, reg *registry.Registry, st *stitch.Engine, mk *marker.Engine) *StatsHandler {
	return &StatsHandler{tracker: t, registry: reg, stitch: st, markers: mk}
}

type StatsResponse struct {
	Counters map[string]int64 `json:"counters"`
	Scenes   int              `json:"scenes"`
	Resident int              `json:"resident"`
	Nearest  int              `json:"nearest"`
	Markers  int              `json:"markers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Counters: h.tracker.Snapshot(),
		Scenes:   h.registry.Len(),
		Resident: len(h.stitch.Resident()),
		Nearest:  h.stitch.Nearest(),
		Markers:  len(h.markers.Markers()),
	}
	writeJSON(w, resp)
}
