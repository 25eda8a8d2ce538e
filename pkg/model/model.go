package model

// GeoPoint is a geographic coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is within the WGS84 coordinate range.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Scene is one independently reconstructed splat capture, anchored to a
// real-world coordinate and heading. Immutable after registry load.
type Scene struct {
	ID string `json:"id"`
	// AssetRef is the path or URL of the primary splat file.
	AssetRef string `json:"file"`
	// SecondaryAssetRef is only set in dual-splat calibration mode.
	SecondaryAssetRef string   `json:"secondFile,omitempty"`
	Center            GeoPoint `json:"center"`
	// Heading is degrees clockwise from geographic north; it orients the
	// scene's local +Z (forward) axis.
	Heading float64 `json:"heading"`
	// Note is an optional annotation shown during sequential navigation.
	Note string `json:"note,omitempty"`
	// Malformed marks an entry that was missing required geographic fields.
	// Malformed scenes keep a zero offset instead of being rejected.
	Malformed bool `json:"malformed,omitempty"`
}

// LocalOffset is a scene's position in the local Cartesian frame centered on
// the origin scene. Y is implicitly zero, scenes are co-planar.
type LocalOffset struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// SplatSlot is the runtime projection of a scene for the renderer.
type SplatSlot struct {
	ID       string      `json:"id"`
	AssetURL string      `json:"assetUrl"`
	Offset   LocalOffset `json:"offset"`
	// ShouldLoad is true while the scene is in the resident set.
	ShouldLoad bool `json:"shouldLoad"`
}

// CameraPose is a per-frame snapshot of the camera position in the local
// frame. The engines only ever consume copies of it.
type CameraPose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Marker is a world-anchored point of interest.
type Marker struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Title string  `json:"title"`
	Body  string  `json:"body"`
	Link  string  `json:"link,omitempty"`
	// TriggerRadius is the strict distance cutoff for proximity activation.
	TriggerRadius float64 `json:"triggerRadius"`
	// SceneID scopes the marker to one scene; empty means global.
	SceneID string `json:"sceneId,omitempty"`
}

// MarkerPhase is the proximity interaction state.
type MarkerPhase string

const (
	PhaseIdle     MarkerPhase = "idle"
	PhaseNear     MarkerPhase = "near"
	PhaseExpanded MarkerPhase = "expanded"
)

// NavPhase is the sequential navigation state.
type NavPhase string

const (
	NavSteady        NavPhase = "steady"
	NavTransitioning NavPhase = "transitioning"
)

// NavDirection selects the neighbor for a sequential step.
type NavDirection string

const (
	NavNext NavDirection = "next"
	NavPrev NavDirection = "prev"
)
