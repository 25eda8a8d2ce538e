package api

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"globerun/internal/ui"
	"globerun/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints, the splat asset directory and
// a shutdownFunc for graceful shutdown.
func NewServer(addr string, viewer *ViewerHandler, ws *WSHandler, stats *StatsHandler, assetDir string, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Viewer state
	mux.HandleFunc("GET /api/registry", viewer.HandleRegistry)
	mux.HandleFunc("GET /api/slots", viewer.HandleSlots)
	mux.HandleFunc("POST /api/camera", viewer.HandleCamera)
	mux.HandleFunc("POST /api/scenes/{id}/loaded", viewer.HandleSceneLoaded)

	// 2b. Markers
	mux.HandleFunc("GET /api/markers", viewer.HandleMarkers)
	mux.HandleFunc("POST /api/markers/toggle", viewer.HandleMarkerToggle)
	mux.HandleFunc("POST /api/markers/dismiss", viewer.HandleMarkerDismiss)

	// 2c. Mini-map
	mux.HandleFunc("GET /api/map/position", viewer.HandleMapPosition)
	mux.HandleFunc("GET /api/map/coverage", viewer.HandleMapCoverage)

	// 2d. Sequential navigation
	mux.HandleFunc("GET /api/nav", viewer.HandleNav)
	mux.HandleFunc("POST /api/nav/advance", viewer.HandleNavAdvance)

	// 2e. Diagnostics
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 2f. Camera/state stream
	mux.Handle("GET /ws", ws)

	// 3. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	// 4. Splat assets (large binary payloads, plain file serving)
	mux.Handle("GET /splats/", http.StripPrefix("/splats/", http.FileServer(http.Dir(assetDir))))

	// 5. Static Frontend Serving (SPA)
	distFS, err := fs.Sub(ui.DistFS, "dist")
	if err != nil {
		panic(fmt.Sprintf("Failed to subtree dist from embedded assets: %v", err))
	}

	spaFS := &spaFileSystem{root: http.FS(distFS)}
	mux.Handle("/", http.FileServer(spaFS))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
