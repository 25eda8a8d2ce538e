package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"globerun/internal/api"
	"globerun/pkg/config"
	"globerun/pkg/db"
	"globerun/pkg/logging"
	"globerun/pkg/marker"
	"globerun/pkg/model"
	"globerun/pkg/nav"
	"globerun/pkg/probe"
	"globerun/pkg/registry"
	"globerun/pkg/request"
	"globerun/pkg/stitch"
	"globerun/pkg/store"
	"globerun/pkg/tracker"
	"globerun/pkg/version"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/globerun.yaml", "Path to the config file")
)

func main() {
	// Local overrides (asset base URL etc.); absence is fine.
	_ = godotenv.Load()
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Globerun Started", "version", version.Version)

	dbConn, st, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := dbConn.PruneCache(30 * 24 * time.Hour); err != nil {
		slog.Warn("Cache pruning failed", "error", err)
	}

	tr := tracker.New()
	reqClient := request.New(request.ClientConfig{
		Retries:   cfg.Request.Retries,
		Timeout:   time.Duration(cfg.Request.Timeout),
		BaseDelay: time.Duration(cfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(cfg.Request.Backoff.MaxDelay),
	})

	// Registry: fetch, degrade to cache or empty, never fail startup.
	reg := registry.NewLoader(cfg.Registry.URL, reqClient, st, tr).Load(ctx)
	slog.Info("Registry loaded", "scenes", reg.Len())

	engines := wireEngines(cfg, tr, reg, st)

	// Pipeline ingest: freshly generated splats appear without a restart.
	if cfg.Registry.WatchDir != "" {
		w := registry.NewWatcher(cfg.Registry.WatchDir, time.Duration(cfg.Registry.WatchInterval), reg, tr)
		go w.Start(ctx)
	}

	restoreSession(ctx, st, engines.viewer)

	if err := runProbes(ctx, cfg, st); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, cfg, engines, tr, reg)
}

func initDB(cfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

type engineSet struct {
	stitch  *stitch.Engine
	markers *marker.Engine
	nav     *nav.Controller
	viewer  *api.ViewerHandler
	ws      *api.WSHandler
	cov     *registry.Coverage
}

func wireEngines(cfg *config.Config, tr *tracker.Tracker, reg *registry.Registry, st store.Store) *engineSet {
	stitchEngine := stitch.NewEngine(stitch.Options{
		Scale:        cfg.Stitch.Scale,
		LoadRadiusM:  float64(cfg.Stitch.LoadRadius),
		AssetBaseURL: cfg.Assets.BaseURL,
	}, tr)
	stitchEngine.SetScenes(reg.Scenes())

	markerEngine := marker.NewEngine(tr)
	markers, err := marker.LoadFile(cfg.Markers.Path)
	if err != nil {
		slog.Warn("Failed to load markers, continuing without", "error", err)
	}
	markerEngine.SetMarkers(markers)

	navCtl := nav.NewController(nav.Options{
		MinBlackout: time.Duration(cfg.Nav.MinBlackout),
		LoadTimeout: time.Duration(cfg.Nav.LoadTimeout),
	}, tr)
	navCtl.SetScenes(reg.Scenes())

	// Registry growth (watcher ingest) flows into both engines.
	reg.Subscribe(func(scenes []model.Scene) {
		stitchEngine.SetScenes(scenes)
		navCtl.SetScenes(scenes)
	})

	cov := registry.NewCoverage(cfg.Coverage.Resolution)
	viewer := api.NewViewerHandler(reg, cov, stitchEngine, markerEngine, navCtl, st)
	ws := api.NewWSHandler(viewer)

	// State changes fan out to connected viewers; a transition blackout
	// also pauses marker prompts.
	stitchEngine.OnChange(func([]int, int) { ws.BroadcastState() })
	markerEngine.OnTransition(func(*model.Marker, model.MarkerPhase) { ws.BroadcastState() })
	navCtl.OnChange(func(s nav.Status) {
		markerEngine.SetPaused(s.Phase == model.NavTransitioning)
		ws.BroadcastState()
	})

	return &engineSet{
		stitch:  stitchEngine,
		markers: markerEngine,
		nav:     navCtl,
		viewer:  viewer,
		ws:      ws,
		cov:     cov,
	}
}

// restoreSession replays the last persisted camera pose so a restart drops
// the viewer back where it left off.
func restoreSession(ctx context.Context, st store.Store, viewer *api.ViewerHandler) {
	raw, ok := st.GetState(ctx, api.StateKeyCamera)
	if !ok {
		return
	}

	var pose model.CameraPose
	if err := json.Unmarshal([]byte(raw), &pose); err != nil {
		slog.Warn("Discarding unreadable persisted camera pose", "error", err)
		return
	}

	viewer.ApplyCamera(pose)
	slog.Info("Session restored", "x", pose.X, "z", pose.Z)
}

func runProbes(ctx context.Context, cfg *config.Config, st store.Store) error {
	probes := []probe.Probe{
		{
			Name: "Splat asset dir",
			Check: func(context.Context) error {
				info, err := os.Stat(cfg.Assets.Dir)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", cfg.Assets.Dir)
				}
				return nil
			},
			Critical: false, // assets may be remote
		},
		{
			Name: "State store",
			Check: func(c context.Context) error {
				return st.SetState(c, "probe", time.Now().Format(time.RFC3339))
			},
			Critical: true,
		},
	}

	return probe.AnalyzeResults(probe.Run(ctx, probes))
}

func runServer(ctx context.Context, cfg *config.Config, engines *engineSet, tr *tracker.Tracker, reg *registry.Registry) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	statsH := api.NewStatsHandler(tr, reg, engines.stitch, engines.markers)
	srv := api.NewServer(cfg.Server.Address, engines.viewer, engines.ws, statsH, cfg.Assets.Dir, shutdownFunc)
	srv.Handler = loggingMiddleware(srv.Handler)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
