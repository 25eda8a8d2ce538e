package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"globerun/pkg/model"
	"globerun/pkg/request"
	"globerun/pkg/store"
	"globerun/pkg/tracker"
)

// ErrRegistryUnavailable marks a registry source that could not be reached
// or parsed. Callers degrade to an empty registry, they never fail on it.
var ErrRegistryUnavailable = errors.New("registry unavailable")

const cacheKey = "registry_document"

// Loader fetches and validates the scene registry, falling back to the
// sqlite-cached copy of the last good document when the source is down.
type Loader struct {
	url     string
	client  *request.Client
	store   store.Store
	tracker *tracker.Tracker
	logger  *slog.Logger
}

// NewLoader creates a registry loader. store may be nil (no cache fallback).
func NewLoader(url string, client *request.Client, st store.Store, tr *tracker.Tracker) *Loader {
	return &Loader{
		url:     url,
		client:  client,
		store:   st,
		tracker: tr,
		logger:  slog.With("component", "registry_loader"),
	}
}

// Load fetches the registry. Any failure degrades to the cached snapshot,
// then to an empty registry; it never returns an error to the caller
// because an empty viewer is the intended recovery for a missing source.
func (l *Loader) Load(ctx context.Context) *Registry {
	data, err := l.fetch(ctx)
	if err != nil {
		l.tracker.Track(tracker.RegistryFetchFailed)
		l.logger.Warn("Registry fetch failed, degrading", "url", l.url, "error", err)
		return l.fallback(ctx)
	}

	scenes, err := Parse(data)
	if err != nil {
		l.tracker.Track(tracker.RegistryFetchFailed)
		l.logger.Warn("Registry document malformed, degrading", "error", err)
		return l.fallback(ctx)
	}

	l.tracker.Track(tracker.RegistryFetchOK)
	l.logger.Info("Registry loaded", "scenes", len(scenes))

	if l.store != nil {
		if err := l.store.SetCache(ctx, cacheKey, data); err != nil {
			l.logger.Warn("Failed to cache registry document", "error", err)
		}
		if err := l.store.SaveScenes(ctx, scenes); err != nil {
			l.logger.Warn("Failed to persist scene snapshot", "error", err)
		}
	}

	return New(scenes)
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	u := strings.TrimSpace(l.url)
	switch {
	case u == "":
		return nil, ErrRegistryUnavailable
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return l.client.Get(ctx, u)
	case strings.HasPrefix(u, "file://"):
		return os.ReadFile(strings.TrimPrefix(u, "file://"))
	default:
		// Plain path
		return os.ReadFile(u)
	}
}

// fallback serves the cached document if one exists, then the per-scene
// snapshot persisted from the last good load, else an empty registry.
func (l *Loader) fallback(ctx context.Context) *Registry {
	if l.store == nil {
		return New([]model.Scene{})
	}

	if data, ok := l.store.GetCache(ctx, cacheKey); ok {
		if scenes, err := Parse(data); err == nil {
			l.tracker.Track(tracker.RegistryCacheServed)
			l.logger.Info("Serving cached registry snapshot", "scenes", len(scenes))
			return New(scenes)
		}
	}

	// The raw document may be gone (pruned cache) while the validated
	// scene rows survive.
	if scenes, err := l.store.ListScenes(ctx); err == nil && len(scenes) > 0 {
		l.tracker.Track(tracker.RegistryCacheServed)
		l.logger.Info("Serving persisted scene snapshot", "scenes", len(scenes))
		return New(scenes)
	}

	return New([]model.Scene{})
}
