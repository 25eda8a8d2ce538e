package store

import (
	"context"

	"globerun/pkg/model"
)

// CacheStore handles generic key-value caching (last good registry document,
// fetched assets metadata).
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// SceneStore persists the validated registry so the viewer can start from
// the last known scene set when the registry endpoint is unreachable.
type SceneStore interface {
	SaveScenes(ctx context.Context, scenes []model.Scene) error
	ListScenes(ctx context.Context) ([]model.Scene, error)
}

// StateStore handles persistent application state (last camera pose,
// last active scene).
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// Store is the combined persistence interface the application wires up.
type Store interface {
	CacheStore
	SceneStore
	StateStore
}
