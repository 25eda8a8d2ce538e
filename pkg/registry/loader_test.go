package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globerun/pkg/db"
	"globerun/pkg/model"
	"globerun/pkg/request"
	"globerun/pkg/store"
	"globerun/pkg/tracker"
)

const testDoc = `{"worlds": [{"id": "0", "file": "a.ply", "center": {"lat": 40.7281, "lng": -73.9865}, "heading": 0}]}`

func testClient() *request.Client {
	return request.New(request.ClientConfig{Retries: 0, Timeout: 2 * time.Second, BaseDelay: time.Millisecond})
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func TestLoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDoc)) //nolint:errcheck
	}))
	defer srv.Close()

	tr := tracker.New()
	reg := NewLoader(srv.URL, testClient(), testStore(t), tr).Load(context.Background())

	require.Equal(t, 1, reg.Len())
	assert.Equal(t, int64(1), tr.Get(tracker.RegistryFetchOK))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds.json")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))

	reg := NewLoader(path, testClient(), nil, tracker.New()).Load(context.Background())
	assert.Equal(t, 1, reg.Len())
}

func TestLoadDegradesToEmpty(t *testing.T) {
	tr := tracker.New()
	reg := NewLoader("/nonexistent/worlds.json", testClient(), nil, tr).Load(context.Background())

	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, int64(1), tr.Get(tracker.RegistryFetchFailed))
}

func TestLoadServesCachedSnapshotWhenSourceDies(t *testing.T) {
	st := testStore(t)
	tr := tracker.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDoc)) //nolint:errcheck
	}))

	// First load succeeds and caches.
	reg := NewLoader(srv.URL, testClient(), st, tr).Load(context.Background())
	require.Equal(t, 1, reg.Len())
	srv.Close()

	// Second load hits the dead server and falls back to the cache.
	reg = NewLoader(srv.URL, testClient(), st, tr).Load(context.Background())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, int64(1), tr.Get(tracker.RegistryCacheServed))
}

func TestLoadServesPersistedScenesWithoutCachedDocument(t *testing.T) {
	st := testStore(t)
	tr := tracker.New()

	// Scene rows from an earlier run survive, but the raw registry
	// document was never cached (or has been pruned).
	scenes := []model.Scene{{
		ID:       "survivor",
		AssetRef: "a.ply",
		Center:   model.GeoPoint{Lat: 40.7281, Lng: -73.9865},
	}}
	require.NoError(t, st.SaveScenes(context.Background(), scenes))

	reg := NewLoader("http://127.0.0.1:1/worlds.json", testClient(), st, tr).Load(context.Background())

	require.Equal(t, 1, reg.Len())
	s, _ := reg.Scene(0)
	assert.Equal(t, "survivor", s.ID)
	assert.Equal(t, int64(1), tr.Get(tracker.RegistryCacheServed))
}

func TestLoadDegradesOnMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>503</html>`)) //nolint:errcheck
	}))
	defer srv.Close()

	reg := NewLoader(srv.URL, testClient(), nil, tracker.New()).Load(context.Background())
	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Len())
}
