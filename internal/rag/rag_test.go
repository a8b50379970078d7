package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/codecrow/internal/db"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(srv.URL, 0)
	require.NoError(t, err)
	return client
}

func TestIsEnabled(t *testing.T) {
	t.Parallel()
	c := &HTTPClient{}
	assert.False(t, c.IsEnabled(nil))
	assert.False(t, c.IsEnabled(&db.Project{}))
	assert.True(t, c.IsEnabled(&db.Project{RagEnabled: true}))
}

func TestBaseBranch(t *testing.T) {
	t.Parallel()
	c := &HTTPClient{}
	assert.Equal(t, "main", c.BaseBranch(nil))
	assert.Equal(t, "main", c.BaseBranch(&db.Project{}))
	assert.Equal(t, "develop", c.BaseBranch(&db.Project{BaseBranch: "develop"}))
}

func TestIsIndexReady(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/7/index/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"ready": true})
	}))

	ready, err := client.IsIndexReady(context.Background(), &db.Project{ID: 7})
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestIsIndexReady_NotFoundMeansNotReady(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	ready, err := client.IsIndexReady(context.Background(), &db.Project{ID: 7})
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestTriggerIncrementalUpdate(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/3/index/incremental", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
	}))

	err := client.TriggerIncrementalUpdate(context.Background(), &db.Project{ID: 3},
		"main", "abc123", "diff --git a/f b/f\n+x\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "main", payload["branch"])
	assert.Equal(t, "abc123", payload["commitHash"])
	assert.Contains(t, payload["diff"], "diff --git")
}

func TestUpdateBranchIndex_Failure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/3/index/refresh", r.URL.Path)
		http.Error(w, "index rebuild in progress", http.StatusConflict)
	}))

	err := client.UpdateBranchIndex(context.Background(), &db.Project{ID: 3}, "feature/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestNewHTTPClient_RequiresEndpoint(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPClient("", 0)
	require.Error(t, err)
}
