package bitbucketserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/codecrow/internal/vcs"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("BITBUCKET_SERVER_TOKEN", "bbs-token")
	ops, err := newClient(
		vcs.Binding{Workspace: "PROJ", RepoSlug: "widgets"},
		vcs.Config{BaseURL: srv.URL},
	)
	require.NoError(t, err)
	return ops.(*Client)
}

func TestGetPullRequestDiff(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/1.0/projects/PROJ/repos/widgets/pull-requests/42.diff", r.URL.Path)
		assert.Equal(t, "Bearer bbs-token", r.Header.Get("Authorization"))
		w.Write([]byte("diff --git a/f b/f\n+x\n"))
	}))

	diff, err := client.GetPullRequestDiff(context.Background(), 42)
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git a/f b/f")
}

func TestGetCommitRangeDiff(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/1.0/projects/PROJ/repos/widgets/compare/diff", r.URL.Path)
		assert.Equal(t, "head123", r.URL.Query().Get("from"))
		assert.Equal(t, "base456", r.URL.Query().Get("to"))
		w.Write([]byte("diff --git a/g b/g\n+y\n"))
	}))

	diff, err := client.GetCommitRangeDiff(context.Background(), "base456", "head123")
	require.NoError(t, err)
	assert.Contains(t, diff, "a/g b/g")
}

func TestFindPullRequestForCommit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/1.0/projects/PROJ/repos/widgets/commits/abc/pull-requests", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"values": []map[string]any{{"id": 9}},
		})
	}))

	number, found, err := client.FindPullRequestForCommit(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(9), number)
}

func TestCheckFileExistsInBranch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/api/1.0/projects/PROJ/repos/widgets/browse/src/app.go" {
			assert.Equal(t, "refs/heads/main", r.URL.Query().Get("at"))
			w.Write([]byte(`{"type": "FILE"}`))
			return
		}
		http.NotFound(w, r)
	}))

	exists, err := client.CheckFileExistsInBranch(context.Background(), "main", "src/app.go")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.CheckFileExistsInBranch(context.Background(), "main", "gone.go")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostInlineComment(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/1.0/projects/PROJ/repos/widgets/pull-requests/7/comments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
	}))

	require.NoError(t, client.PostInlineComment(context.Background(), 7, "src/app.go", 30, "nil check missing"))

	anchor := payload["anchor"].(map[string]any)
	assert.Equal(t, "src/app.go", anchor["path"])
	assert.Equal(t, float64(30), anchor["line"])
	assert.Equal(t, "ADDED", anchor["lineType"])
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("BITBUCKET_SERVER_TOKEN", "tok")
	_, err := newClient(vcs.Binding{Workspace: "PROJ", RepoSlug: "r"}, vcs.Config{})
	require.Error(t, err)
}
