package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crowerr "github.com/rostilos/codecrow/internal/errors"
	"github.com/rostilos/codecrow/internal/events"
)

func TestPerformAnalysis(t *testing.T) {
	var got AnalysisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"issues": [{"issueId": "1", "isResolved": true}]}`))
	}))
	defer srv.Close()

	t.Setenv("CODECROW_AI_KEY", "secret")
	client, err := NewHTTPClient(HTTPClientConfig{
		Endpoint:     srv.URL,
		APIKeyEnvVar: "CODECROW_AI_KEY",
		TokenLimit:   100_000,
	})
	require.NoError(t, err)

	var stages []events.Stage
	sink := events.Sink(func(e events.Event) { stages = append(stages, e.Stage) })

	resp, err := client.PerformAnalysis(context.Background(), &AnalysisRequest{
		ProjectName: "demo",
		BranchName:  "main",
		CommitHash:  "abc",
		Diff:        "diff --git a/f b/f\n+x\n",
		Candidates:  []IssueCandidate{{IssueID: 1, FilePath: "f"}},
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, "demo", got.ProjectName)
	assert.Equal(t, 100_000, got.TokenLimit, "client fills the ceiling when unset")
	assert.Len(t, resp.Verdicts(nil), 1)
	assert.Equal(t, []events.Stage{events.StageAI, events.StageAI}, stages)
}

func TestPerformAnalysis_TokenLimitExceeded(t *testing.T) {
	t.Parallel()
	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: "http://localhost:1", TokenLimit: 10})
	require.NoError(t, err)

	_, err = client.PerformAnalysis(context.Background(), &AnalysisRequest{
		Diff: "diff --git a/big b/big\n+ a very large diff body that blows the tiny ceiling\n",
	}, nil)
	require.Error(t, err)
	crowErr := crowerr.AsCrowError(err)
	require.NotNil(t, crowErr)
	assert.Equal(t, crowerr.CodeTokenLimit, crowErr.Code)
}

func TestPerformAnalysis_EngineError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.PerformAnalysis(context.Background(), &AnalysisRequest{Diff: "x"}, nil)
	require.Error(t, err)
	crowErr := crowerr.AsCrowError(err)
	require.NotNil(t, crowErr)
	assert.Equal(t, crowerr.CodeAiFailed, crowErr.Code)
}

func TestNewHTTPClient_Validation(t *testing.T) {
	_, err := NewHTTPClient(HTTPClientConfig{})
	require.Error(t, err)

	t.Setenv("CODECROW_MISSING_KEY", "")
	_, err = NewHTTPClient(HTTPClientConfig{Endpoint: "http://x", APIKeyEnvVar: "CODECROW_MISSING_KEY"})
	require.Error(t, err)
}
