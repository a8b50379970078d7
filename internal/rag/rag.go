// Package rag is the client for the retrieval-index service. Index updates
// are best-effort: the orchestrator logs their failures and moves on.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/events"
)

// Operations is the orchestrator's view of the retrieval-index service.
type Operations interface {
	// IsEnabled reports whether the project opted into retrieval indexing.
	IsEnabled(project *db.Project) bool
	// IsIndexReady reports whether the project's index finished its initial build.
	IsIndexReady(ctx context.Context, project *db.Project) (bool, error)
	// BaseBranch returns the branch whose index is updated incrementally.
	BaseBranch(project *db.Project) string
	// TriggerIncrementalUpdate patches the base branch's index from a diff.
	TriggerIncrementalUpdate(ctx context.Context, project *db.Project, branch, commitHash, rawDiff string, sink events.Sink) error
	// UpdateBranchIndex refreshes a non-base branch's index.
	UpdateBranchIndex(ctx context.Context, project *db.Project, branch string, sink events.Sink) error
}

// HTTPClient talks to the index service over its JSON HTTP API.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient creates an index service client. timeout zero means one
// minute.
func NewHTTPClient(endpoint string, timeout time.Duration) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("rag endpoint is required")
	}
	if timeout == 0 {
		timeout = time.Minute
	}
	return &HTTPClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

var _ Operations = (*HTTPClient)(nil)

// IsEnabled reads the project's persisted opt-in flag.
func (c *HTTPClient) IsEnabled(project *db.Project) bool {
	return project != nil && project.RagEnabled
}

// BaseBranch returns the project's configured base branch, defaulting to
// "main" when unset.
func (c *HTTPClient) BaseBranch(project *db.Project) string {
	if project != nil && project.BaseBranch != "" {
		return project.BaseBranch
	}
	return "main"
}

// IsIndexReady asks the service whether the project's index is built.
func (c *HTTPClient) IsIndexReady(ctx context.Context, project *db.Project) (bool, error) {
	rawURL := fmt.Sprintf("%s/v1/projects/%d/index/status", c.endpoint, project.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("rag index status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("rag index status returned %d", resp.StatusCode)
	}

	var status struct {
		Ready bool `json:"ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("decode rag index status: %w", err)
	}
	return status.Ready, nil
}

// TriggerIncrementalUpdate patches the base branch's index in place from
// the commit's diff.
func (c *HTTPClient) TriggerIncrementalUpdate(ctx context.Context, project *db.Project, branch, commitHash, rawDiff string, sink events.Sink) error {
	sink.Emit(events.StageRag, "incremental index update", map[string]any{
		"branch": branch,
		"commit": commitHash,
	})
	payload := map[string]any{
		"branch":     branch,
		"commitHash": commitHash,
		"diff":       rawDiff,
	}
	return c.post(ctx, fmt.Sprintf("%s/v1/projects/%d/index/incremental", c.endpoint, project.ID), payload)
}

// UpdateBranchIndex refreshes a non-base branch's index from scratch.
func (c *HTTPClient) UpdateBranchIndex(ctx context.Context, project *db.Project, branch string, sink events.Sink) error {
	sink.Emit(events.StageRag, "branch index refresh", map[string]any{
		"branch": branch,
	})
	payload := map[string]any{"branch": branch}
	return c.post(ctx, fmt.Sprintf("%s/v1/projects/%d/index/refresh", c.endpoint, project.ID), payload)
}

func (c *HTTPClient) post(ctx context.Context, rawURL string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rag update: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("rag update returned %d", resp.StatusCode)
	}
	return nil
}
