package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rostilos/codecrow/internal/errors"
	"github.com/rostilos/codecrow/internal/events"
)

// Client performs one analysis round-trip against the analysis engine.
type Client interface {
	PerformAnalysis(ctx context.Context, req *AnalysisRequest, sink events.Sink) (*AnalysisResponse, error)
}

// HTTPClient talks to the analysis engine over its JSON HTTP API.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	tokenLimit int
	httpClient *http.Client
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	// Endpoint is the engine's analysis URL.
	Endpoint string
	// APIKeyEnvVar names the environment variable holding the API key.
	// Empty means unauthenticated.
	APIKeyEnvVar string
	// TokenLimit caps the request payload; requests estimated above it fail
	// with TOKEN_LIMIT_EXCEEDED rather than being silently truncated.
	TokenLimit int
	// Timeout bounds one analysis round-trip. Zero means 5 minutes.
	Timeout time.Duration
}

// NewHTTPClient creates an analysis engine client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("analysis endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	var apiKey string
	if cfg.APIKeyEnvVar != "" {
		apiKey = os.Getenv(cfg.APIKeyEnvVar)
		if apiKey == "" {
			return nil, fmt.Errorf("%s environment variable is not set (required for analysis engine access)", cfg.APIKeyEnvVar)
		}
	}

	return &HTTPClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     apiKey,
		tokenLimit: cfg.TokenLimit,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// estimateTokens approximates the token cost of a payload. Four bytes per
// token is the usual rough cut for code-heavy text.
func estimateTokens(payload []byte) int {
	return len(payload) / 4
}

// PerformAnalysis sends the request and returns the raw engine reply.
func (c *HTTPClient) PerformAnalysis(ctx context.Context, req *AnalysisRequest, sink events.Sink) (*AnalysisResponse, error) {
	if req.TokenLimit == 0 {
		req.TokenLimit = c.tokenLimit
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	if c.tokenLimit > 0 && estimateTokens(payload) > c.tokenLimit {
		return nil, errors.ErrTokenLimit(c.tokenLimit)
	}

	sink.Emit(events.StageAI, "sending analysis request", map[string]any{
		"candidates": len(req.Candidates),
		"diff_bytes": len(req.Diff),
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.CodeAiFailed, "analysis engine unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.CodeAiFailed, "read analysis response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(errors.CodeAiFailed,
			fmt.Sprintf("analysis engine returned status %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	sink.Emit(events.StageAI, "analysis response received", map[string]any{
		"bytes": len(body),
	})

	return &AnalysisResponse{Raw: body}, nil
}

var _ Client = (*HTTPClient)(nil)
