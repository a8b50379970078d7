// Package bitbucket implements vcs.Operations and vcs.Reporter against the
// Bitbucket Cloud 2.0 REST API.
package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rostilos/codecrow/internal/vcs"
)

const defaultBaseURL = "https://api.bitbucket.org/2.0"

// Compile-time interface checks.
var (
	_ vcs.Operations = (*Client)(nil)
	_ vcs.Reporter   = (*Client)(nil)
)

func init() {
	vcs.RegisterProvider(vcs.ProviderBitbucketCloud, newClient)
}

// Client talks to one Bitbucket Cloud repository.
type Client struct {
	baseURL    string
	workspace  string
	repoSlug   string
	httpClient *http.Client
}

func newClient(binding vcs.Binding, cfg vcs.Config) (vcs.Operations, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}
	if binding.Workspace == "" || binding.RepoSlug == "" {
		return nil, fmt.Errorf("bitbucket provider requires workspace and repo slug")
	}

	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:   baseURL,
		workspace: binding.Workspace,
		repoSlug:  binding.RepoSlug,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{token: token},
		},
	}, nil
}

// resolveToken gets the Bitbucket access token from the environment.
func resolveToken(cfg vcs.Config) (string, error) {
	envVar := "BITBUCKET_TOKEN"
	if cfg.TokenEnvVar != "" {
		envVar = cfg.TokenEnvVar
	}
	token := os.Getenv(envVar)
	if token == "" {
		return "", fmt.Errorf("%s environment variable is not set (required for Bitbucket API access)", envVar)
	}
	return token, nil
}

// bearerTransport adds an Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// repoURL builds an API URL under this repository.
func (c *Client) repoURL(parts ...string) string {
	segments := append([]string{c.baseURL, "repositories", c.workspace, c.repoSlug}, parts...)
	return strings.Join(segments, "/")
}

// getRaw fetches a URL and returns the response body as a string.
func (c *Client) getRaw(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bitbucket returned status %d for %s", resp.StatusCode, rawURL)
	}
	return string(body), nil
}

// getJSON fetches a URL and decodes the response, returning the status code.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("bitbucket returned status %d for %s", resp.StatusCode, rawURL)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response from %s: %w", rawURL, err)
		}
	}
	return resp.StatusCode, nil
}

// postJSON sends a JSON payload.
func (c *Client) postJSON(ctx context.Context, rawURL string, payload any) error {
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
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("bitbucket returned status %d for %s", resp.StatusCode, rawURL)
	}
	return nil
}

// GetCommitRangeDiff returns the unified diff between two commits. The diff
// spec is "source..destination", so the head commit comes first.
func (c *Client) GetCommitRangeDiff(ctx context.Context, baseSha, headSha string) (string, error) {
	diff, err := c.getRaw(ctx, c.repoURL("diff", headSha+".."+baseSha))
	if err != nil {
		return "", fmt.Errorf("compare %s..%s: %w", baseSha, headSha, err)
	}
	return diff, nil
}

// GetPullRequestDiff returns the unified diff of a pull request.
func (c *Client) GetPullRequestDiff(ctx context.Context, prNumber int64) (string, error) {
	diff, err := c.getRaw(ctx, c.repoURL("pullrequests", fmt.Sprint(prNumber), "diff"))
	if err != nil {
		return "", fmt.Errorf("get PR %d diff: %w", prNumber, err)
	}
	return diff, nil
}

// GetCommitDiff returns the unified diff introduced by one commit.
func (c *Client) GetCommitDiff(ctx context.Context, sha string) (string, error) {
	diff, err := c.getRaw(ctx, c.repoURL("diff", sha))
	if err != nil {
		return "", fmt.Errorf("get commit %s diff: %w", sha, err)
	}
	return diff, nil
}

// FindPullRequestForCommit returns the number of a pull request containing
// the commit, or false when none is associated.
func (c *Client) FindPullRequestForCommit(ctx context.Context, sha string) (int64, bool, error) {
	var page struct {
		Values []struct {
			ID int64 `json:"id"`
		} `json:"values"`
	}
	_, err := c.getJSON(ctx, c.repoURL("commit", sha, "pullrequests"), &page)
	if err != nil {
		return 0, false, fmt.Errorf("list PRs for commit %s: %w", sha, err)
	}
	if len(page.Values) == 0 {
		return 0, false, nil
	}
	return page.Values[0].ID, true, nil
}

// CheckFileExistsInBranch reports whether path exists on branch. A 404 from
// the src endpoint means the file is gone; anything else is an I/O failure.
func (c *Client) CheckFileExistsInBranch(ctx context.Context, branch, path string) (bool, error) {
	rawURL := c.repoURL("src", url.PathEscape(branch), path) + "?format=meta"
	status, err := c.getJSON(ctx, rawURL, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("check %s on %s: %w", path, branch, err)
	}
	return true, nil
}

// PostSummary posts a review summary comment on the pull request.
func (c *Client) PostSummary(ctx context.Context, prNumber int64, body string) error {
	payload := map[string]any{
		"content": map[string]any{"raw": body},
	}
	if err := c.postJSON(ctx, c.repoURL("pullrequests", fmt.Sprint(prNumber), "comments"), payload); err != nil {
		return fmt.Errorf("post summary on PR %d: %w", prNumber, err)
	}
	return nil
}

// PostInlineComment posts a comment anchored to a file and line.
func (c *Client) PostInlineComment(ctx context.Context, prNumber int64, path string, line int, body string) error {
	payload := map[string]any{
		"content": map[string]any{"raw": body},
		"inline":  map[string]any{"path": path, "to": line},
	}
	if err := c.postJSON(ctx, c.repoURL("pullrequests", fmt.Sprint(prNumber), "comments"), payload); err != nil {
		return fmt.Errorf("post inline comment on PR %d: %w", prNumber, err)
	}
	return nil
}
