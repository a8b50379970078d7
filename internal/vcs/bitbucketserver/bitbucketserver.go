// Package bitbucketserver implements vcs.Operations and vcs.Reporter
// against the Bitbucket Server (Data Center) 1.0 REST API.
package bitbucketserver

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

// Compile-time interface checks.
var (
	_ vcs.Operations = (*Client)(nil)
	_ vcs.Reporter   = (*Client)(nil)
)

func init() {
	vcs.RegisterProvider(vcs.ProviderBitbucketServer, newClient)
}

// Client talks to one Bitbucket Server repository.
type Client struct {
	baseURL    string
	projectKey string
	repoSlug   string
	httpClient *http.Client
}

func newClient(binding vcs.Binding, cfg vcs.Config) (vcs.Operations, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("bitbucket server provider requires a base URL")
	}
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}
	if binding.Workspace == "" || binding.RepoSlug == "" {
		return nil, fmt.Errorf("bitbucket server provider requires project key and repo slug")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		projectKey: binding.Workspace,
		repoSlug:   binding.RepoSlug,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{token: token},
		},
	}, nil
}

// resolveToken gets the Bitbucket Server access token from the environment.
func resolveToken(cfg vcs.Config) (string, error) {
	envVar := "BITBUCKET_SERVER_TOKEN"
	if cfg.TokenEnvVar != "" {
		envVar = cfg.TokenEnvVar
	}
	token := os.Getenv(envVar)
	if token == "" {
		return "", fmt.Errorf("%s environment variable is not set (required for Bitbucket Server API access)", envVar)
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
func (c *Client) repoURL(suffix string) string {
	return fmt.Sprintf("%s/rest/api/1.0/projects/%s/repos/%s%s",
		c.baseURL, c.projectKey, c.repoSlug, suffix)
}

// getRaw fetches a URL requesting a plain-text body.
func (c *Client) getRaw(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")

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
		return "", fmt.Errorf("bitbucket server returned status %d for %s", resp.StatusCode, rawURL)
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
		return resp.StatusCode, fmt.Errorf("bitbucket server returned status %d for %s", resp.StatusCode, rawURL)
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
		return fmt.Errorf("bitbucket server returned status %d for %s", resp.StatusCode, rawURL)
	}
	return nil
}

// GetCommitRangeDiff returns the unified diff between two commits.
func (c *Client) GetCommitRangeDiff(ctx context.Context, baseSha, headSha string) (string, error) {
	rawURL := c.repoURL("/compare/diff") + "?" + url.Values{
		"from": {headSha},
		"to":   {baseSha},
	}.Encode()
	diff, err := c.getRaw(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("compare %s..%s: %w", baseSha, headSha, err)
	}
	return diff, nil
}

// GetPullRequestDiff returns the unified diff of a pull request.
func (c *Client) GetPullRequestDiff(ctx context.Context, prNumber int64) (string, error) {
	diff, err := c.getRaw(ctx, c.repoURL(fmt.Sprintf("/pull-requests/%d.diff", prNumber)))
	if err != nil {
		return "", fmt.Errorf("get PR %d diff: %w", prNumber, err)
	}
	return diff, nil
}

// GetCommitDiff returns the unified diff introduced by one commit.
func (c *Client) GetCommitDiff(ctx context.Context, sha string) (string, error) {
	diff, err := c.getRaw(ctx, c.repoURL(fmt.Sprintf("/commits/%s/diff", sha)))
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
	_, err := c.getJSON(ctx, c.repoURL(fmt.Sprintf("/commits/%s/pull-requests", sha)), &page)
	if err != nil {
		return 0, false, fmt.Errorf("list PRs for commit %s: %w", sha, err)
	}
	if len(page.Values) == 0 {
		return 0, false, nil
	}
	return page.Values[0].ID, true, nil
}

// CheckFileExistsInBranch reports whether path exists on branch.
func (c *Client) CheckFileExistsInBranch(ctx context.Context, branch, path string) (bool, error) {
	rawURL := c.repoURL("/browse/"+path) + "?" + url.Values{
		"at":   {"refs/heads/" + branch},
		"type": {"true"},
	}.Encode()
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
	payload := map[string]any{"text": body}
	if err := c.postJSON(ctx, c.repoURL(fmt.Sprintf("/pull-requests/%d/comments", prNumber)), payload); err != nil {
		return fmt.Errorf("post summary on PR %d: %w", prNumber, err)
	}
	return nil
}

// PostInlineComment posts a comment anchored to an added line in the PR's
// effective diff.
func (c *Client) PostInlineComment(ctx context.Context, prNumber int64, path string, line int, body string) error {
	payload := map[string]any{
		"text": body,
		"anchor": map[string]any{
			"path":     path,
			"line":     line,
			"lineType": "ADDED",
			"fileType": "TO",
			"diffType": "EFFECTIVE",
		},
	}
	if err := c.postJSON(ctx, c.repoURL(fmt.Sprintf("/pull-requests/%d/comments", prNumber)), payload); err != nil {
		return fmt.Errorf("post inline comment on PR %d: %w", prNumber, err)
	}
	return nil
}
