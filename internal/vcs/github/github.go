// Package github implements vcs.Operations and vcs.Reporter on top of the
// go-github client.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/rostilos/codecrow/internal/vcs"
)

// Compile-time interface checks.
var (
	_ vcs.Operations = (*Client)(nil)
	_ vcs.Reporter   = (*Client)(nil)
)

func init() {
	vcs.RegisterProvider(vcs.ProviderGitHub, newClient)
}

// Client talks to one GitHub repository.
type Client struct {
	gh    *gogithub.Client
	owner string
	repo  string
}

func newClient(binding vcs.Binding, cfg vcs.Config) (vcs.Operations, error) {
	token, err := resolveToken(cfg, "GITHUB_TOKEN")
	if err != nil {
		return nil, err
	}
	if binding.Workspace == "" || binding.RepoSlug == "" {
		return nil, fmt.Errorf("github provider requires workspace and repo slug")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &oauth2Transport{token: token},
	}

	client := gogithub.NewClient(httpClient)

	// GitHub Enterprise: override base URL.
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, parseErr)
		}
	}

	return &Client{
		gh:    client,
		owner: binding.Workspace,
		repo:  binding.RepoSlug,
	}, nil
}

// oauth2Transport adds an Authorization header to every request.
type oauth2Transport struct {
	token string
	base  http.RoundTripper
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// GetCommitRangeDiff returns the unified diff between two commits.
func (c *Client) GetCommitRangeDiff(ctx context.Context, baseSha, headSha string) (string, error) {
	diff, _, err := c.gh.Repositories.CompareCommitsRaw(ctx, c.owner, c.repo, baseSha, headSha,
		gogithub.RawOptions{Type: gogithub.Diff})
	if err != nil {
		return "", fmt.Errorf("compare %s..%s: %w", baseSha, headSha, err)
	}
	return diff, nil
}

// GetPullRequestDiff returns the unified diff of a pull request.
func (c *Client) GetPullRequestDiff(ctx context.Context, prNumber int64) (string, error) {
	diff, _, err := c.gh.PullRequests.GetRaw(ctx, c.owner, c.repo, int(prNumber),
		gogithub.RawOptions{Type: gogithub.Diff})
	if err != nil {
		return "", fmt.Errorf("get PR %d diff: %w", prNumber, err)
	}
	return diff, nil
}

// GetCommitDiff returns the unified diff introduced by one commit.
func (c *Client) GetCommitDiff(ctx context.Context, sha string) (string, error) {
	diff, _, err := c.gh.Repositories.GetCommitRaw(ctx, c.owner, c.repo, sha,
		gogithub.RawOptions{Type: gogithub.Diff})
	if err != nil {
		return "", fmt.Errorf("get commit %s diff: %w", sha, err)
	}
	return diff, nil
}

// FindPullRequestForCommit returns the number of a pull request containing
// the commit. When several match, the first (most recently updated) wins.
func (c *Client) FindPullRequestForCommit(ctx context.Context, sha string) (int64, bool, error) {
	prs, _, err := c.gh.PullRequests.ListPullRequestsWithCommit(ctx, c.owner, c.repo, sha,
		&gogithub.ListOptions{PerPage: 1})
	if err != nil {
		return 0, false, fmt.Errorf("list PRs for commit %s: %w", sha, err)
	}
	if len(prs) == 0 {
		return 0, false, nil
	}
	return int64(prs[0].GetNumber()), true, nil
}

// CheckFileExistsInBranch reports whether path exists on branch. A 404 from
// the contents API means the file is gone; anything else is an I/O failure.
func (c *Client) CheckFileExistsInBranch(ctx context.Context, branch, path string) (bool, error) {
	_, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&gogithub.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("check %s on %s: %w", path, branch, err)
	}
	return true, nil
}

// PostSummary posts a review summary as an issue comment on the PR.
func (c *Client) PostSummary(ctx context.Context, prNumber int64, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, int(prNumber),
		&gogithub.IssueComment{Body: gogithub.Ptr(body)})
	if err != nil {
		return fmt.Errorf("post summary on PR %d: %w", prNumber, err)
	}
	return nil
}

// PostInlineComment posts a review comment anchored to a file and line on
// the PR's head commit.
func (c *Client) PostInlineComment(ctx context.Context, prNumber int64, path string, line int, body string) error {
	pr, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, int(prNumber))
	if err != nil {
		return fmt.Errorf("get PR %d: %w", prNumber, err)
	}
	comment := &gogithub.PullRequestComment{
		Body:     gogithub.Ptr(body),
		Path:     gogithub.Ptr(path),
		Line:     gogithub.Ptr(line),
		Side:     gogithub.Ptr("RIGHT"),
		CommitID: gogithub.Ptr(pr.GetHead().GetSHA()),
	}
	_, _, err = c.gh.PullRequests.CreateComment(ctx, c.owner, c.repo, int(prNumber), comment)
	if err != nil {
		return fmt.Errorf("post inline comment on PR %d: %w", prNumber, err)
	}
	return nil
}
