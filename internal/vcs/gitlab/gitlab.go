// Package gitlab implements vcs.Operations and vcs.Reporter on top of the
// GitLab client-go library.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/rostilos/codecrow/internal/vcs"
)

// Compile-time interface checks.
var (
	_ vcs.Operations = (*Client)(nil)
	_ vcs.Reporter   = (*Client)(nil)
)

func init() {
	vcs.RegisterProvider(vcs.ProviderGitLab, newClient)
}

// Client talks to one GitLab project.
type Client struct {
	gl *gogitlab.Client
	// projectID is the full path "group/repo" used as the project identifier.
	projectID string
}

func newClient(binding vcs.Binding, cfg vcs.Config) (vcs.Operations, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}
	if binding.Workspace == "" || binding.RepoSlug == "" {
		return nil, fmt.Errorf("gitlab provider requires workspace and repo slug")
	}

	var client *gogitlab.Client
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		client, err = gogitlab.NewClient(token, gogitlab.WithBaseURL(baseURL+"/api/v4"))
	} else {
		client, err = gogitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &Client{
		gl:        client,
		projectID: binding.Workspace + "/" + binding.RepoSlug,
	}, nil
}

// resolveToken gets the GitLab token from the environment.
func resolveToken(cfg vcs.Config) (string, error) {
	envVar := "GITLAB_TOKEN"
	if cfg.TokenEnvVar != "" {
		envVar = cfg.TokenEnvVar
	}
	token := os.Getenv(envVar)
	if token == "" {
		return "", fmt.Errorf("%s environment variable is not set (required for GitLab API access)", envVar)
	}
	return token, nil
}

// renderDiffs reassembles GitLab's per-file JSON diff entries into one
// unified diff string with "diff --git" headers, which is all the
// changed-file extraction downstream reads.
func renderDiffs(oldNew [][2]string, bodies []string) string {
	var sb strings.Builder
	for i := range bodies {
		oldPath, newPath := oldNew[i][0], oldNew[i][1]
		if oldPath == "" {
			oldPath = newPath
		}
		if newPath == "" {
			newPath = oldPath
		}
		fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", oldPath, newPath)
		body := bodies[i]
		sb.WriteString(body)
		if body != "" && !strings.HasSuffix(body, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// GetCommitRangeDiff returns the unified diff between two commits.
func (c *Client) GetCommitRangeDiff(ctx context.Context, baseSha, headSha string) (string, error) {
	compare, _, err := c.gl.Repositories.Compare(c.projectID, &gogitlab.CompareOptions{
		From: gogitlab.Ptr(baseSha),
		To:   gogitlab.Ptr(headSha),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("compare %s..%s: %w", baseSha, headSha, err)
	}

	paths := make([][2]string, len(compare.Diffs))
	bodies := make([]string, len(compare.Diffs))
	for i, d := range compare.Diffs {
		paths[i] = [2]string{d.OldPath, d.NewPath}
		bodies[i] = d.Diff
	}
	return renderDiffs(paths, bodies), nil
}

// GetPullRequestDiff returns the unified diff of a merge request.
func (c *Client) GetPullRequestDiff(ctx context.Context, prNumber int64) (string, error) {
	var paths [][2]string
	var bodies []string

	opt := &gogitlab.ListMergeRequestDiffsOptions{
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}
	for {
		diffs, resp, err := c.gl.MergeRequests.ListMergeRequestDiffs(c.projectID, prNumber, opt,
			gogitlab.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("get MR %d diffs: %w", prNumber, err)
		}
		for _, d := range diffs {
			paths = append(paths, [2]string{d.OldPath, d.NewPath})
			bodies = append(bodies, d.Diff)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return renderDiffs(paths, bodies), nil
}

// GetCommitDiff returns the unified diff introduced by one commit.
func (c *Client) GetCommitDiff(ctx context.Context, sha string) (string, error) {
	diffs, _, err := c.gl.Commits.GetCommitDiff(c.projectID, sha, &gogitlab.GetCommitDiffOptions{
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("get commit %s diff: %w", sha, err)
	}

	paths := make([][2]string, len(diffs))
	bodies := make([]string, len(diffs))
	for i, d := range diffs {
		paths[i] = [2]string{d.OldPath, d.NewPath}
		bodies[i] = d.Diff
	}
	return renderDiffs(paths, bodies), nil
}

// FindPullRequestForCommit returns the IID of a merge request containing
// the commit, or false when none is associated.
func (c *Client) FindPullRequestForCommit(ctx context.Context, sha string) (int64, bool, error) {
	mrs, _, err := c.gl.Commits.ListMergeRequestsByCommit(c.projectID, sha, gogitlab.WithContext(ctx))
	if err != nil {
		return 0, false, fmt.Errorf("list MRs for commit %s: %w", sha, err)
	}
	if len(mrs) == 0 {
		return 0, false, nil
	}
	return mrs[0].IID, true, nil
}

// CheckFileExistsInBranch reports whether path exists on branch.
func (c *Client) CheckFileExistsInBranch(ctx context.Context, branch, path string) (bool, error) {
	_, resp, err := c.gl.RepositoryFiles.GetFileMetaData(c.projectID, path, &gogitlab.GetFileMetaDataOptions{
		Ref: gogitlab.Ptr(branch),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("check %s on %s: %w", path, branch, err)
	}
	return true, nil
}

// PostSummary posts a review summary as a note on the merge request.
func (c *Client) PostSummary(ctx context.Context, prNumber int64, body string) error {
	_, _, err := c.gl.Notes.CreateMergeRequestNote(c.projectID, prNumber,
		&gogitlab.CreateMergeRequestNoteOptions{Body: gogitlab.Ptr(body)},
		gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post summary on MR %d: %w", prNumber, err)
	}
	return nil
}

// PostInlineComment opens a discussion anchored to a file and line on the
// merge request's current diff refs.
func (c *Client) PostInlineComment(ctx context.Context, prNumber int64, path string, line int, body string) error {
	mr, _, err := c.gl.MergeRequests.GetMergeRequest(c.projectID, prNumber, nil,
		gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("get MR %d: %w", prNumber, err)
	}

	_, _, err = c.gl.Discussions.CreateMergeRequestDiscussion(c.projectID, prNumber,
		&gogitlab.CreateMergeRequestDiscussionOptions{
			Body: gogitlab.Ptr(body),
			Position: &gogitlab.PositionOptions{
				PositionType: gogitlab.Ptr("text"),
				BaseSHA:      gogitlab.Ptr(mr.DiffRefs.BaseSha),
				StartSHA:     gogitlab.Ptr(mr.DiffRefs.StartSha),
				HeadSHA:      gogitlab.Ptr(mr.DiffRefs.HeadSha),
				NewPath:      gogitlab.Ptr(path),
				NewLine:      gogitlab.Ptr(int64(line)),
			},
		}, gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post inline comment on MR %d: %w", prNumber, err)
	}
	return nil
}
