// Package vcs provides a unified interface over the supported hosting
// providers (Bitbucket Cloud, GitHub, GitLab, Bitbucket Server).
package vcs

import (
	"context"
	"time"

	"github.com/rostilos/codecrow/internal/ai"
	"github.com/rostilos/codecrow/internal/db"
)

// ProviderType identifies which hosting provider a project is bound to.
type ProviderType string

const (
	ProviderBitbucketCloud  ProviderType = "bitbucket_cloud"
	ProviderGitHub          ProviderType = "github"
	ProviderGitLab          ProviderType = "gitlab"
	ProviderBitbucketServer ProviderType = "bitbucket_server"
)

// Binding is the per-project repository coordinate a provider client is
// constructed around.
type Binding struct {
	// Workspace is the owner / group / workspace / project-key segment.
	Workspace string
	// RepoSlug is the repository name segment.
	RepoSlug string
}

// Config holds provider connection settings.
type Config struct {
	// BaseURL for self-hosted instances. Empty means the vendor cloud.
	BaseURL string
	// TokenEnvVar overrides the provider's default token environment
	// variable name.
	TokenEnvVar string
	// Timeout bounds one API round-trip. Zero means 30 seconds.
	Timeout time.Duration
}

// Operations is the orchestrator's sole view of a hosting provider.
// Implementations capture the workspace/repo binding at construction.
type Operations interface {
	// GetCommitRangeDiff returns the unified diff between two commits.
	GetCommitRangeDiff(ctx context.Context, baseSha, headSha string) (string, error)
	// GetPullRequestDiff returns the unified diff of a pull request.
	GetPullRequestDiff(ctx context.Context, prNumber int64) (string, error)
	// GetCommitDiff returns the unified diff introduced by one commit.
	GetCommitDiff(ctx context.Context, sha string) (string, error)
	// FindPullRequestForCommit returns the number of a pull request
	// containing the commit, or false when none is associated.
	FindPullRequestForCommit(ctx context.Context, sha string) (int64, bool, error)
	// CheckFileExistsInBranch reports whether path exists on branch.
	CheckFileExistsInBranch(ctx context.Context, branch, path string) (bool, error)
}

// Reporter posts analysis results back to a pull request. Implemented by
// providers that share a client with their Operations; used by the CLI
// after an accepted run, never by the orchestrator.
type Reporter interface {
	PostSummary(ctx context.Context, prNumber int64, body string) error
	PostInlineComment(ctx context.Context, prNumber int64, path string, line int, body string) error
}

// AiRequestBuilder assembles the analysis engine request for a run.
type AiRequestBuilder interface {
	BuildAnalysisRequest(project *db.Project, branch, commitHash string, prNumber *int64,
		candidates []ai.IssueCandidate, rawDiff string) (*ai.AnalysisRequest, error)
}
