package vcs

import (
	"fmt"

	"github.com/rostilos/codecrow/internal/ai"
	"github.com/rostilos/codecrow/internal/db"
)

// RequestBuilder is the default AiRequestBuilder. The analysis engine takes
// the same request shape for every provider, so one builder covers all four.
type RequestBuilder struct {
	// TokenLimit is copied onto every request as the engine's ceiling.
	TokenLimit int
}

var _ AiRequestBuilder = (*RequestBuilder)(nil)

// BuildAnalysisRequest assembles the engine request from the project
// binding, the run coordinates, and the candidate issues.
func (b *RequestBuilder) BuildAnalysisRequest(project *db.Project, branch, commitHash string, prNumber *int64,
	candidates []ai.IssueCandidate, rawDiff string) (*ai.AnalysisRequest, error) {
	if project == nil {
		return nil, fmt.Errorf("build analysis request: project is nil")
	}
	return &ai.AnalysisRequest{
		ProjectName: project.Name,
		Workspace:   project.WorkspaceSlug,
		RepoSlug:    project.RepoSlug,
		BranchName:  branch,
		CommitHash:  commitHash,
		PrNumber:    prNumber,
		Diff:        rawDiff,
		Candidates:  candidates,
		TokenLimit:  b.TokenLimit,
	}, nil
}
