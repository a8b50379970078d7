package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rostilos/codecrow/internal/ai"
	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/events"
	"github.com/rostilos/codecrow/internal/vcs"
)

// reconciler maps persisted issues onto the current branch state and asks
// the analysis engine for fresh verdicts. It never creates new issues and
// never un-resolves an already-resolved BranchIssue.
type reconciler struct {
	store   *db.Store
	builder vcs.AiRequestBuilder
	ai      ai.Client
	logger  *slog.Logger
}

// gatherCandidates collects the still-open BranchIssues across the changed
// files whose underlying issue was first recorded on this branch,
// deduplicated by issue id.
func (r *reconciler) gatherCandidates(ctx context.Context, branch *db.Branch, changedFiles []string) ([]ai.IssueCandidate, error) {
	seen := map[int64]bool{}
	var candidates []ai.IssueCandidate

	for _, path := range changedFiles {
		open, err := r.store.ListOpenBranchIssuesForFile(ctx, branch.ID, path)
		if err != nil {
			return nil, fmt.Errorf("list open branch issues for %s: %w", path, err)
		}
		for _, bi := range open {
			if seen[bi.IssueID] {
				continue
			}
			issue, err := r.store.GetIssue(ctx, bi.IssueID)
			if err != nil {
				return nil, fmt.Errorf("load issue %d: %w", bi.IssueID, err)
			}
			if issue == nil || issue.BranchName != branch.Name {
				continue
			}
			seen[bi.IssueID] = true
			candidates = append(candidates, ai.IssueCandidate{
				IssueID:     issue.ID,
				FilePath:    issue.FilePath,
				LineNumber:  issue.LineNumber,
				Severity:    string(issue.Severity),
				Category:    issue.Category,
				Description: issue.Description,
			})
		}
	}
	return candidates, nil
}

// reconcile runs the single analysis call and applies the returned verdicts.
// With no candidates the engine is never contacted.
func (r *reconciler) reconcile(ctx context.Context, project *db.Project, branch *db.Branch, req ProcessRequest, changedFiles []string, rawDiff string, sink events.Sink) error {
	candidates, err := r.gatherCandidates(ctx, branch, changedFiles)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		r.logger.Debug("no reconciliation candidates", "branch", branch.Name)
		return nil
	}

	aiReq, err := r.builder.BuildAnalysisRequest(project, branch.Name, req.CommitHash,
		req.SourcePullRequestNumber, candidates, rawDiff)
	if err != nil {
		return fmt.Errorf("build analysis request: %w", err)
	}

	resp, err := r.ai.PerformAnalysis(ctx, aiReq, sink)
	if err != nil {
		return fmt.Errorf("perform analysis: %w", err)
	}

	r.applyVerdicts(ctx, branch, req, resp.Verdicts(r.logger))
	return nil
}

// applyVerdicts marks BranchIssues resolved per the engine's verdicts.
// Unknown ids and already-resolved associations are logged and skipped;
// verdict application never fails the pipeline.
func (r *reconciler) applyVerdicts(ctx context.Context, branch *db.Branch, req ProcessRequest, verdicts []ai.Verdict) {
	for _, v := range verdicts {
		if !v.IsResolved {
			continue
		}
		issueID, err := strconv.ParseInt(v.IssueID, 10, 64)
		if err != nil {
			r.logger.Warn("verdict carries a non-numeric issue id", "issue_id", v.IssueID)
			continue
		}

		transitioned, err := r.store.ResolveBranchIssue(ctx, branch.ID, issueID,
			req.CommitHash, req.SourcePullRequestNumber, v.Reason)
		if err != nil {
			r.logger.Warn("resolve branch issue failed", "issue_id", issueID, "error", err)
			continue
		}
		if !transitioned {
			r.logger.Debug("verdict ignored: unknown or already-resolved issue", "issue_id", issueID)
			continue
		}

		if err := r.store.ResolveIssue(ctx, issueID, req.CommitHash, req.SourcePullRequestNumber, v.Reason); err != nil {
			r.logger.Warn("mark issue resolved failed", "issue_id", issueID, "error", err)
		}
		r.logger.Info("issue resolved", "issue_id", issueID, "branch", branch.Name, "reason", v.Reason)
	}
}
