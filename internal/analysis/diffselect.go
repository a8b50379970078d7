package analysis

import (
	"context"
	"log/slog"

	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/errors"
	"github.com/rostilos/codecrow/internal/vcs"
)

// selectDiff obtains the raw unified diff for a run, trying three tiers in
// order and returning on the first success:
//
//  1. delta diff between the branch's last successful commit and the
//     requested commit (smallest, most relevant payload),
//  2. pull-request diff, discovering the PR by commit when the request
//     carries no number (frames the change in review terms),
//  3. single-commit diff (the universal fallback).
//
// Tiers 1 and 2 tolerate remote failures and fall through; a tier-3 failure
// surfaces to the caller.
func selectDiff(ctx context.Context, ops vcs.Operations, branch *db.Branch, req ProcessRequest, logger *slog.Logger) (string, error) {
	if branch != nil && branch.LastSuccessfulCommitHash != nil {
		diff, err := ops.GetCommitRangeDiff(ctx, *branch.LastSuccessfulCommitHash, req.CommitHash)
		if err == nil {
			return diff, nil
		}
		logger.Warn("delta diff unavailable, falling back",
			"base", *branch.LastSuccessfulCommitHash, "head", req.CommitHash, "error", err)
	}

	if prNumber, ok := resolvePrNumber(ctx, ops, req, logger); ok {
		diff, err := ops.GetPullRequestDiff(ctx, prNumber)
		if err == nil {
			return diff, nil
		}
		logger.Warn("pull request diff unavailable, falling back",
			"pr", prNumber, "error", err)
	}

	diff, err := ops.GetCommitDiff(ctx, req.CommitHash)
	if err != nil {
		return "", errors.ErrDiffUnavailable(req.CommitHash).WithCause(err)
	}
	return diff, nil
}

// resolvePrNumber returns the request's PR number, looking it up by commit
// when absent. Lookup failures just disable tier 2.
func resolvePrNumber(ctx context.Context, ops vcs.Operations, req ProcessRequest, logger *slog.Logger) (int64, bool) {
	if req.SourcePullRequestNumber != nil {
		return *req.SourcePullRequestNumber, true
	}
	prNumber, found, err := ops.FindPullRequestForCommit(ctx, req.CommitHash)
	if err != nil {
		logger.Warn("pull request lookup failed", "commit", req.CommitHash, "error", err)
		return 0, false
	}
	return prNumber, found
}
