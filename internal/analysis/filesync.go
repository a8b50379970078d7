package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/vcs"
)

// syncFileState brings BranchFile and BranchIssue records in line with the
// changed-file set. For each path it checks existence on the branch via the
// provider, maps persisted issues onto the branch for files that still
// exist, and removes BranchFile records for files that are gone. It always
// runs before reconciliation so the reconciler sees a complete candidate
// set.
func syncFileState(ctx context.Context, store *db.Store, ops vcs.Operations, branch *db.Branch, changedFiles []string, logger *slog.Logger) error {
	for _, path := range changedFiles {
		exists, err := ops.CheckFileExistsInBranch(ctx, branch.Name, path)
		if err != nil {
			return fmt.Errorf("check %s on %s: %w", path, branch.Name, err)
		}
		if !exists {
			// Deleted files skip all issue-mapping work.
			if err := store.DeleteBranchFile(ctx, branch.ProjectID, branch.Name, path); err != nil {
				return fmt.Errorf("delete branch file %s: %w", path, err)
			}
			logger.Debug("removed branch file record", "path", path)
			continue
		}

		mapped, err := mapIssuesForFile(ctx, store, branch, path)
		if err != nil {
			return err
		}
		if err := upsertBranchFile(ctx, store, branch, path, mapped); err != nil {
			return err
		}
	}
	return nil
}

// mapIssuesForFile ensures a BranchIssue exists for every persisted issue on
// the file that was first recorded on this branch. Existing associations are
// never mutated here. Returns how many issues are mapped.
func mapIssuesForFile(ctx context.Context, store *db.Store, branch *db.Branch, path string) (int, error) {
	issues, err := store.ListIssuesByProjectAndFile(ctx, branch.ProjectID, path)
	if err != nil {
		return 0, fmt.Errorf("list issues for %s: %w", path, err)
	}

	mapped := 0
	for _, issue := range issues {
		// Issues first seen on another branch stay out of this branch's
		// bookkeeping.
		if issue.BranchName != branch.Name {
			continue
		}
		if err := store.EnsureBranchIssue(ctx, branch.ID, issue.ID); err != nil {
			return 0, fmt.Errorf("ensure branch issue %d: %w", issue.ID, err)
		}
		mapped++
	}
	return mapped, nil
}

// refreshFileCounts rewrites each BranchFile's cached issueCount from the
// open associations after reconciliation. Files whose last open issue was
// just resolved lose their record entirely.
func refreshFileCounts(ctx context.Context, store *db.Store, branch *db.Branch, changedFiles []string, logger *slog.Logger) error {
	for _, path := range changedFiles {
		existing, err := store.GetBranchFile(ctx, branch.ProjectID, branch.Name, path)
		if err != nil {
			return fmt.Errorf("get branch file %s: %w", path, err)
		}
		if existing == nil {
			continue
		}

		open, err := store.CountOpenBranchIssuesForFile(ctx, branch.ID, path)
		if err != nil {
			return fmt.Errorf("count open issues for %s: %w", path, err)
		}
		switch {
		case open == 0:
			if err := store.DeleteBranchFile(ctx, branch.ProjectID, branch.Name, path); err != nil {
				return fmt.Errorf("delete branch file %s: %w", path, err)
			}
			logger.Debug("branch file fully resolved", "path", path)
		case open != existing.IssueCount:
			existing.IssueCount = open
			if err := store.SaveBranchFile(ctx, existing); err != nil {
				return fmt.Errorf("save branch file %s: %w", path, err)
			}
		}
	}
	return nil
}

// upsertBranchFile creates the BranchFile when the file has mapped issues,
// or refreshes its cached issueCount when the record already exists.
func upsertBranchFile(ctx context.Context, store *db.Store, branch *db.Branch, path string, mapped int) error {
	existing, err := store.GetBranchFile(ctx, branch.ProjectID, branch.Name, path)
	if err != nil {
		return fmt.Errorf("get branch file %s: %w", path, err)
	}

	switch {
	case existing == nil && mapped >= 1:
		return store.SaveBranchFile(ctx, &db.BranchFile{
			ProjectID:  branch.ProjectID,
			BranchName: branch.Name,
			FilePath:   path,
			IssueCount: mapped,
		})
	case existing != nil && existing.IssueCount != mapped:
		existing.IssueCount = mapped
		return store.SaveBranchFile(ctx, existing)
	}
	return nil
}
