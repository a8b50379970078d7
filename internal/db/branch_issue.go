package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BranchIssue associates a persisted issue with a branch it is still
// considered open on. Resolution state is tracked per branch.
type BranchIssue struct {
	ID         int64
	BranchID   int64
	IssueID    int64
	Resolved   bool
	ResolvedIn ResolutionInfo
}

// GetBranchIssue retrieves the association for (branchID, issueID).
// Returns (nil, nil) if absent.
func (s *Store) GetBranchIssue(ctx context.Context, branchID, issueID int64) (*BranchIssue, error) {
	row := s.QueryRow(ctx, `
		SELECT id, branch_id, issue_id, resolved,
		       resolved_in_commit_hash, resolved_in_pr_number, resolved_description
		FROM branch_issues WHERE branch_id = ? AND issue_id = ?
	`, branchID, issueID)

	bi, err := scanBranchIssueRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get branch issue: %w", err)
	}
	return bi, nil
}

// EnsureBranchIssue creates the (branchID, issueID) association if it does
// not exist. An existing association is never mutated here.
func (s *Store) EnsureBranchIssue(ctx context.Context, branchID, issueID int64) error {
	_, err := s.Exec(ctx, `
		INSERT INTO branch_issues (branch_id, issue_id, resolved, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (branch_id, issue_id) DO NOTHING
	`, branchID, issueID, false, now())
	if err != nil {
		return fmt.Errorf("ensure branch issue: %w", err)
	}
	return nil
}

// ResolveBranchIssue flips an open branch issue to resolved, recording where
// the resolution happened. Returns true if a row transitioned; an absent or
// already-resolved association reports false with no error (idempotence).
func (s *Store) ResolveBranchIssue(ctx context.Context, branchID, issueID int64, commitHash string, prNumber *int64, description string) (bool, error) {
	res, err := s.Exec(ctx, `
		UPDATE branch_issues
		SET resolved = ?, resolved_in_commit_hash = ?, resolved_in_pr_number = ?, resolved_description = ?
		WHERE branch_id = ? AND issue_id = ? AND resolved = ?
	`, true, commitHash, prNumber, description, branchID, issueID, false)
	if err != nil {
		return false, fmt.Errorf("resolve branch issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve branch issue rows: %w", err)
	}
	return n > 0, nil
}

// ListOpenBranchIssuesForFile returns unresolved branch issues whose
// underlying code analysis issue lives at the given file path.
func (s *Store) ListOpenBranchIssuesForFile(ctx context.Context, branchID int64, filePath string) ([]*BranchIssue, error) {
	rows, err := s.Query(ctx, `
		SELECT bi.id, bi.branch_id, bi.issue_id, bi.resolved,
		       bi.resolved_in_commit_hash, bi.resolved_in_pr_number, bi.resolved_description
		FROM branch_issues bi
		JOIN code_analysis_issues i ON i.id = bi.issue_id
		WHERE bi.branch_id = ? AND bi.resolved = ? AND i.file_path = ?
		ORDER BY bi.id
	`, branchID, false, filePath)
	if err != nil {
		return nil, fmt.Errorf("list open branch issues for file: %w", err)
	}
	return collectBranchIssues(rows)
}

// CountOpenBranchIssuesForFile returns the number of unresolved branch
// issues mapped to a file.
func (s *Store) CountOpenBranchIssuesForFile(ctx context.Context, branchID int64, filePath string) (int, error) {
	row := s.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM branch_issues bi
		JOIN code_analysis_issues i ON i.id = bi.issue_id
		WHERE bi.branch_id = ? AND bi.resolved = ? AND i.file_path = ?
	`, branchID, false, filePath)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count open branch issues: %w", err)
	}
	return n, nil
}

// CountOpenBranchIssuesBySeverity recomputes per-severity unresolved counts
// for a branch from its open associations.
func (s *Store) CountOpenBranchIssuesBySeverity(ctx context.Context, branchID int64) (SeverityCounters, error) {
	rows, err := s.Query(ctx, `
		SELECT i.severity, COUNT(*)
		FROM branch_issues bi
		JOIN code_analysis_issues i ON i.id = bi.issue_id
		WHERE bi.branch_id = ? AND bi.resolved = ?
		GROUP BY i.severity
	`, branchID, false)
	if err != nil {
		return SeverityCounters{}, fmt.Errorf("count open branch issues by severity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var c SeverityCounters
	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return SeverityCounters{}, fmt.Errorf("scan severity count: %w", err)
		}
		switch Severity(severity) {
		case SeverityHigh:
			c.High = n
		case SeverityMedium:
			c.Medium = n
		case SeverityLow:
			c.Low = n
		case SeverityInfo:
			c.Info = n
		}
	}
	return c, rows.Err()
}

func collectBranchIssues(rows *sql.Rows) ([]*BranchIssue, error) {
	defer func() { _ = rows.Close() }()

	var issues []*BranchIssue
	for rows.Next() {
		bi, err := scanBranchIssueRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan branch issue: %w", err)
		}
		issues = append(issues, bi)
	}
	return issues, rows.Err()
}

func scanBranchIssueRow(scan func(...any) error) (*BranchIssue, error) {
	var bi BranchIssue
	var commit, desc sql.NullString
	var pr sql.NullInt64

	if err := scan(&bi.ID, &bi.BranchID, &bi.IssueID, &bi.Resolved, &commit, &pr, &desc); err != nil {
		return nil, err
	}
	if commit.Valid {
		bi.ResolvedIn.CommitHash = &commit.String
	}
	if pr.Valid {
		bi.ResolvedIn.PrNumber = &pr.Int64
	}
	if desc.Valid {
		bi.ResolvedIn.Description = &desc.String
	}
	return &bi, nil
}
