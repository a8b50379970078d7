package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Severity classifies a code analysis issue.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
	SeverityInfo   Severity = "INFO"
)

// CodeAnalysisIssue is a persisted finding from a previous analysis.
// Immutable once created except for the resolved transition.
type CodeAnalysisIssue struct {
	ID          int64
	ProjectID   int64
	FilePath    string
	LineNumber  int
	Severity    Severity
	Category    string
	Description string
	BranchName  string // branch the issue was first reported on
	CommitHash  string
	PrNumber    *int64
	Resolved    bool
	ResolvedIn  ResolutionInfo
	CreatedAt   time.Time
}

// ResolutionInfo carries where and why an issue was marked resolved.
type ResolutionInfo struct {
	CommitHash  *string
	PrNumber    *int64
	Description *string
}

// SaveIssue creates a new code analysis issue. The generated ID is written
// back into the issue.
func (s *Store) SaveIssue(ctx context.Context, issue *CodeAnalysisIssue) error {
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	row := s.QueryRow(ctx, `
		INSERT INTO code_analysis_issues (project_id, file_path, line_number, severity,
			category, description, branch_name, commit_hash, pr_number, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		issue.ProjectID,
		issue.FilePath,
		issue.LineNumber,
		string(issue.Severity),
		issue.Category,
		issue.Description,
		issue.BranchName,
		issue.CommitHash,
		issue.PrNumber,
		issue.Resolved,
		issue.CreatedAt.Format(time.RFC3339),
	)
	if err := row.Scan(&issue.ID); err != nil {
		return fmt.Errorf("save issue: %w", err)
	}
	return nil
}

const issueColumns = `id, project_id, file_path, line_number, severity, category, description,
	branch_name, commit_hash, pr_number, resolved,
	resolved_in_commit_hash, resolved_in_pr_number, resolved_description, created_at`

// GetIssue retrieves an issue by ID. Returns (nil, nil) if absent.
func (s *Store) GetIssue(ctx context.Context, id int64) (*CodeAnalysisIssue, error) {
	row := s.QueryRow(ctx, `SELECT `+issueColumns+` FROM code_analysis_issues WHERE id = ?`, id)
	issue, err := scanIssueRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

// ListIssuesByProjectAndFile returns all issues recorded for a file in a
// project, regardless of branch or resolution state.
func (s *Store) ListIssuesByProjectAndFile(ctx context.Context, projectID int64, filePath string) ([]*CodeAnalysisIssue, error) {
	rows, err := s.Query(ctx, `
		SELECT `+issueColumns+` FROM code_analysis_issues
		WHERE project_id = ? AND file_path = ?
		ORDER BY id
	`, projectID, filePath)
	if err != nil {
		return nil, fmt.Errorf("list issues by file: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*CodeAnalysisIssue
	for rows.Next() {
		issue, err := scanIssueRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// ResolveIssue flips an unresolved issue to resolved, recording where the
// resolution happened. Already-resolved issues are left untouched.
func (s *Store) ResolveIssue(ctx context.Context, id int64, commitHash string, prNumber *int64, description string) error {
	_, err := s.Exec(ctx, `
		UPDATE code_analysis_issues
		SET resolved = ?, resolved_in_commit_hash = ?, resolved_in_pr_number = ?, resolved_description = ?
		WHERE id = ? AND resolved = ?
	`, true, commitHash, prNumber, description, id, false)
	if err != nil {
		return fmt.Errorf("resolve issue: %w", err)
	}
	return nil
}

func scanIssueRow(scan func(...any) error) (*CodeAnalysisIssue, error) {
	var issue CodeAnalysisIssue
	var severity, createdAt string
	var prNumber, resolvedPr sql.NullInt64
	var resolvedCommit, resolvedDesc sql.NullString

	err := scan(&issue.ID, &issue.ProjectID, &issue.FilePath, &issue.LineNumber,
		&severity, &issue.Category, &issue.Description,
		&issue.BranchName, &issue.CommitHash, &prNumber, &issue.Resolved,
		&resolvedCommit, &resolvedPr, &resolvedDesc, &createdAt)
	if err != nil {
		return nil, err
	}

	issue.Severity = Severity(severity)
	issue.CreatedAt = parseTime(createdAt)
	if prNumber.Valid {
		issue.PrNumber = &prNumber.Int64
	}
	if resolvedCommit.Valid {
		issue.ResolvedIn.CommitHash = &resolvedCommit.String
	}
	if resolvedPr.Valid {
		issue.ResolvedIn.PrNumber = &resolvedPr.Int64
	}
	if resolvedDesc.Valid {
		issue.ResolvedIn.Description = &resolvedDesc.String
	}
	return &issue, nil
}
