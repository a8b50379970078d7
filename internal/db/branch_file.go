package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BranchFile records that a file is currently present in a branch, with a
// cached count of its mapped issues.
type BranchFile struct {
	ID         int64
	ProjectID  int64
	BranchName string
	FilePath   string
	IssueCount int
}

// GetBranchFile retrieves a branch file record. Returns (nil, nil) if absent.
func (s *Store) GetBranchFile(ctx context.Context, projectID int64, branchName, filePath string) (*BranchFile, error) {
	row := s.QueryRow(ctx, `
		SELECT id, project_id, branch_name, file_path, issue_count
		FROM branch_files
		WHERE project_id = ? AND branch_name = ? AND file_path = ?
	`, projectID, branchName, filePath)

	var f BranchFile
	err := row.Scan(&f.ID, &f.ProjectID, &f.BranchName, &f.FilePath, &f.IssueCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get branch file: %w", err)
	}
	return &f, nil
}

// SaveBranchFile creates or updates a branch file record.
func (s *Store) SaveBranchFile(ctx context.Context, f *BranchFile) error {
	_, err := s.Exec(ctx, `
		INSERT INTO branch_files (project_id, branch_name, file_path, issue_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, branch_name, file_path) DO UPDATE SET
			issue_count = excluded.issue_count,
			updated_at = excluded.updated_at
	`, f.ProjectID, f.BranchName, f.FilePath, f.IssueCount, now())
	if err != nil {
		return fmt.Errorf("save branch file: %w", err)
	}
	return nil
}

// DeleteBranchFile removes a branch file record if present.
func (s *Store) DeleteBranchFile(ctx context.Context, projectID int64, branchName, filePath string) error {
	_, err := s.Exec(ctx, `
		DELETE FROM branch_files
		WHERE project_id = ? AND branch_name = ? AND file_path = ?
	`, projectID, branchName, filePath)
	if err != nil {
		return fmt.Errorf("delete branch file: %w", err)
	}
	return nil
}

// ListBranchFiles returns all file records for a branch ordered by path.
func (s *Store) ListBranchFiles(ctx context.Context, projectID int64, branchName string) ([]*BranchFile, error) {
	rows, err := s.Query(ctx, `
		SELECT id, project_id, branch_name, file_path, issue_count
		FROM branch_files
		WHERE project_id = ? AND branch_name = ?
		ORDER BY file_path
	`, projectID, branchName)
	if err != nil {
		return nil, fmt.Errorf("list branch files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*BranchFile
	for rows.Next() {
		var f BranchFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.BranchName, &f.FilePath, &f.IssueCount); err != nil {
			return nil, fmt.Errorf("scan branch file: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}
