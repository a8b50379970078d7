package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BranchHealth represents the health state of an analyzed branch.
type BranchHealth string

const (
	BranchHealthy  BranchHealth = "healthy"
	BranchStale    BranchHealth = "stale"
	BranchIndexing BranchHealth = "indexing"
)

// SeverityCounters holds per-severity unresolved issue counts.
type SeverityCounters struct {
	High   int
	Medium int
	Low    int
	Info   int
}

// Total returns the sum of all severity counters.
func (c SeverityCounters) Total() int {
	return c.High + c.Medium + c.Low + c.Info
}

// Branch is the mutable per-(project, branch name) analysis record.
// The orchestrator is the sole writer of LastSuccessfulCommitHash and Health.
type Branch struct {
	ID                       int64
	ProjectID                int64
	Name                     string
	LastSuccessfulCommitHash *string
	Health                   BranchHealth
	TotalIssueCount          int
	Counters                 SeverityCounters
}

// GetBranch retrieves a branch by (projectID, name). Returns (nil, nil) if absent.
func (s *Store) GetBranch(ctx context.Context, projectID int64, name string) (*Branch, error) {
	row := s.QueryRow(ctx, `
		SELECT id, project_id, name, last_successful_commit_hash, health,
		       total_issue_count, high_count, medium_count, low_count, info_count
		FROM branches WHERE project_id = ? AND name = ?
	`, projectID, name)
	return scanBranch(row)
}

// GetBranchByID retrieves a branch by primary key. Returns (nil, nil) if absent.
func (s *Store) GetBranchByID(ctx context.Context, id int64) (*Branch, error) {
	row := s.QueryRow(ctx, `
		SELECT id, project_id, name, last_successful_commit_hash, health,
		       total_issue_count, high_count, medium_count, low_count, info_count
		FROM branches WHERE id = ?
	`, id)
	return scanBranch(row)
}

func scanBranch(row *sql.Row) (*Branch, error) {
	var b Branch
	var hash sql.NullString
	var health string
	err := row.Scan(&b.ID, &b.ProjectID, &b.Name, &hash, &health,
		&b.TotalIssueCount, &b.Counters.High, &b.Counters.Medium, &b.Counters.Low, &b.Counters.Info)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}
	if hash.Valid {
		b.LastSuccessfulCommitHash = &hash.String
	}
	b.Health = BranchHealth(health)
	return &b, nil
}

// SaveBranch creates or updates a branch. On creation the generated ID is
// written back into b.
func (s *Store) SaveBranch(ctx context.Context, b *Branch) error {
	if b.Health == "" {
		b.Health = BranchHealthy
	}
	ts := now()
	_, err := s.Exec(ctx, `
		INSERT INTO branches (project_id, name, last_successful_commit_hash, health,
			total_issue_count, high_count, medium_count, low_count, info_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, name) DO UPDATE SET
			last_successful_commit_hash = excluded.last_successful_commit_hash,
			health = excluded.health,
			total_issue_count = excluded.total_issue_count,
			high_count = excluded.high_count,
			medium_count = excluded.medium_count,
			low_count = excluded.low_count,
			info_count = excluded.info_count,
			updated_at = excluded.updated_at
	`,
		b.ProjectID,
		b.Name,
		b.LastSuccessfulCommitHash,
		string(b.Health),
		b.TotalIssueCount,
		b.Counters.High,
		b.Counters.Medium,
		b.Counters.Low,
		b.Counters.Info,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("save branch: %w", err)
	}

	if b.ID == 0 {
		row := s.QueryRow(ctx, `SELECT id FROM branches WHERE project_id = ? AND name = ?`, b.ProjectID, b.Name)
		if err := row.Scan(&b.ID); err != nil {
			return fmt.Errorf("read back branch id: %w", err)
		}
	}
	return nil
}

// UpdateBranchHealth sets the branch health state.
func (s *Store) UpdateBranchHealth(ctx context.Context, branchID int64, health BranchHealth) error {
	_, err := s.Exec(ctx, `
		UPDATE branches SET health = ?, updated_at = ? WHERE id = ?
	`, string(health), now(), branchID)
	if err != nil {
		return fmt.Errorf("update branch health: %w", err)
	}
	return nil
}

// AdvanceBranchCommit marks the branch healthy and records the successfully
// analyzed commit hash. This is the sole writer of last_successful_commit_hash.
func (s *Store) AdvanceBranchCommit(ctx context.Context, branchID int64, commitHash string) error {
	_, err := s.Exec(ctx, `
		UPDATE branches
		SET last_successful_commit_hash = ?, health = ?, updated_at = ?
		WHERE id = ?
	`, commitHash, string(BranchHealthy), now(), branchID)
	if err != nil {
		return fmt.Errorf("advance branch commit: %w", err)
	}
	return nil
}

// UpdateBranchCounters writes the per-severity and total unresolved issue
// counts for a branch.
func (s *Store) UpdateBranchCounters(ctx context.Context, branchID int64, c SeverityCounters) error {
	_, err := s.Exec(ctx, `
		UPDATE branches
		SET total_issue_count = ?, high_count = ?, medium_count = ?, low_count = ?, info_count = ?, updated_at = ?
		WHERE id = ?
	`, c.Total(), c.High, c.Medium, c.Low, c.Info, now(), branchID)
	if err != nil {
		return fmt.Errorf("update branch counters: %w", err)
	}
	return nil
}
