package db

import (
	"context"
	"fmt"
	"time"
)

// LockType identifies the kind of logical lock held on a branch.
type LockType string

// LockBranchAnalysis serializes branch analysis runs per (project, branch).
const LockBranchAnalysis LockType = "BRANCH_ANALYSIS"

// AnalysisLock is a row-backed advisory lock keyed by
// (projectID, branchName, lockType). At most one live holder exists per key;
// expired rows may be taken over.
type AnalysisLock struct {
	ID         int64
	ProjectID  int64
	BranchName string
	LockType   LockType
	HolderID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// TryAcquireLock makes a single, non-blocking acquisition attempt. It first
// takes over an expired row for the key, then falls back to inserting a new
// one. Returns the lock on success or (nil, nil) when the key is held.
func (s *Store) TryAcquireLock(ctx context.Context, projectID int64, branchName string, lockType LockType, holderID string, ttl time.Duration) (*AnalysisLock, error) {
	nowT := time.Now().UTC()
	acquired := nowT.Format(time.RFC3339)
	expires := nowT.Add(ttl).Format(time.RFC3339)

	// Takeover: claim the row if its TTL lapsed. The conditional UPDATE is
	// atomic, so two racing holders cannot both win.
	res, err := s.Exec(ctx, `
		UPDATE analysis_locks
		SET holder_id = ?, acquired_at = ?, expires_at = ?
		WHERE project_id = ? AND branch_name = ? AND lock_type = ? AND expires_at < ?
	`, holderID, acquired, expires, projectID, branchName, string(lockType), acquired)
	if err != nil {
		return nil, fmt.Errorf("take over lock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return s.getLock(ctx, projectID, branchName, lockType)
	}

	// Fresh insert: loses cleanly to a concurrent live holder.
	res, err = s.Exec(ctx, `
		INSERT INTO analysis_locks (project_id, branch_name, lock_type, holder_id, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, branch_name, lock_type) DO NOTHING
	`, projectID, branchName, string(lockType), holderID, acquired, expires)
	if err != nil {
		return nil, fmt.Errorf("insert lock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return s.getLock(ctx, projectID, branchName, lockType)
	}

	return nil, nil
}

// ReleaseLock deletes the lock row, but only for the holder that acquired
// it. Releasing an already-released or taken-over lock is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, lock *AnalysisLock) error {
	if lock == nil {
		return nil
	}
	_, err := s.Exec(ctx, `
		DELETE FROM analysis_locks
		WHERE project_id = ? AND branch_name = ? AND lock_type = ? AND holder_id = ?
	`, lock.ProjectID, lock.BranchName, string(lock.LockType), lock.HolderID)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (s *Store) getLock(ctx context.Context, projectID int64, branchName string, lockType LockType) (*AnalysisLock, error) {
	row := s.QueryRow(ctx, `
		SELECT id, project_id, branch_name, lock_type, holder_id, acquired_at, expires_at
		FROM analysis_locks
		WHERE project_id = ? AND branch_name = ? AND lock_type = ?
	`, projectID, branchName, string(lockType))

	var l AnalysisLock
	var lt, acquiredAt, expiresAt string
	if err := row.Scan(&l.ID, &l.ProjectID, &l.BranchName, &lt, &l.HolderID, &acquiredAt, &expiresAt); err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	l.LockType = LockType(lt)
	l.AcquiredAt = parseTime(acquiredAt)
	l.ExpiresAt = parseTime(expiresAt)
	return &l, nil
}
