// Package lock provides per-branch exclusive locking with a bounded wait,
// backed by the analysis_locks table so locks survive process restarts and
// work across multiple orchestrator instances sharing one database.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rostilos/codecrow/internal/db"
	crowerr "github.com/rostilos/codecrow/internal/errors"
)

// Handle represents a held lock. Pass it back to Release when done.
type Handle struct {
	lock *db.AnalysisLock
}

// HolderID returns the unique id under which this lock was acquired.
func (h *Handle) HolderID() string {
	if h == nil || h.lock == nil {
		return ""
	}
	return h.lock.HolderID
}

// Service acquires and releases branch analysis locks.
type Service struct {
	store        *db.Store
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewService builds a lock service. ttl bounds how long a crashed holder
// can block other runs before its lock is taken over; pollInterval is how
// often a waiting acquirer retries.
func NewService(store *db.Store, ttl, pollInterval time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Service{store: store, ttl: ttl, pollInterval: pollInterval, logger: logger}
}

// AcquireWithWait tries to take the (projectID, branch, lockType) lock,
// polling until maxWait elapses. It returns ErrAnalysisLocked when the lock
// stays held for the whole window, and the context error when ctx ends
// first.
func (s *Service) AcquireWithWait(ctx context.Context, projectID int64, branch string, lockType db.LockType, maxWait time.Duration) (*Handle, error) {
	holderID := uuid.NewString()
	deadline := time.Now().Add(maxWait)

	for {
		lock, err := s.store.TryAcquireLock(ctx, projectID, branch, lockType, holderID, s.ttl)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			s.logger.Debug("lock acquired",
				"project_id", projectID, "branch", branch, "holder", holderID)
			return &Handle{lock: lock}, nil
		}
		if time.Now().After(deadline) {
			s.logger.Warn("lock wait exhausted",
				"project_id", projectID, "branch", branch, "max_wait", maxWait)
			return nil, crowerr.ErrAnalysisLocked(projectID, branch)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// Release gives the lock back. Releasing a nil handle or a lock that was
// already taken over by another holder is a no-op.
func (s *Service) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	return s.store.ReleaseLock(ctx, h.lock)
}
