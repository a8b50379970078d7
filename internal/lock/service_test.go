package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/codecrow/internal/db"
	crowerr "github.com/rostilos/codecrow/internal/errors"
)

func newTestService(t *testing.T) (*Service, *db.Store) {
	t.Helper()
	store := db.NewTestStore(t)
	return NewService(store, time.Minute, 10*time.Millisecond, nil), store
}

func TestAcquireWithWait_Immediate(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	h, err := svc.AcquireWithWait(ctx, 1, "main", db.LockBranchAnalysis, time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.NotEmpty(t, h.HolderID())

	require.NoError(t, svc.Release(ctx, h))
}

func TestAcquireWithWait_TimesOutWhileHeld(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	h, err := svc.AcquireWithWait(ctx, 1, "main", db.LockBranchAnalysis, time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = svc.AcquireWithWait(ctx, 1, "main", db.LockBranchAnalysis, 50*time.Millisecond)
	require.Error(t, err)
	crowErr := crowerr.AsCrowError(err)
	require.NotNil(t, crowErr)
	assert.Equal(t, crowerr.CodeAnalysisLocked, crowErr.Code)
}

func TestAcquireWithWait_SucceedsAfterRelease(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	h, err := svc.AcquireWithWait(ctx, 1, "main", db.LockBranchAnalysis, time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = svc.Release(ctx, h)
	}()

	h2, err := svc.AcquireWithWait(ctx, 1, "main", db.LockBranchAnalysis, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h2)
	assert.NotEqual(t, h.HolderID(), h2.HolderID())
}

func TestAcquireWithWait_ContextCancelled(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	h, err := svc.AcquireWithWait(context.Background(), 1, "main", db.LockBranchAnalysis, time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = svc.AcquireWithWait(ctx, 1, "main", db.LockBranchAnalysis, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelease_NilHandle(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	assert.NoError(t, svc.Release(context.Background(), nil))
}
