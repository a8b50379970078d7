package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/codecrow/internal/analysis"
	"github.com/rostilos/codecrow/internal/events"
)

// slowProcessor counts concurrent runs and fails for a chosen branch.
type slowProcessor struct {
	delay       time.Duration
	failBranch  string
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu   sync.Mutex
	runs []string
}

func (p *slowProcessor) Process(ctx context.Context, req analysis.ProcessRequest, _ events.Sink) (*analysis.ProcessResult, error) {
	current := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.maxInFlight.Load()
		if current <= peak || p.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	time.Sleep(p.delay)

	p.mu.Lock()
	p.runs = append(p.runs, req.TargetBranchName)
	p.mu.Unlock()

	if req.TargetBranchName == p.failBranch {
		return nil, fmt.Errorf("scripted failure")
	}
	return &analysis.ProcessResult{Status: analysis.StatusAccepted}, nil
}

func TestDispatcher_RunsAllRequests(t *testing.T) {
	t.Parallel()
	proc := &slowProcessor{}
	d := NewDispatcher(proc, 4, nil)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, d.Submit(ctx, analysis.ProcessRequest{
			ProjectID:        1,
			TargetBranchName: fmt.Sprintf("branch-%d", i),
			CommitHash:       "abc",
		}, nil))
	}

	outcomes := d.Wait()
	assert.Len(t, outcomes, 8)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.Equal(t, analysis.StatusAccepted, o.Result.Status)
	}
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	proc := &slowProcessor{delay: 20 * time.Millisecond}
	d := NewDispatcher(proc, 2, nil)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, d.Submit(ctx, analysis.ProcessRequest{
			ProjectID:        1,
			TargetBranchName: fmt.Sprintf("branch-%d", i),
		}, nil))
	}
	d.Wait()

	assert.LessOrEqual(t, proc.maxInFlight.Load(), int32(2))
}

func TestDispatcher_CollectsFailures(t *testing.T) {
	t.Parallel()
	proc := &slowProcessor{failBranch: "broken"}
	d := NewDispatcher(proc, 2, nil)

	ctx := context.Background()
	require.NoError(t, d.Submit(ctx, analysis.ProcessRequest{ProjectID: 1, TargetBranchName: "ok"}, nil))
	require.NoError(t, d.Submit(ctx, analysis.ProcessRequest{ProjectID: 1, TargetBranchName: "broken"}, nil))

	outcomes := d.Wait()
	require.Len(t, outcomes, 2)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			assert.Equal(t, "broken", o.Request.TargetBranchName)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDispatcher_SubmitHonorsContext(t *testing.T) {
	t.Parallel()
	proc := &slowProcessor{delay: 200 * time.Millisecond}
	d := NewDispatcher(proc, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.NoError(t, d.Submit(ctx, analysis.ProcessRequest{ProjectID: 1, TargetBranchName: "a"}, nil))
	err := d.Submit(ctx, analysis.ProcessRequest{ProjectID: 1, TargetBranchName: "b"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	d.Wait()
}
