package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rostilos/codecrow/internal/ai"
	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/errors"
	"github.com/rostilos/codecrow/internal/events"
	"github.com/rostilos/codecrow/internal/lock"
	"github.com/rostilos/codecrow/internal/rag"
	"github.com/rostilos/codecrow/internal/vcs"

	"github.com/rostilos/codecrow/internal/diff"
)

// OperationsResolver builds the provider client for a project's binding.
type OperationsResolver func(project *db.Project) (vcs.Operations, error)

// Orchestrator runs the branch analysis pipeline. Runs for the same
// (project, branch) are serialized by the lock service; independent
// branches proceed in parallel.
type Orchestrator struct {
	store       *db.Store
	locks       *lock.Service
	resolver    OperationsResolver
	builder     vcs.AiRequestBuilder
	ai          ai.Client
	rag         rag.Operations
	ignore      func(path string) bool
	lockMaxWait time.Duration
	logger      *slog.Logger
}

// Options wires an Orchestrator. Rag and Ignore are optional.
type Options struct {
	Store       *db.Store
	Locks       *lock.Service
	Resolver    OperationsResolver
	Builder     vcs.AiRequestBuilder
	AI          ai.Client
	Rag         rag.Operations
	Ignore      func(path string) bool
	LockMaxWait time.Duration
	Logger      *slog.Logger
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxWait := opts.LockMaxWait
	if maxWait == 0 {
		maxWait = 30 * time.Second
	}
	return &Orchestrator{
		store:       opts.Store,
		locks:       opts.Locks,
		resolver:    opts.Resolver,
		builder:     opts.Builder,
		ai:          opts.AI,
		rag:         opts.Rag,
		ignore:      opts.Ignore,
		lockMaxWait: maxWait,
		logger:      logger,
	}
}

// Process evaluates the branch's state at the requested commit. It acquires
// the per-branch lock, checks the commit cache, selects a diff, synchronizes
// file state, reconciles persisted issues, recomputes counters, updates the
// retrieval index, and advances the branch's last successful commit hash.
//
// On lock denial it fails with AnalysisLocked and emits no progress events.
// On any failure after the lock is held, the branch is marked stale, the
// hash stays unchanged, the lock is released, and the error propagates.
func (o *Orchestrator) Process(ctx context.Context, req ProcessRequest, sink events.Sink) (*ProcessResult, error) {
	project, err := o.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", req.ProjectID, err)
	}
	if project == nil {
		return nil, errors.ErrProjectNotFound(req.ProjectID)
	}
	if !project.HasVcs() {
		return nil, errors.ErrNoVcsConfigured(req.ProjectID)
	}

	handle, err := o.locks.AcquireWithWait(ctx, req.ProjectID, req.TargetBranchName,
		db.LockBranchAnalysis, o.lockMaxWait)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := o.locks.Release(ctx, handle); releaseErr != nil {
			o.logger.Warn("lock release failed",
				"project_id", req.ProjectID, "branch", req.TargetBranchName, "error", releaseErr)
		}
	}()

	// The cache check must happen under the lock so two concurrent callers
	// cannot both decide to proceed.
	branch, err := o.store.GetBranch(ctx, req.ProjectID, req.TargetBranchName)
	if err != nil {
		return nil, fmt.Errorf("load branch %s: %w", req.TargetBranchName, err)
	}
	if branch != nil && branch.LastSuccessfulCommitHash != nil &&
		*branch.LastSuccessfulCommitHash == req.CommitHash {
		o.logger.Info("commit already analyzed",
			"project_id", req.ProjectID, "branch", req.TargetBranchName, "commit", req.CommitHash)
		return &ProcessResult{Status: StatusSkipped, Cached: true, Reason: ReasonAlreadyAnalyzed, BranchID: branch.ID}, nil
	}

	sink.Emit(events.StageInit, "analysis started", map[string]any{
		"project_id": req.ProjectID,
		"branch":     req.TargetBranchName,
		"commit":     req.CommitHash,
	})

	if branch == nil {
		branch = &db.Branch{
			ProjectID: req.ProjectID,
			Name:      req.TargetBranchName,
			Health:    db.BranchIndexing,
		}
		if err := o.store.SaveBranch(ctx, branch); err != nil {
			return nil, fmt.Errorf("create branch %s: %w", req.TargetBranchName, err)
		}
	} else {
		if err := o.store.UpdateBranchHealth(ctx, branch.ID, db.BranchIndexing); err != nil {
			return nil, fmt.Errorf("mark branch indexing: %w", err)
		}
	}

	result, runErr := o.runLocked(ctx, project, branch, req, sink)
	if runErr != nil {
		if staleErr := o.store.UpdateBranchHealth(ctx, branch.ID, db.BranchStale); staleErr != nil {
			o.logger.Warn("mark branch stale failed", "branch_id", branch.ID, "error", staleErr)
		}
		return nil, runErr
	}
	return result, nil
}

// runLocked is the pipeline body between lock acquisition and release.
func (o *Orchestrator) runLocked(ctx context.Context, project *db.Project, branch *db.Branch, req ProcessRequest, sink events.Sink) (*ProcessResult, error) {
	ops, err := o.resolver(project)
	if err != nil {
		return nil, err
	}

	rawDiff, err := selectDiff(ctx, ops, branch, req, o.logger)
	if err != nil {
		return nil, err
	}
	changedFiles := o.filterIgnored(diff.ChangedFiles(rawDiff))
	sink.Emit(events.StageDiff, "diff selected", map[string]any{
		"changed_files": len(changedFiles),
		"diff_bytes":    len(rawDiff),
	})

	if err := syncFileState(ctx, o.store, ops, branch, changedFiles, o.logger); err != nil {
		return nil, err
	}
	sink.Emit(events.StageSync, "file state synchronized", map[string]any{
		"changed_files": len(changedFiles),
	})

	rec := &reconciler{store: o.store, builder: o.builder, ai: o.ai, logger: o.logger}
	if err := rec.reconcile(ctx, project, branch, req, changedFiles, rawDiff, sink); err != nil {
		return nil, err
	}

	// Verdicts may have resolved issues, so the per-file cached counts are
	// recomputed before the branch-level counters.
	if err := refreshFileCounts(ctx, o.store, branch, changedFiles, o.logger); err != nil {
		return nil, err
	}

	counters, err := o.store.CountOpenBranchIssuesBySeverity(ctx, branch.ID)
	if err != nil {
		return nil, fmt.Errorf("recount branch issues: %w", err)
	}
	if err := o.store.UpdateBranchCounters(ctx, branch.ID, counters); err != nil {
		return nil, fmt.Errorf("update branch counters: %w", err)
	}

	o.updateRagIndex(ctx, project, branch, req, rawDiff, sink)

	if err := o.store.AdvanceBranchCommit(ctx, branch.ID, req.CommitHash); err != nil {
		return nil, fmt.Errorf("advance branch commit: %w", err)
	}
	sink.Emit(events.StageComplete, "analysis complete", map[string]any{
		"branch_id":    branch.ID,
		"commit":       req.CommitHash,
		"total_issues": counters.Total(),
	})

	return &ProcessResult{
		Status:       StatusAccepted,
		BranchID:     branch.ID,
		ChangedFiles: len(changedFiles),
	}, nil
}

// filterIgnored drops changed files matching the project's ignore globs.
func (o *Orchestrator) filterIgnored(paths []string) []string {
	if o.ignore == nil {
		return paths
	}
	kept := paths[:0]
	for _, p := range paths {
		if o.ignore(p) {
			o.logger.Debug("changed file ignored", "path", p)
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// updateRagIndex consults the retrieval-index service after a successful
// reconciliation. The base branch's index is patched incrementally from the
// diff; other branches get a full refresh. Failures are logged and
// swallowed: the analysis itself succeeded, so the branch still goes
// healthy.
func (o *Orchestrator) updateRagIndex(ctx context.Context, project *db.Project, branch *db.Branch, req ProcessRequest, rawDiff string, sink events.Sink) {
	if o.rag == nil || !o.rag.IsEnabled(project) {
		return
	}
	ready, err := o.rag.IsIndexReady(ctx, project)
	if err != nil {
		o.logger.Warn("rag index status check failed", "project_id", project.ID, "error", err)
		return
	}
	if !ready {
		o.logger.Debug("rag index not ready, skipping update", "project_id", project.ID)
		return
	}

	if branch.Name == o.rag.BaseBranch(project) {
		err = o.rag.TriggerIncrementalUpdate(ctx, project, branch.Name, req.CommitHash, rawDiff, sink)
	} else {
		err = o.rag.UpdateBranchIndex(ctx, project, branch.Name, sink)
	}
	if err != nil {
		o.logger.Warn("rag index update failed",
			"project_id", project.ID, "branch", branch.Name, "error", err)
	}
}
