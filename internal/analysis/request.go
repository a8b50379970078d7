// Package analysis contains the branch analysis orchestrator: the pipeline
// that evaluates a branch's state at a commit and reconciles persisted
// issues against it.
package analysis

// ProcessRequest asks for one branch analysis run.
type ProcessRequest struct {
	ProjectID               int64
	TargetBranchName        string
	CommitHash              string
	SourcePullRequestNumber *int64
}

// Result statuses.
const (
	StatusAccepted = "accepted"
	StatusSkipped  = "skipped"
)

// ReasonAlreadyAnalyzed marks a skip because the commit matched the
// branch's last successful hash.
const ReasonAlreadyAnalyzed = "commit_already_analyzed"

// ProcessResult reports the outcome of one run.
type ProcessResult struct {
	Status   string
	Cached   bool
	Reason   string
	BranchID int64
	// ChangedFiles is how many files the selected diff touched.
	ChangedFiles int
}

// Skipped reports whether the run was a cache hit.
func (r *ProcessResult) Skipped() bool {
	return r != nil && r.Status == StatusSkipped
}
