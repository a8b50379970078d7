// Package ai defines the analysis client contract and the verdict
// normalization applied to its responses.
package ai

// IssueCandidate is a historical issue handed to the analysis engine for a
// fresh verdict against the current diff.
type IssueCandidate struct {
	IssueID     int64  `json:"issueId"`
	FilePath    string `json:"filePath"`
	LineNumber  int    `json:"lineNumber"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// AnalysisRequest carries everything one analysis call needs.
type AnalysisRequest struct {
	ProjectName  string           `json:"projectName"`
	Workspace    string           `json:"workspace"`
	RepoSlug     string           `json:"repoSlug"`
	BranchName   string           `json:"branchName"`
	CommitHash   string           `json:"commitHash"`
	PrNumber     *int64           `json:"prNumber,omitempty"`
	Diff         string           `json:"diff"`
	Candidates   []IssueCandidate `json:"candidates,omitempty"`
	TokenLimit   int              `json:"tokenLimit,omitempty"`
	PreviousHash string           `json:"previousCommitHash,omitempty"`
}

// AnalysisResponse wraps the raw engine reply. The reply is a loosely shaped
// JSON object; callers read it only through Verdicts.
type AnalysisResponse struct {
	Raw []byte
}

// Verdict is the engine's judgement on one historical issue.
type Verdict struct {
	IssueID    string
	IsResolved bool
	Reason     string
}
