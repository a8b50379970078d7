package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdicts_ArrayShape(t *testing.T) {
	t.Parallel()
	resp := &AnalysisResponse{Raw: []byte(`{
		"summary": "two issues checked",
		"issues": [
			{"issueId": "100", "isResolved": true, "reason": "Fixed in this commit"},
			{"issueId": "101", "isResolved": false, "reason": "Still present"}
		]
	}`)}

	verdicts := resp.Verdicts(nil)
	require.Len(t, verdicts, 2)
	assert.Equal(t, Verdict{IssueID: "100", IsResolved: true, Reason: "Fixed in this commit"}, verdicts[0])
	assert.Equal(t, Verdict{IssueID: "101", IsResolved: false, Reason: "Still present"}, verdicts[1])
}

func TestVerdicts_MapShape(t *testing.T) {
	t.Parallel()
	resp := &AnalysisResponse{Raw: []byte(`{
		"issues": {
			"0": {"issueId": "7", "isResolved": true, "reason": "Refactored away"},
			"1": {"issueId": "8", "isResolved": false}
		}
	}`)}

	verdicts := resp.Verdicts(nil)
	require.Len(t, verdicts, 2)

	byID := map[string]Verdict{}
	for _, v := range verdicts {
		byID[v.IssueID] = v
	}
	assert.True(t, byID["7"].IsResolved)
	assert.False(t, byID["8"].IsResolved)
}

func TestVerdicts_FallbackKeys(t *testing.T) {
	t.Parallel()
	resp := &AnalysisResponse{Raw: []byte(`{
		"issues": [
			{"id": "42", "status": "resolved", "reason": "Gone"},
			{"id": "43", "status": "open"},
			{"id": "44", "status": "RESOLVED"}
		]
	}`)}

	verdicts := resp.Verdicts(nil)
	require.Len(t, verdicts, 3)
	assert.Equal(t, "42", verdicts[0].IssueID)
	assert.True(t, verdicts[0].IsResolved)
	assert.False(t, verdicts[1].IsResolved)
	assert.True(t, verdicts[2].IsResolved, "status comparison is case-insensitive")
}

func TestVerdicts_UnrecognizedShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{"issues is a string", `{"issues": "none"}`},
		{"issues is a number", `{"issues": 3}`},
		{"issues missing", `{"summary": "ok"}`},
		{"empty body", ``},
		{"not json", `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := &AnalysisResponse{Raw: []byte(tt.raw)}
			assert.Empty(t, resp.Verdicts(nil))
		})
	}
}

func TestVerdicts_SkipsEntriesWithoutID(t *testing.T) {
	t.Parallel()
	resp := &AnalysisResponse{Raw: []byte(`{
		"issues": [
			{"isResolved": true, "reason": "no id here"},
			{"issueId": "9", "isResolved": true},
			"not an object"
		]
	}`)}

	verdicts := resp.Verdicts(nil)
	require.Len(t, verdicts, 1)
	assert.Equal(t, "9", verdicts[0].IssueID)
}

func TestVerdicts_NumericIDs(t *testing.T) {
	t.Parallel()
	resp := &AnalysisResponse{Raw: []byte(`{"issues": [{"issueId": 100, "isResolved": true}]}`)}

	verdicts := resp.Verdicts(nil)
	require.Len(t, verdicts, 1)
	assert.Equal(t, "100", verdicts[0].IssueID)
}

func TestVerdicts_NilResponse(t *testing.T) {
	t.Parallel()
	var resp *AnalysisResponse
	assert.Empty(t, resp.Verdicts(nil))
}
