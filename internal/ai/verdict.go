package ai

import (
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

// Verdicts normalizes the response's "issues" field into a flat verdict
// slice. The field arrives in one of two equivalent shapes: an array of
// verdict objects, or a string-keyed map ("0", "1", ...) whose values are
// verdict objects. Any other shape yields no verdicts and a warning log.
func (r *AnalysisResponse) Verdicts(logger *slog.Logger) []Verdict {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil || len(r.Raw) == 0 {
		return nil
	}

	issues := gjson.GetBytes(r.Raw, "issues")
	if !issues.Exists() {
		logger.Warn("analysis response has no issues field")
		return nil
	}

	var verdicts []Verdict
	switch {
	case issues.IsArray():
		issues.ForEach(func(_, value gjson.Result) bool {
			if v, ok := parseVerdict(value); ok {
				verdicts = append(verdicts, v)
			}
			return true
		})
	case issues.IsObject():
		issues.ForEach(func(_, value gjson.Result) bool {
			if v, ok := parseVerdict(value); ok {
				verdicts = append(verdicts, v)
			}
			return true
		})
	default:
		logger.Warn("analysis response issues field has unrecognized shape",
			"type", issues.Type.String())
		return nil
	}
	return verdicts
}

// parseVerdict reads one verdict object. The issue id lives under "issueId"
// with "id" as fallback; the resolution signal is either a boolean
// "isResolved" or a "status" of "resolved"/"open".
func parseVerdict(value gjson.Result) (Verdict, bool) {
	if !value.IsObject() {
		return Verdict{}, false
	}

	id := value.Get("issueId")
	if !id.Exists() {
		id = value.Get("id")
	}
	if !id.Exists() {
		return Verdict{}, false
	}

	v := Verdict{
		IssueID: id.String(),
		Reason:  value.Get("reason").String(),
	}

	if res := value.Get("isResolved"); res.Exists() {
		v.IsResolved = res.Bool()
	} else if status := value.Get("status"); status.Exists() {
		v.IsResolved = strings.EqualFold(status.String(), "resolved")
	}
	return v, true
}
