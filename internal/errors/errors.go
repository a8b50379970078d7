// Package errors provides structured error types for codecrow.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for codecrow.
const (
	// Configuration errors
	CodeNoVcsConfigured     Code = "NO_VCS_CONFIGURED"
	CodeUnsupportedProvider Code = "UNSUPPORTED_PROVIDER"
	CodeConfigInvalid       Code = "CONFIG_INVALID"

	// Contention errors
	CodeAnalysisLocked Code = "ANALYSIS_LOCKED"

	// Remote I/O errors
	CodeDiffUnavailable Code = "DIFF_UNAVAILABLE"
	CodeVcsUnavailable  Code = "VCS_UNAVAILABLE"
	CodeAiFailed        Code = "AI_ANALYSIS_FAILED"
	CodeTokenLimit      Code = "TOKEN_LIMIT_EXCEEDED"

	// Persistence errors
	CodeProjectNotFound Code = "PROJECT_NOT_FOUND"
	CodeStorageFailed   Code = "STORAGE_FAILED"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryTimeout
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeNoVcsConfigured:     CategoryBadRequest,
	CodeUnsupportedProvider: CategoryBadRequest,
	CodeConfigInvalid:       CategoryBadRequest,
	CodeAnalysisLocked:      CategoryConflict,
	CodeDiffUnavailable:     CategoryUnavailable,
	CodeVcsUnavailable:      CategoryUnavailable,
	CodeAiFailed:            CategoryUnavailable,
	CodeTokenLimit:          CategoryBadRequest,
	CodeProjectNotFound:     CategoryNotFound,
	CodeStorageFailed:       CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryTimeout:
		return 504
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// CrowError is the structured error type for codecrow.
type CrowError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *CrowError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *CrowError) Unwrap() error {
	return e.Cause
}

// Category returns the error category for HTTP status mapping.
func (e *CrowError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *CrowError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *CrowError) MarshalJSON() ([]byte, error) {
	type alias CrowError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a CrowError with the same code.
func (e *CrowError) Is(target error) bool {
	t, ok := target.(*CrowError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *CrowError) WithCause(err error) *CrowError {
	return &CrowError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrNoVcsConfigured returns an error for a project without a VCS binding.
func ErrNoVcsConfigured(projectID int64) *CrowError {
	return &CrowError{
		Code: CodeNoVcsConfigured,
		What: fmt.Sprintf("project %d has no VCS repository configured", projectID),
		Why:  "Branch analysis requires an effective VCS binding (provider, workspace, repo slug)",
		Fix:  "Configure the project's repository connection before triggering analysis",
	}
}

// ErrUnsupportedProvider returns an error for an unknown provider tag.
func ErrUnsupportedProvider(tag string) *CrowError {
	return &CrowError{
		Code: CodeUnsupportedProvider,
		What: fmt.Sprintf("unsupported VCS provider %q", tag),
		Why:  "No VCS operations implementation is registered for this provider tag",
		Fix:  "Use one of: bitbucket_cloud, github, gitlab, bitbucket_server",
	}
}

// ErrAnalysisLocked returns an error when the per-branch lock could not be acquired.
func ErrAnalysisLocked(projectID int64, branch string) *CrowError {
	return &CrowError{
		Code: CodeAnalysisLocked,
		What: fmt.Sprintf("branch analysis already running for project %d branch %q", projectID, branch),
		Why:  "Another analysis holds the branch lock and did not release it within the wait window",
		Fix:  "Retry once the running analysis completes",
	}
}

// ErrDiffUnavailable returns an error when no diff could be obtained from any tier.
func ErrDiffUnavailable(commitHash string) *CrowError {
	return &CrowError{
		Code: CodeDiffUnavailable,
		What: fmt.Sprintf("could not fetch a diff for commit %s", commitHash),
		Why:  "Delta, pull-request, and single-commit diff requests all failed",
		Fix:  "Check VCS connectivity and that the commit exists on the remote",
	}
}

// ErrTokenLimit returns an error when the AI request exceeds the connection's token ceiling.
func ErrTokenLimit(limit int) *CrowError {
	return &CrowError{
		Code: CodeTokenLimit,
		What: fmt.Sprintf("analysis request exceeds the configured token limit (%d)", limit),
		Why:  "The assembled prompt is larger than the AI connection allows",
		Fix:  "Raise the connection's token limit or reduce the diff scope",
	}
}

// ErrProjectNotFound returns an error when a project does not exist.
func ErrProjectNotFound(projectID int64) *CrowError {
	return &CrowError{
		Code: CodeProjectNotFound,
		What: fmt.Sprintf("project %d not found", projectID),
		Why:  "No project with this ID exists in the store",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *CrowError {
	return &CrowError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check the codecrow config file and fix the invalid field",
	}
}

// AsCrowError attempts to convert an error to a CrowError.
// Returns nil if the error is not a CrowError.
func AsCrowError(err error) *CrowError {
	var crowErr *CrowError
	if As(err, &crowErr) {
		return crowErr
	}
	return nil
}

// As is a convenience wrapper for errors.As semantics on CrowError.
func As(err error, target any) bool {
	return asError(err, target)
}

func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if crowErr, ok := err.(*CrowError); ok {
		if t, ok := target.(**CrowError); ok {
			*t = crowErr
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into a CrowError under the given code.
func Wrap(code Code, what string, cause error) *CrowError {
	return &CrowError{
		Code:  code,
		What:  what,
		Cause: cause,
	}
}
