package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestCrowErrorFormat(t *testing.T) {
	tests := []struct {
		name    string
		err     *CrowError
		wantErr string
	}{
		{
			name:    "what only",
			err:     &CrowError{What: "something broke"},
			wantErr: "something broke",
		},
		{
			name:    "what and why",
			err:     &CrowError{What: "something broke", Why: "bad input"},
			wantErr: "something broke: bad input",
		},
		{
			name: "with cause",
			err: &CrowError{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr: "something broke: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestCrowErrorIs(t *testing.T) {
	locked := ErrAnalysisLocked(1, "main")
	wrapped := fmt.Errorf("process: %w", locked)

	if !errors.Is(wrapped, &CrowError{Code: CodeAnalysisLocked}) {
		t.Error("expected wrapped error to match ANALYSIS_LOCKED by code")
	}
	if errors.Is(wrapped, &CrowError{Code: CodeNoVcsConfigured}) {
		t.Error("did not expect wrapped error to match NO_VCS_CONFIGURED")
	}
}

func TestCrowErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrDiffUnavailable("abc123").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("expected error chain to include cause")
	}
}

func TestAsCrowError(t *testing.T) {
	orig := ErrUnsupportedProvider("svn")
	wrapped := fmt.Errorf("registry: %w", orig)

	got := AsCrowError(wrapped)
	if got == nil {
		t.Fatal("expected CrowError, got nil")
	}
	if got.Code != CodeUnsupportedProvider {
		t.Errorf("Code = %q, want %q", got.Code, CodeUnsupportedProvider)
	}

	if AsCrowError(errors.New("plain")) != nil {
		t.Error("expected nil for non-CrowError")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *CrowError
		want int
	}{
		{ErrAnalysisLocked(1, "main"), 409},
		{ErrNoVcsConfigured(1), 400},
		{ErrProjectNotFound(7), 404},
		{ErrDiffUnavailable("abc"), 503},
		{&CrowError{Code: "UNKNOWN"}, 500},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestMarshalJSON(t *testing.T) {
	err := ErrAnalysisLocked(1, "main").WithCause(errors.New("lock row busy"))
	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("marshal: %v", marshalErr)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["code"] != string(CodeAnalysisLocked) {
		t.Errorf("code = %v, want %s", decoded["code"], CodeAnalysisLocked)
	}
	if decoded["cause"] != "lock row busy" {
		t.Errorf("cause = %v, want lock row busy", decoded["cause"])
	}
}
