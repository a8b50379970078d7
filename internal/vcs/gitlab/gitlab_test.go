package gitlab

import (
	"strings"
	"testing"

	"github.com/rostilos/codecrow/internal/vcs"
)

func TestRenderDiffs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		paths  [][2]string
		bodies []string
		want   []string
	}{
		{
			name:   "single file",
			paths:  [][2]string{{"src/app.go", "src/app.go"}},
			bodies: []string{"@@ -1 +1 @@\n-old\n+new\n"},
			want:   []string{"diff --git a/src/app.go b/src/app.go\n@@ -1 +1 @@"},
		},
		{
			name:   "rename keeps both paths",
			paths:  [][2]string{{"old/name.go", "new/name.go"}},
			bodies: []string{""},
			want:   []string{"diff --git a/old/name.go b/new/name.go\n"},
		},
		{
			name:   "new file has empty old path",
			paths:  [][2]string{{"", "added.go"}},
			bodies: []string{"@@ -0,0 +1 @@\n+x"},
			want:   []string{"diff --git a/added.go b/added.go"},
		},
		{
			name:   "missing trailing newline added",
			paths:  [][2]string{{"f.go", "f.go"}, {"g.go", "g.go"}},
			bodies: []string{"+x", "+y"},
			want: []string{
				"diff --git a/f.go b/f.go\n+x\ndiff --git a/g.go b/g.go\n+y\n",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := renderDiffs(tt.paths, tt.bodies)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("renderDiffs() = %q, want it to contain %q", got, want)
				}
			}
		})
	}
}

func TestRenderDiffs_Empty(t *testing.T) {
	t.Parallel()
	if got := renderDiffs(nil, nil); got != "" {
		t.Errorf("renderDiffs(nil) = %q, want empty", got)
	}
}

func TestResolveToken(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "glpat-test")
	token, err := resolveToken(vcs.Config{})
	if err != nil {
		t.Fatalf("resolveToken() error = %v", err)
	}
	if token != "glpat-test" {
		t.Errorf("resolveToken() = %q", token)
	}

	t.Setenv("GITLAB_TOKEN", "")
	if _, err := resolveToken(vcs.Config{}); err == nil {
		t.Error("expected error when GITLAB_TOKEN unset")
	}
}

func TestNewClient_RequiresBinding(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "glpat-test")

	if _, err := newClient(vcs.Binding{}, vcs.Config{}); err == nil {
		t.Fatal("expected error for empty binding")
	}

	ops, err := newClient(vcs.Binding{Workspace: "group", RepoSlug: "repo"}, vcs.Config{})
	if err != nil {
		t.Fatalf("newClient() error = %v", err)
	}
	if ops.(*Client).projectID != "group/repo" {
		t.Errorf("projectID = %q", ops.(*Client).projectID)
	}
	if _, ok := vcs.AsReporter(ops); !ok {
		t.Error("gitlab client should implement Reporter")
	}
}
