package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/codecrow/internal/analysis"
	"github.com/rostilos/codecrow/internal/config"
	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/vcs"
)

func TestAnalyzeCmd_RequiresFlags(t *testing.T) {
	cmd := newAnalyzeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestProviderResolver_UsesProviderConfig(t *testing.T) {
	t.Setenv("CUSTOM_GH_TOKEN", "ghp_x")

	cfg := config.Default()
	cfg.Vcs = map[string]config.VcsConfig{
		"github": {TokenEnvVar: "CUSTOM_GH_TOKEN"},
	}

	resolver := providerResolver(cfg)
	ops, err := resolver(&db.Project{
		Provider:      "github",
		WorkspaceSlug: "acme",
		RepoSlug:      "widgets",
	})
	require.NoError(t, err)
	_, ok := vcs.AsReporter(ops)
	assert.True(t, ok)
}

func TestProviderResolver_UnknownProvider(t *testing.T) {
	resolver := providerResolver(config.Default())
	_, err := resolver(&db.Project{Provider: "svn", WorkspaceSlug: "a", RepoSlug: "b"})
	require.Error(t, err)
}

func TestPostSummary_MissingProjectAndBranch(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_x")
	store := db.NewTestStore(t)
	cmd := newAnalyzeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())

	req := analysis.ProcessRequest{ProjectID: 7, TargetBranchName: "main", CommitHash: "x"}
	err := postSummary(cmd, config.Default(), store, req, &analysis.ProcessResult{})
	require.Error(t, err)
	assert.Equal(t, "project 7 not found", err.Error())

	require.NoError(t, store.SaveProject(cmd.Context(), &db.Project{
		ID: 7, Name: "demo", Provider: "github", WorkspaceSlug: "acme", RepoSlug: "widgets",
	}))
	pr := int64(3)
	req.SourcePullRequestNumber = &pr
	err = postSummary(cmd, config.Default(), store, req, &analysis.ProcessResult{})
	require.Error(t, err)
	assert.Equal(t, "branch main not found", err.Error())
}
