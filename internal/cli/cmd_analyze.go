package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rostilos/codecrow/internal/ai"
	"github.com/rostilos/codecrow/internal/analysis"
	"github.com/rostilos/codecrow/internal/config"
	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/db/driver"
	"github.com/rostilos/codecrow/internal/events"
	"github.com/rostilos/codecrow/internal/lock"
	"github.com/rostilos/codecrow/internal/rag"
	"github.com/rostilos/codecrow/internal/vcs"

	// Provider registrations.
	_ "github.com/rostilos/codecrow/internal/vcs/bitbucket"
	_ "github.com/rostilos/codecrow/internal/vcs/bitbucketserver"
	_ "github.com/rostilos/codecrow/internal/vcs/github"
	_ "github.com/rostilos/codecrow/internal/vcs/gitlab"
)

// newAnalyzeCmd creates the analyze command.
func newAnalyzeCmd() *cobra.Command {
	var (
		projectID int64
		branch    string
		commit    string
		prNumber  int64
		report    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a branch analysis for one commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			store, err := db.OpenWithDialect(cfg.Storage.DSN, driver.Dialect(cfg.Storage.Dialect))
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate store: %w", err)
			}

			orch, err := buildOrchestrator(cfg, store)
			if err != nil {
				return err
			}

			req := analysis.ProcessRequest{
				ProjectID:        projectID,
				TargetBranchName: branch,
				CommitHash:       commit,
			}
			if prNumber > 0 {
				req.SourcePullRequestNumber = &prNumber
			}

			sink := progressSink(cmd)
			result, err := orch.Process(cmd.Context(), req, sink)
			if err != nil {
				return err
			}

			if result.Skipped() {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped: %s\n", result.Reason)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted: branch %d, %d changed files\n",
				result.BranchID, result.ChangedFiles)

			if report && req.SourcePullRequestNumber != nil {
				if err := postSummary(cmd, cfg, store, req, result); err != nil {
					slog.Warn("posting the analysis summary failed", "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&projectID, "project", 0, "project id (required)")
	cmd.Flags().StringVar(&branch, "branch", "", "target branch name (required)")
	cmd.Flags().StringVar(&commit, "commit", "", "commit hash to analyze (required)")
	cmd.Flags().Int64Var(&prNumber, "pr", 0, "source pull request number")
	cmd.Flags().BoolVar(&report, "report", false, "post a summary comment to the pull request")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("branch")
	cmd.MarkFlagRequired("commit")

	return cmd
}

// buildOrchestrator wires the orchestrator with its live collaborators.
func buildOrchestrator(cfg *config.Config, store *db.Store) (*analysis.Orchestrator, error) {
	aiClient, err := ai.NewHTTPClient(ai.HTTPClientConfig{
		Endpoint:     cfg.Ai.Endpoint,
		APIKeyEnvVar: cfg.Ai.APIKeyEnvVar,
		TokenLimit:   cfg.Ai.TokenLimit,
		Timeout:      cfg.Ai.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var ragOps rag.Operations
	if cfg.Rag.Enabled {
		ragClient, err := rag.NewHTTPClient(cfg.Rag.Endpoint, cfg.Rag.Timeout)
		if err != nil {
			return nil, err
		}
		ragOps = ragClient
	}

	locks := lock.NewService(store, cfg.Lock.TTL, cfg.Lock.PollInterval, slog.Default())

	return analysis.New(analysis.Options{
		Store:       store,
		Locks:       locks,
		Resolver:    providerResolver(cfg),
		Builder:     &vcs.RequestBuilder{TokenLimit: cfg.Ai.TokenLimit},
		AI:          aiClient,
		Rag:         ragOps,
		Ignore:      cfg.Ignored,
		LockMaxWait: cfg.Lock.MaxWait,
		Logger:      slog.Default(),
	}), nil
}

// providerResolver maps a project's provider tag and binding onto a
// registered provider client.
func providerResolver(cfg *config.Config) analysis.OperationsResolver {
	return func(project *db.Project) (vcs.Operations, error) {
		vcsCfg := cfg.Vcs[project.Provider]
		return vcs.NewOperations(
			vcs.ProviderType(project.Provider),
			vcs.Binding{Workspace: project.WorkspaceSlug, RepoSlug: project.RepoSlug},
			vcs.Config{
				BaseURL:     vcsCfg.BaseURL,
				TokenEnvVar: vcsCfg.TokenEnvVar,
				Timeout:     vcsCfg.Timeout,
			},
		)
	}
}

// progressSink prints pipeline stages when verbose.
func progressSink(cmd *cobra.Command) events.Sink {
	if !verbose {
		return nil
	}
	return func(e events.Event) {
		var fields []string
		for k, v := range e.Fields {
			fields = append(fields, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s %s\n", e.Stage, e.Message, strings.Join(fields, " "))
	}
}

// postSummary writes a short comment on the source pull request.
func postSummary(cmd *cobra.Command, cfg *config.Config, store *db.Store, req analysis.ProcessRequest, result *analysis.ProcessResult) error {
	project, err := store.GetProject(cmd.Context(), req.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", req.ProjectID, err)
	}
	if project == nil {
		return fmt.Errorf("project %d not found", req.ProjectID)
	}

	ops, err := providerResolver(cfg)(project)
	if err != nil {
		return err
	}
	reporter, ok := vcs.AsReporter(ops)
	if !ok {
		return fmt.Errorf("provider %s cannot post comments", project.Provider)
	}

	branch, err := store.GetBranch(cmd.Context(), req.ProjectID, req.TargetBranchName)
	if err != nil {
		return fmt.Errorf("load branch %s: %w", req.TargetBranchName, err)
	}
	if branch == nil {
		return fmt.Errorf("branch %s not found", req.TargetBranchName)
	}

	body := fmt.Sprintf(
		"Branch analysis of `%s` at `%s`: %d changed files, %d open issues (%d high, %d medium, %d low, %d info).",
		req.TargetBranchName, req.CommitHash, result.ChangedFiles,
		branch.TotalIssueCount, branch.Counters.High, branch.Counters.Medium,
		branch.Counters.Low, branch.Counters.Info)

	return reporter.PostSummary(cmd.Context(), *req.SourcePullRequestNumber, body)
}
