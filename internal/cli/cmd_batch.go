package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rostilos/codecrow/internal/analysis"
	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/db/driver"
	"github.com/rostilos/codecrow/internal/events"
	"github.com/rostilos/codecrow/internal/worker"
)

// batchEntry is one line of a batch file.
type batchEntry struct {
	Project int64  `yaml:"project"`
	Branch  string `yaml:"branch"`
	Commit  string `yaml:"commit"`
	Pr      int64  `yaml:"pr,omitempty"`
}

// newBatchCmd creates the analyze-batch command. It reads a YAML list of
// analysis requests and runs them through a bounded worker pool; runs
// touching the same branch still serialize on the branch lock.
func newBatchCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "analyze-batch",
		Short: "Run several branch analyses from a batch file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}
			var entries []batchEntry
			if err := yaml.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("parse batch file: %w", err)
			}
			if len(entries) == 0 {
				return fmt.Errorf("batch file %s holds no requests", file)
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

			pool := worker.NewDispatcher(orch, cfg.Workers, slog.Default())

			// Concurrent runs funnel progress through one publisher so the
			// printed stream stays coherent; each run carries its own id.
			var pub events.Publisher
			var printed chan struct{}
			if verbose {
				pub = events.NewMemoryPublisher()
				stream := pub.Subscribe(events.GlobalRunID)
				printed = make(chan struct{})
				go func() {
					defer close(printed)
					for e := range stream {
						fmt.Fprintf(cmd.ErrOrStderr(), "[%s] [%s] %s\n", e.RunID, e.Stage, e.Message)
					}
				}()
			}

			for _, e := range entries {
				req := analysis.ProcessRequest{
					ProjectID:        e.Project,
					TargetBranchName: e.Branch,
					CommitHash:       e.Commit,
				}
				if e.Pr > 0 {
					pr := e.Pr
					req.SourcePullRequestNumber = &pr
				}
				var sink events.Sink
				if pub != nil {
					sink = events.SinkFor(pub, uuid.NewString())
				}
				if err := pool.Submit(cmd.Context(), req, sink); err != nil {
					return err
				}
			}

			outcomes := pool.Wait()
			if pub != nil {
				pub.Close()
				<-printed
			}

			failed := 0
			for _, out := range outcomes {
				switch {
				case out.Err != nil:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "failed: project %d branch %s: %v\n",
						out.Request.ProjectID, out.Request.TargetBranchName, out.Err)
				case out.Result.Skipped():
					fmt.Fprintf(cmd.OutOrStdout(), "skipped: project %d branch %s: %s\n",
						out.Request.ProjectID, out.Request.TargetBranchName, out.Result.Reason)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "accepted: project %d branch %s, %d changed files\n",
						out.Request.ProjectID, out.Request.TargetBranchName, out.Result.ChangedFiles)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d analyses failed", failed, len(entries))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML batch file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}
