package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/db/driver"
)

// newProjectsCmd creates the projects command group.
func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage registered projects",
	}
	cmd.AddCommand(newProjectsListCmd())
	cmd.AddCommand(newProjectsAddCmd())
	return cmd
}

func openStore() (*db.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := db.OpenWithDialect(cfg.Storage.DSN, driver.Dialect(cfg.Storage.Dialect))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate store: %w", err)
			}

			projects, err := store.ListProjects(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tREPO\tBASE\tRAG")
			for _, p := range projects {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s/%s\t%s\t%v\n",
					p.ID, p.Name, p.Provider, p.WorkspaceSlug, p.RepoSlug, p.BaseBranch, p.RagEnabled)
			}
			return w.Flush()
		},
	}
}

func newProjectsAddCmd() *cobra.Command {
	var project db.Project

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate store: %w", err)
			}

			if err := store.SaveProject(cmd.Context(), &project); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "project %d saved\n", project.ID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&project.ID, "id", 0, "project id (required)")
	cmd.Flags().StringVar(&project.Name, "name", "", "project name (required)")
	cmd.Flags().StringVar(&project.Provider, "provider", "", "provider tag: bitbucket_cloud, github, gitlab, bitbucket_server (required)")
	cmd.Flags().StringVar(&project.WorkspaceSlug, "workspace", "", "workspace / owner / project key (required)")
	cmd.Flags().StringVar(&project.RepoSlug, "repo", "", "repository slug (required)")
	cmd.Flags().StringVar(&project.BaseBranch, "base-branch", "main", "base branch for incremental index updates")
	cmd.Flags().BoolVar(&project.RagEnabled, "rag", false, "enable retrieval-index updates")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("workspace")
	cmd.MarkFlagRequired("repo")

	return cmd
}
