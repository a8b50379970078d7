package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Project represents a registered project with its VCS and analysis bindings.
// The analysis pipeline treats projects as read-only.
type Project struct {
	ID            int64
	Name          string
	Workspace     string
	Namespace     string
	Provider      string // provider tag: bitbucket_cloud, github, gitlab, bitbucket_server
	WorkspaceSlug string
	RepoSlug      string
	VcsConnection string // connection reference (token env var or credential id)
	BaseBranch    string
	RagEnabled    bool
	CreatedAt     time.Time
}

// HasVcs reports whether the project carries an effective VCS binding.
func (p *Project) HasVcs() bool {
	return p.Provider != "" && p.RepoSlug != ""
}

// SaveProject creates or updates a project.
func (s *Store) SaveProject(ctx context.Context, p *Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.Exec(ctx, `
		INSERT INTO projects (id, name, workspace, namespace, provider, workspace_slug, repo_slug, vcs_connection, base_branch, rag_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			workspace = excluded.workspace,
			namespace = excluded.namespace,
			provider = excluded.provider,
			workspace_slug = excluded.workspace_slug,
			repo_slug = excluded.repo_slug,
			vcs_connection = excluded.vcs_connection,
			base_branch = excluded.base_branch,
			rag_enabled = excluded.rag_enabled
	`,
		p.ID,
		p.Name,
		p.Workspace,
		p.Namespace,
		p.Provider,
		p.WorkspaceSlug,
		p.RepoSlug,
		p.VcsConnection,
		p.BaseBranch,
		p.RagEnabled,
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID. Returns (nil, nil) if not found.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.QueryRow(ctx, `
		SELECT id, name, workspace, namespace, provider, workspace_slug, repo_slug, vcs_connection, base_branch, rag_enabled, created_at
		FROM projects WHERE id = ?
	`, id)

	var p Project
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &p.Workspace, &p.Namespace, &p.Provider,
		&p.WorkspaceSlug, &p.RepoSlug, &p.VcsConnection, &p.BaseBranch, &p.RagEnabled, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// ListProjects returns all registered projects ordered by ID.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.Query(ctx, `
		SELECT id, name, workspace, namespace, provider, workspace_slug, repo_slug, vcs_connection, base_branch, rag_enabled, created_at
		FROM projects ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*Project
	for rows.Next() {
		var p Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Workspace, &p.Namespace, &p.Provider,
			&p.WorkspaceSlug, &p.RepoSlug, &p.VcsConnection, &p.BaseBranch, &p.RagEnabled, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}
