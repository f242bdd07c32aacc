package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joescharf/tracker/internal/models"
)

// PostgresStore implements Store on a PostgreSQL connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database described by dsn.
// maxConns <= 0 keeps the pgxpool default.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate applies the embedded postgres migrations that have not run yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations/postgres")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = $1", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/postgres/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Find(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	where, args := whereClause(filter, postgresDialect)
	query := "SELECT " + issueColumns + " FROM issues" + where + " ORDER BY created_on, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	defer rows.Close()

	issues := []*models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}

	_, err := s.pool.Exec(ctx,
		"INSERT INTO issues ("+issueColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		issue.ID, issue.Project, issue.IssueTitle, issue.IssueText, issue.CreatedBy,
		issue.AssignedTo, issue.StatusText, issue.Open,
		toNanos(issue.CreatedOn), toNanos(issue.UpdatedOn),
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateByID(ctx context.Context, id string, update models.IssueUpdate) error {
	set, args := setClause(update, postgresDialect)
	args = append(args, id)
	query := fmt.Sprintf("UPDATE issues SET %s WHERE id = $%d", set, len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update issue %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM issues WHERE id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("delete issue: %w", err)
	}
	return tag.RowsAffected(), nil
}
