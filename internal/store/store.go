package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/tracker/internal/models"
)

// ErrNotFound is returned when no issue has the requested id.
var ErrNotFound = errors.New("issue not found")

// Store is the persistence collaborator for issues: a single collection of issue
// records partitioned by the project field.
type Store interface {
	// Find returns every issue matching all constraints of the filter, oldest first.
	Find(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error)
	// Insert persists a new issue, assigning its ID when empty.
	Insert(ctx context.Context, issue *models.Issue) error
	// UpdateByID applies a partial update. It returns ErrNotFound when no issue has the id.
	// The stored updated_on is max(update.UpdatedOn, previous updated_on + 1ns).
	UpdateByID(ctx context.Context, id string, update models.IssueUpdate) error
	// DeleteByID removes the issue with the id and reports how many records were deleted.
	DeleteByID(ctx context.Context, id string) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the backend named by driver. dsn is a file path for sqlite and a
// connection string for postgres.
func Open(ctx context.Context, driver, dsn string, maxConns int32) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn, maxConns)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", driver)
	}
}

// newULID generates a new ULID string.
func newULID() string {
	return ulid.Make().String()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// dialect captures the SQL differences between the backends.
type dialect struct {
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// boolValue converts a bool into the column's storage representation.
	boolValue func(b bool) any
	// greatest is the two-argument maximum function.
	greatest string
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	boolValue:   func(b bool) any { return boolToInt(b) },
	greatest:    "MAX",
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	boolValue:   func(b bool) any { return b },
	greatest:    "GREATEST",
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// whereClause turns a filter into a WHERE clause and its arguments.
func whereClause(f models.IssueFilter, d dialect) (string, []any) {
	var conditions []string
	var args []any

	add := func(column string, v any) {
		args = append(args, v)
		conditions = append(conditions, column+" = "+d.placeholder(len(args)))
	}
	between := func(column string, r *models.TimeRange) {
		args = append(args, toNanos(r.From), toNanos(r.Until))
		conditions = append(conditions,
			column+" >= "+d.placeholder(len(args)-1)+" AND "+column+" < "+d.placeholder(len(args)))
	}

	if f.Project != "" {
		add("project", f.Project)
	}
	if f.ID != nil {
		add("id", *f.ID)
	}
	if f.IssueTitle != nil {
		add("issue_title", *f.IssueTitle)
	}
	if f.IssueText != nil {
		add("issue_text", *f.IssueText)
	}
	if f.CreatedBy != nil {
		add("created_by", *f.CreatedBy)
	}
	if f.AssignedTo != nil {
		add("assigned_to", *f.AssignedTo)
	}
	if f.StatusText != nil {
		add("status_text", *f.StatusText)
	}
	if f.Open != nil {
		add("open", d.boolValue(*f.Open))
	}
	if f.CreatedOn != nil {
		between("created_on", f.CreatedOn)
	}
	if f.UpdatedOn != nil {
		between("updated_on", f.UpdatedOn)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// setClause turns an update into a SET clause and its arguments.
func setClause(u models.IssueUpdate, d dialect) (string, []any) {
	var sets []string
	var args []any

	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = "+d.placeholder(len(args)))
	}

	if u.IssueTitle != nil {
		add("issue_title", *u.IssueTitle)
	}
	if u.IssueText != nil {
		add("issue_text", *u.IssueText)
	}
	if u.CreatedBy != nil {
		add("created_by", *u.CreatedBy)
	}
	if u.AssignedTo != nil {
		add("assigned_to", *u.AssignedTo)
	}
	if u.StatusText != nil {
		add("status_text", *u.StatusText)
	}
	if u.Open != nil {
		add("open", d.boolValue(*u.Open))
	}

	args = append(args, toNanos(u.UpdatedOn))
	sets = append(sets, fmt.Sprintf("updated_on = %s(%s, updated_on + 1)", d.greatest, d.placeholder(len(args))))

	return strings.Join(sets, ", "), args
}

const issueColumns = `id, project, issue_title, issue_text, created_by, assigned_to, status_text, open, created_on, updated_on`

// rowScanner is satisfied by *sql.Rows and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var createdOn, updatedOn int64
	if err := row.Scan(&issue.ID, &issue.Project, &issue.IssueTitle, &issue.IssueText,
		&issue.CreatedBy, &issue.AssignedTo, &issue.StatusText, &issue.Open,
		&createdOn, &updatedOn); err != nil {
		return nil, fmt.Errorf("scan issue: %w", err)
	}
	issue.CreatedOn = fromNanos(createdOn)
	issue.UpdatedOn = fromNanos(updatedOn)
	return issue, nil
}
