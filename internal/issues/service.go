// Package issues implements the create, query, update and delete operations on
// project-scoped issue records.
package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

// V validates request structs tagged with `validate`.
var V = validator.New()

// CreateInput is the body of a create request.
type CreateInput struct {
	IssueTitle string `json:"issue_title" validate:"required"`
	IssueText  string `json:"issue_text" validate:"required"`
	CreatedBy  string `json:"created_by" validate:"required"`
	AssignedTo string `json:"assigned_to"`
	StatusText string `json:"status_text"`
}

// Service runs the issue operations against a store.
type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a service. A nil logger discards log output.
func NewService(s store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

func checkProject(project string) error {
	if strings.TrimSpace(project) == "" {
		return fmt.Errorf("%w for %s: project is empty", ErrInvalidValue, models.FieldProject)
	}
	return nil
}

// CreateFromFields decodes a raw body and creates the issue.
func (s *Service) CreateFromFields(ctx context.Context, project string, fields Fields) (*models.Issue, error) {
	in, err := decodeCreate(fields)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, project, in)
}

// Create validates the input, stamps the system fields and persists a new issue.
func (s *Service) Create(ctx context.Context, project string, in CreateInput) (*models.Issue, error) {
	if err := checkProject(project); err != nil {
		return nil, err
	}
	if err := V.Struct(in); err != nil {
		return nil, ErrRequiredFieldsMissing
	}

	now := s.now().UTC()
	issue := &models.Issue{
		Project:    project,
		IssueTitle: in.IssueTitle,
		IssueText:  in.IssueText,
		CreatedBy:  in.CreatedBy,
		AssignedTo: in.AssignedTo,
		StatusText: in.StatusText,
		Open:       true,
		CreatedOn:  now,
		UpdatedOn:  now,
	}
	if err := s.store.Insert(ctx, issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	s.logger.Info("issue created", "id", issue.ID, "project", project)
	return issue, nil
}

// Query returns the issues of a project matching every parameter exactly.
func (s *Service) Query(ctx context.Context, project string, params map[string]string) ([]*models.Issue, error) {
	if err := checkProject(project); err != nil {
		return nil, err
	}
	filter, err := ParseFilter(project, params)
	if err != nil {
		return nil, err
	}

	issues, err := s.store.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	s.logger.Debug("issues queried", "project", project, "filters", len(params), "matches", len(issues))
	return issues, nil
}

// Update applies the non-empty body fields to the issue named by _id and returns the
// echoed _id. The checks run in a fixed order: a body with exactly one non-empty key
// fails with ErrNoUpdateFields, a body with none fails with ErrMissingID, and a body
// without _id fails with ErrCouldNotUpdate. Null values are rejected up front.
func (s *Service) Update(ctx context.Context, fields Fields) (string, error) {
	id, err := fields.stringValue(models.FieldID)
	if err != nil {
		return "", err
	}
	if err := checkKeys(fields, updateKeys); err != nil {
		return id, err
	}
	if err := rejectNulls(fields); err != nil {
		return id, err
	}

	set := make(Fields, len(fields))
	for key, v := range fields {
		if !isEmpty(v) {
			set[key] = v
		}
	}

	switch len(set) {
	case 1:
		return id, ErrNoUpdateFields
	case 0:
		return id, ErrMissingID
	}
	if id == "" {
		return "", ErrCouldNotUpdate
	}

	update, err := buildUpdate(set)
	if err != nil {
		return id, err
	}
	update.UpdatedOn = s.now().UTC()

	if err := s.store.UpdateByID(ctx, id, update); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return id, ErrCouldNotUpdate
		}
		return id, fmt.Errorf("update issue: %w", err)
	}

	s.logger.Info("issue updated", "id", id, "fields", len(set)-1)
	return id, nil
}

// Delete removes the issue with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}

	n, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if n == 0 {
		return ErrCouldNotDelete
	}

	s.logger.Info("issue deleted", "id", id)
	return nil
}
