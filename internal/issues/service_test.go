package issues

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewService(s, nil)
}

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func createSample(t *testing.T, svc *Service, project, title, createdBy string) *models.Issue {
	t.Helper()
	issue, err := svc.Create(context.Background(), project, CreateInput{
		IssueTitle: title,
		IssueText:  "body of " + title,
		CreatedBy:  createdBy,
	})
	require.NoError(t, err)
	return issue
}

func TestCreate_AllFields(t *testing.T) {
	svc := newTestService(t)
	svc.now = fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	issue, err := svc.Create(context.Background(), "apitest", CreateInput{
		IssueTitle: "Title",
		IssueText:  "text",
		CreatedBy:  "Functional Test - Every field",
		AssignedTo: "Chai and Mocha",
		StatusText: "In QA",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, "apitest", issue.Project)
	assert.Equal(t, "Title", issue.IssueTitle)
	assert.Equal(t, "text", issue.IssueText)
	assert.Equal(t, "Functional Test - Every field", issue.CreatedBy)
	assert.Equal(t, "Chai and Mocha", issue.AssignedTo)
	assert.Equal(t, "In QA", issue.StatusText)
	assert.True(t, issue.Open)
	assert.Equal(t, issue.CreatedOn, issue.UpdatedOn)
}

func TestCreate_OptionalFieldsDefaultEmpty(t *testing.T) {
	svc := newTestService(t)

	issue := createSample(t, svc, "apitest", "Title", "alice")
	assert.Equal(t, "", issue.AssignedTo)
	assert.Equal(t, "", issue.StatusText)

	found, err := svc.Query(context.Background(), "apitest", nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "", found[0].AssignedTo)
	assert.Equal(t, "", found[0].StatusText)
}

func TestCreate_RequiredFieldsMissing(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"no title", CreateInput{IssueText: "t", CreatedBy: "c"}},
		{"no text", CreateInput{IssueTitle: "t", CreatedBy: "c"}},
		{"no created_by", CreateInput{IssueTitle: "t", IssueText: "t"}},
		{"nothing", CreateInput{AssignedTo: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			ctx := context.Background()

			_, err := svc.Create(ctx, "apitest", tt.in)
			require.ErrorIs(t, err, ErrRequiredFieldsMissing)
			assert.True(t, IsDomainError(err))

			found, err := svc.Query(ctx, "apitest", nil)
			require.NoError(t, err)
			assert.Empty(t, found, "no record should be persisted")
		})
	}
}

func TestCreate_EmptyProject(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), " ", CreateInput{IssueTitle: "t", IssueText: "t", CreatedBy: "c"})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestCreateFromFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issue, err := svc.CreateFromFields(ctx, "apitest", Fields{
		models.FieldIssueTitle: "Title",
		models.FieldIssueText:  "text",
		models.FieldCreatedBy:  "alice",
		models.FieldAssignedTo: nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "Title", issue.IssueTitle)
	assert.Equal(t, "", issue.AssignedTo)

	_, err = svc.CreateFromFields(ctx, "apitest", Fields{
		models.FieldIssueTitle: "Title",
		models.FieldIssueText:  "text",
		models.FieldCreatedBy:  "alice",
		models.FieldOpen:       "false",
	})
	require.ErrorIs(t, err, ErrUnknownField)
	assert.Contains(t, err.Error(), "open")

	_, err = svc.CreateFromFields(ctx, "apitest", Fields{
		models.FieldIssueTitle: true,
		models.FieldIssueText:  "text",
		models.FieldCreatedBy:  "alice",
	})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = svc.CreateFromFields(ctx, "apitest", Fields{models.FieldIssueTitle: "only title"})
	require.ErrorIs(t, err, ErrRequiredFieldsMissing)
}

func TestQuery_Filters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first := createSample(t, svc, "apitest", "first", "Creator")
	createSample(t, svc, "apitest", "second", "Other")
	third := createSample(t, svc, "apitest", "third", "Creator")
	createSample(t, svc, "elsewhere", "fourth", "Creator")

	_, err := svc.Update(ctx, Fields{models.FieldID: third.ID, models.FieldOpen: false})
	require.NoError(t, err)

	all, err := svc.Query(ctx, "apitest", map[string]string{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byCreator, err := svc.Query(ctx, "apitest", map[string]string{models.FieldCreatedBy: "Creator"})
	require.NoError(t, err)
	require.Len(t, byCreator, 2)
	for _, issue := range byCreator {
		assert.Equal(t, "Creator", issue.CreatedBy)
	}

	openByCreator, err := svc.Query(ctx, "apitest", map[string]string{
		models.FieldOpen:      "true",
		models.FieldCreatedBy: "Creator",
	})
	require.NoError(t, err)
	require.Len(t, openByCreator, 1)
	assert.Equal(t, first.ID, openByCreator[0].ID)

	closed, err := svc.Query(ctx, "apitest", map[string]string{models.FieldOpen: "false"})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, third.ID, closed[0].ID)

	none, err := svc.Query(ctx, "apitest", map[string]string{models.FieldCreatedBy: "Nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestQuery_TimestampCoercion(t *testing.T) {
	svc := newTestService(t)
	svc.now = fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 250, time.UTC))
	ctx := context.Background()

	issue := createSample(t, svc, "apitest", "stamped", "alice")
	createSample(t, svc, "apitest", "later", "alice")

	found, err := svc.Query(ctx, "apitest", map[string]string{
		models.FieldCreatedOn: issue.CreatedOn.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, issue.ID, found[0].ID)

	// Whole-second formats select every instant within that second.
	for _, v := range []string{
		issue.CreatedOn.Format(http.TimeFormat),
		issue.CreatedOn.Format(time.RFC3339),
	} {
		found, err = svc.Query(ctx, "apitest", map[string]string{models.FieldCreatedOn: v})
		require.NoError(t, err)
		require.Len(t, found, 1, v)
		assert.Equal(t, issue.ID, found[0].ID)
	}

	found, err = svc.Query(ctx, "apitest", map[string]string{
		models.FieldUpdatedOn: issue.UpdatedOn.Add(-time.Second).Format(http.TimeFormat),
	})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = svc.Query(ctx, "apitest", map[string]string{models.FieldUpdatedOn: "yesterday"})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestQuery_RejectsUnknownAndInvalid(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Query(ctx, "apitest", map[string]string{"severity": "high", "project": "x"})
	require.ErrorIs(t, err, ErrUnknownField)
	assert.Contains(t, err.Error(), "project, severity")
	assert.True(t, IsInputError(err))

	_, err = svc.Query(ctx, "apitest", map[string]string{models.FieldOpen: "maybe"})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestUpdate_Success(t *testing.T) {
	svc := newTestService(t)
	svc.now = fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	issue := createSample(t, svc, "apitest", "title", "alice")

	id, err := svc.Update(ctx, Fields{
		models.FieldID:         issue.ID,
		models.FieldIssueText:  "changed",
		models.FieldAssignedTo: "",
	})
	require.NoError(t, err)
	assert.Equal(t, issue.ID, id)

	found, err := svc.Query(ctx, "apitest", map[string]string{models.FieldID: issue.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "changed", found[0].IssueText)
	assert.Equal(t, "", found[0].AssignedTo, "empty values are not applied")
	assert.True(t, found[0].UpdatedOn.After(issue.UpdatedOn))
	assert.True(t, found[0].CreatedOn.Equal(issue.CreatedOn))
}

func TestUpdate_OpenFalseCountsAsField(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issue := createSample(t, svc, "apitest", "title", "alice")

	_, err := svc.Update(ctx, Fields{models.FieldID: issue.ID, models.FieldOpen: false})
	require.NoError(t, err)

	found, err := svc.Query(ctx, "apitest", map[string]string{models.FieldID: issue.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.False(t, found[0].Open)

	// Reopening is allowed.
	_, err = svc.Update(ctx, Fields{models.FieldID: issue.ID, models.FieldOpen: "true"})
	require.NoError(t, err)

	found, err = svc.Query(ctx, "apitest", map[string]string{models.FieldID: issue.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Open)
}

func TestUpdate_UpdatedOnStrictlyIncreases(t *testing.T) {
	svc := newTestService(t)
	frozen := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }
	ctx := context.Background()

	issue := createSample(t, svc, "apitest", "title", "alice")

	prev := issue.UpdatedOn
	for _, status := range []string{"a", "b", "c"} {
		_, err := svc.Update(ctx, Fields{models.FieldID: issue.ID, models.FieldStatusText: status})
		require.NoError(t, err)

		found, err := svc.Query(ctx, "apitest", map[string]string{models.FieldID: issue.ID})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.True(t, found[0].UpdatedOn.After(prev))
		prev = found[0].UpdatedOn
	}
}

func TestUpdate_ErrorOrdering(t *testing.T) {
	svc := newTestService(t)
	issue := createSample(t, svc, "apitest", "title", "alice")

	tests := []struct {
		name    string
		fields  Fields
		wantErr error
		wantID  string
	}{
		{"only _id", Fields{models.FieldID: issue.ID}, ErrNoUpdateFields, issue.ID},
		{"_id with empty values", Fields{models.FieldID: issue.ID, models.FieldIssueTitle: "", models.FieldStatusText: ""}, ErrNoUpdateFields, issue.ID},
		{"empty body", Fields{}, ErrMissingID, ""},
		{"only empty values", Fields{models.FieldIssueTitle: "", models.FieldID: ""}, ErrMissingID, ""},
		{"no _id", Fields{models.FieldIssueTitle: "a", models.FieldIssueText: "b"}, ErrCouldNotUpdate, ""},
		{"unknown _id", Fields{models.FieldID: "01JUNKNOWN", models.FieldIssueTitle: "a"}, ErrCouldNotUpdate, "01JUNKNOWN"},
		{"malformed _id", Fields{models.FieldID: "not an id", models.FieldIssueTitle: "a"}, ErrCouldNotUpdate, "not an id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.Update(context.Background(), tt.fields)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsDomainError(err))
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestUpdate_InputErrors(t *testing.T) {
	svc := newTestService(t)
	issue := createSample(t, svc, "apitest", "title", "alice")
	ctx := context.Background()

	id, err := svc.Update(ctx, Fields{models.FieldID: issue.ID, "created_on": "2020-01-01T00:00:00Z"})
	require.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, issue.ID, id)

	_, err = svc.Update(ctx, Fields{models.FieldID: issue.ID, models.FieldOpen: "sometimes"})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = svc.Update(ctx, Fields{models.FieldID: issue.ID, models.FieldIssueTitle: 42.0})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = svc.Update(ctx, Fields{models.FieldID: 7.0, models.FieldIssueTitle: "x"})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestUpdate_NullRejected(t *testing.T) {
	svc := newTestService(t)
	issue := createSample(t, svc, "apitest", "title", "alice")
	ctx := context.Background()

	tests := []struct {
		name   string
		fields Fields
		wantID string
	}{
		{"null title", Fields{models.FieldID: issue.ID, models.FieldIssueTitle: nil}, issue.ID},
		{"null next to a value", Fields{models.FieldID: issue.ID, models.FieldIssueText: "x", models.FieldAssignedTo: nil}, issue.ID},
		{"null _id", Fields{models.FieldID: nil, models.FieldIssueTitle: "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.Update(ctx, tt.fields)
			require.ErrorIs(t, err, ErrInvalidValue)
			assert.Contains(t, err.Error(), "null is not allowed")
			assert.True(t, IsInputError(err))
			assert.Equal(t, tt.wantID, id)
		})
	}

	found, err := svc.Query(ctx, "apitest", map[string]string{models.FieldID: issue.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "title", found[0].IssueTitle)
	assert.Equal(t, "body of title", found[0].IssueText)
	assert.True(t, found[0].UpdatedOn.Equal(issue.UpdatedOn))
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issue := createSample(t, svc, "apitest", "title", "alice")

	require.NoError(t, svc.Delete(ctx, issue.ID))

	found, err := svc.Query(ctx, "apitest", nil)
	require.NoError(t, err)
	assert.Empty(t, found)

	err = svc.Delete(ctx, issue.ID)
	require.ErrorIs(t, err, ErrCouldNotDelete)

	err = svc.Delete(ctx, "")
	require.ErrorIs(t, err, ErrMissingID)
}

func TestFieldsFromForm_FirstValueWins(t *testing.T) {
	form := url.Values{
		models.FieldID:        {"a", "b"},
		models.FieldStatusText: {"x"},
	}
	fields := FieldsFromForm(form)
	assert.Equal(t, "a", fields.ID())
	assert.Equal(t, "x", fields[models.FieldStatusText])
}

func TestIsDomainError_Wrapped(t *testing.T) {
	err := errors.Join(errors.New("context"), ErrCouldNotDelete)
	assert.True(t, IsDomainError(err))
	assert.False(t, IsInputError(err))
	assert.False(t, IsDomainError(errors.New("boom")))
}
