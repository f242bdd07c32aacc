package models

import "time"

// Field names as they appear in request bodies, query strings and JSON responses.
const (
	FieldID         = "_id"
	FieldProject    = "project"
	FieldIssueTitle = "issue_title"
	FieldIssueText  = "issue_text"
	FieldCreatedBy  = "created_by"
	FieldAssignedTo = "assigned_to"
	FieldStatusText = "status_text"
	FieldOpen       = "open"
	FieldCreatedOn  = "created_on"
	FieldUpdatedOn  = "updated_on"
)

// Issue is a single tracked record belonging to exactly one project.
type Issue struct {
	ID         string    `json:"_id"`
	Project    string    `json:"project"`
	IssueTitle string    `json:"issue_title"`
	IssueText  string    `json:"issue_text"`
	CreatedBy  string    `json:"created_by"`
	AssignedTo string    `json:"assigned_to"`
	StatusText string    `json:"status_text"`
	Open       bool      `json:"open"`
	CreatedOn  time.Time `json:"created_on"`
	UpdatedOn  time.Time `json:"updated_on"`
}

// IssueFilter is an exact-match conjunctive filter. Nil fields are not constrained;
// a non-nil empty string matches records whose field is empty.
type IssueFilter struct {
	Project    string
	ID         *string
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
	CreatedOn  *TimeRange
	UpdatedOn  *TimeRange
}

// TimeRange matches the instants in [From, Until).
type TimeRange struct {
	From  time.Time
	Until time.Time
}

// At returns a range holding exactly t.
func At(t time.Time) *TimeRange {
	return &TimeRange{From: t, Until: t.Add(time.Nanosecond)}
}

// Second returns the range covering the whole second that starts at t.
func Second(t time.Time) *TimeRange {
	return &TimeRange{From: t, Until: t.Add(time.Second)}
}

// IssueUpdate is a partial replacement of the mutable fields of an issue.
// UpdatedOn is always applied.
type IssueUpdate struct {
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
	UpdatedOn  time.Time
}
