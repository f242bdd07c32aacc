package issues

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/tracker/internal/models"
)

// Fields holds the raw key/value pairs of a request body. Values are strings, bools or
// nil as produced by a JSON or form decoder.
type Fields map[string]any

// FieldsFromForm converts url-encoded values, keeping the first value of each key.
func FieldsFromForm(form url.Values) Fields {
	fields := make(Fields, len(form))
	for key, v := range FirstValues(form) {
		fields[key] = v
	}
	return fields
}

var (
	createKeys = keySet(models.FieldIssueTitle, models.FieldIssueText, models.FieldCreatedBy,
		models.FieldAssignedTo, models.FieldStatusText)
	updateKeys = keySet(models.FieldID, models.FieldIssueTitle, models.FieldIssueText, models.FieldCreatedBy,
		models.FieldAssignedTo, models.FieldStatusText, models.FieldOpen)
	filterKeys = keySet(models.FieldID, models.FieldIssueTitle, models.FieldIssueText, models.FieldCreatedBy,
		models.FieldAssignedTo, models.FieldStatusText, models.FieldOpen, models.FieldCreatedOn, models.FieldUpdatedOn)
)

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// checkKeys rejects every key outside allowed.
func checkKeys[V any](fields map[string]V, allowed map[string]bool) error {
	var unknown []string
	for key := range fields {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w(s): %s", ErrUnknownField, strings.Join(unknown, ", "))
}

// isEmpty reports whether a body value counts as "not sent".
func isEmpty(v any) bool {
	s, ok := v.(string)
	return ok && s == ""
}

// rejectNulls fails when any value is null. An update cannot clear a field with null.
func rejectNulls(fields Fields) error {
	var keys []string
	for key, v := range fields {
		if v == nil {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return fmt.Errorf("%w for %s: null is not allowed", ErrInvalidValue, strings.Join(keys, ", "))
}

// stringValue returns the value of key as a string. Absent and null values yield "".
func (f Fields) stringValue(key string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w for %s: expected a string", ErrInvalidValue, key)
	}
	return s, nil
}

// ID returns the _id value, or "" when it is absent or not a string.
func (f Fields) ID() string {
	id, _ := f.stringValue(models.FieldID)
	return id
}

func parseBool(key string, v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%w for %s: %q is not a boolean", ErrInvalidValue, key, b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w for %s: expected a boolean", ErrInvalidValue, key)
	}
}

// timeLayouts are accepted for created_on / updated_on filters: the JSON encoding of
// the stored timestamps and the HTTP date format.
var timeLayouts = []string{time.RFC3339Nano, time.RFC1123}

// parseTime turns a filter value into the range it selects. A value without a
// sub-second part selects its whole second, so HTTP dates and plain RFC 3339
// values still match timestamps stored with nanoseconds.
func parseTime(key, v string) (*models.TimeRange, error) {
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(v))
		if err != nil {
			continue
		}
		t = t.UTC()
		if t.Nanosecond() == 0 {
			return models.Second(t), nil
		}
		return models.At(t), nil
	}
	return nil, fmt.Errorf("%w for %s: %q is not a timestamp", ErrInvalidValue, key, v)
}

// decodeCreate maps a create body onto CreateInput.
func decodeCreate(fields Fields) (CreateInput, error) {
	if err := checkKeys(fields, createKeys); err != nil {
		return CreateInput{}, err
	}

	var in CreateInput
	targets := map[string]*string{
		models.FieldIssueTitle: &in.IssueTitle,
		models.FieldIssueText:  &in.IssueText,
		models.FieldCreatedBy:  &in.CreatedBy,
		models.FieldAssignedTo: &in.AssignedTo,
		models.FieldStatusText: &in.StatusText,
	}
	for key, target := range targets {
		s, err := fields.stringValue(key)
		if err != nil {
			return CreateInput{}, err
		}
		*target = s
	}
	return in, nil
}

// buildUpdate converts the non-empty update fields into a store update. _id is skipped.
func buildUpdate(set Fields) (models.IssueUpdate, error) {
	var u models.IssueUpdate
	for key, v := range set {
		if key == models.FieldID {
			continue
		}
		if key == models.FieldOpen {
			b, err := parseBool(key, v)
			if err != nil {
				return models.IssueUpdate{}, err
			}
			u.Open = &b
			continue
		}

		s, ok := v.(string)
		if !ok {
			return models.IssueUpdate{}, fmt.Errorf("%w for %s: expected a string", ErrInvalidValue, key)
		}
		switch key {
		case models.FieldIssueTitle:
			u.IssueTitle = &s
		case models.FieldIssueText:
			u.IssueText = &s
		case models.FieldCreatedBy:
			u.CreatedBy = &s
		case models.FieldAssignedTo:
			u.AssignedTo = &s
		case models.FieldStatusText:
			u.StatusText = &s
		}
	}
	return u, nil
}

// ParseFilter builds the exact-match filter for a project from query parameters.
func ParseFilter(project string, params map[string]string) (models.IssueFilter, error) {
	filter := models.IssueFilter{Project: project}
	if err := checkKeys(params, filterKeys); err != nil {
		return filter, err
	}

	for key, v := range params {
		switch key {
		case models.FieldID:
			filter.ID = &v
		case models.FieldIssueTitle:
			filter.IssueTitle = &v
		case models.FieldIssueText:
			filter.IssueText = &v
		case models.FieldCreatedBy:
			filter.CreatedBy = &v
		case models.FieldAssignedTo:
			filter.AssignedTo = &v
		case models.FieldStatusText:
			filter.StatusText = &v
		case models.FieldOpen:
			b, err := parseBool(key, v)
			if err != nil {
				return filter, err
			}
			filter.Open = &b
		case models.FieldCreatedOn:
			r, err := parseTime(key, v)
			if err != nil {
				return filter, err
			}
			filter.CreatedOn = r
		case models.FieldUpdatedOn:
			r, err := parseTime(key, v)
			if err != nil {
				return filter, err
			}
			filter.UpdatedOn = r
		}
	}
	return filter, nil
}

// FirstValues keeps the first value of every query parameter.
func FirstValues(query url.Values) map[string]string {
	params := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}
