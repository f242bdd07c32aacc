package issues

import "errors"

// Domain errors. Their messages are part of the HTTP contract and are returned to
// callers verbatim under the "error" key.
var (
	ErrRequiredFieldsMissing = errors.New("required field(s) missing")
	ErrNoUpdateFields        = errors.New("no update field(s) sent")
	ErrMissingID             = errors.New("missing _id")
	ErrCouldNotUpdate        = errors.New("could not update")
	ErrCouldNotDelete        = errors.New("could not delete")
)

// Input errors for keys outside the allow-lists and values that cannot be coerced to
// the field's type.
var (
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid value")
)

// IsDomainError reports whether err is one of the documented domain errors, which are
// answered with status 200.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrRequiredFieldsMissing) ||
		errors.Is(err, ErrNoUpdateFields) ||
		errors.Is(err, ErrMissingID) ||
		errors.Is(err, ErrCouldNotUpdate) ||
		errors.Is(err, ErrCouldNotDelete)
}

// IsInputError reports whether err was caused by a malformed key or value.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnknownField) || errors.Is(err, ErrInvalidValue)
}
