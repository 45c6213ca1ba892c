package entity

import "errors"

// Failure kinds surfaced by the analysis core. Callers match them with errors.Is.
var (
	ErrDecode         = errors.New("decode error")
	ErrInvalidMedia   = errors.New("invalid media")
	ErrEmptyInput     = errors.New("empty input")
	ErrIO             = errors.New("io error")
	ErrAuthentication = errors.New("authentication error")
)

// ErrNotFound is returned by repositories when no record matches.
var ErrNotFound = errors.New("not found")

// IsPermanent reports whether err is a property of the media itself, so that
// running the same analysis again cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrInvalidMedia) ||
		errors.Is(err, ErrAuthentication)
}
