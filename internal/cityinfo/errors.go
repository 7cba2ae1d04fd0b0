package cityinfo

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrValidationFailed = errors.New("validation failed")
	// ErrStorage wraps commit failures. The caller must not retry.
	ErrStorage = errors.New("storage error")
)
