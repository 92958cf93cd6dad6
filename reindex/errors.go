package reindex

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrPlaceRepositoryRequired is returned when no place repository is supplied.
	ErrPlaceRepositoryRequired = errors.New("place repository is required")

	// ErrEncoderRequired is returned when no tag encoder is supplied.
	ErrEncoderRequired = errors.New("tag encoder is required")
)
