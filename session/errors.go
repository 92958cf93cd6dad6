package session

import "errors"

var (
	// ErrSessionRepositoryRequired is returned when no session repository is supplied.
	ErrSessionRepositoryRequired = errors.New("session repository is required")

	// ErrRegistryRequired is returned when no ontology registry is supplied.
	ErrRegistryRequired = errors.New("ontology registry is required")
)
