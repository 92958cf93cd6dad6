package session

import "github.com/google/uuid"

// NewID returns a fresh random session identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an identifier produced by NewID.
// Callers may use other identifiers; this only helps clients that want to
// reject garbage early.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
