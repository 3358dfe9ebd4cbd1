package store

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict is matched by every *ConflictError.
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicateEmail  = errors.New("email already registered")
	// ErrSessionNotFound covers unknown and revoked tokens in every session store.
	ErrSessionNotFound = errors.New("session not found")
)

// ConflictError is returned by UpdateNoteIfVersion when the stored version
// differs from the expected one. Current is the note as stored at that moment.
type ConflictError struct {
	Expected int64
	Current  Note
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: expected version %d, stored version %d", ErrVersionConflict, e.Expected, e.Current.Version)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
