package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	// ErrDuplicate is returned by the store when a notification with the same
	// (id, tenant) pair has already been persisted.
	ErrDuplicate = errors.New("duplicate notification")
)
