package config

import "errors"

var (
	// ErrNotFound is returned when a requested backend does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a backend name is already taken.
	ErrAlreadyExists = errors.New("already exists")
)
