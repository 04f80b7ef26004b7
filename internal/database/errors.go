package database

import "errors"

var (
	// ErrNotFound is returned when a keyword or placeholder does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDatabaseNotFound is returned when opening an existing database that
	// is missing.
	ErrDatabaseNotFound = errors.New("database not found")
)
