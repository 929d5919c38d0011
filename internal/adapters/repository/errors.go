package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrDatabaseNotFound = errors.New("database not found")
	ErrQueryFailed      = errors.New("query failed")
)
