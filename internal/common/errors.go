package common

import "errors"

var (
	// bad package name, bad path, malformed format string, bad selector
	ErrValidation = errors.New("validation error")

	// wrong or missing entity passed to a catalog add operation
	ErrTypeMismatch = errors.New("type mismatch")

	// unknown note field name; lookups return nil instead
	ErrNotFound = errors.New("not found")

	// underlying database engine failure
	ErrStorage = errors.New("storage error")

	// finalizing or closing a package that is already closed
	ErrState = errors.New("invalid state")

	// a scoped package operation failed and no archive was written
	ErrNothingPersisted = errors.New("temporary database deleted, no package file saved")
)
