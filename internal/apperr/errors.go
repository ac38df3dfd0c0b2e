// Package apperr holds the sentinel errors shared across linkshot packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrCorruptData   = errors.New("corrupt data")
	ErrIO            = errors.New("io error")
	ErrInvalidKey    = errors.New("invalid cache key")
	ErrAlreadyExists = errors.New("already exists")
)
