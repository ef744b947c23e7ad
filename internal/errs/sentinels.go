// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested document or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an optimistic concurrency failure: the stored
	// revision no longer matches the revision the write was based on.
	// Callers re-read and retry explicitly; nothing retries automatically.
	ErrConflict = errors.New("revision conflict")

	// ErrAlreadyExists indicates a uniqueness violation (e.g. username taken,
	// or a live session already present at the target path).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication. Callers must not
	// distinguish "no such user" from "wrong password".
	ErrUnauthorized = errors.New("unauthorized")
)
