package storage

import "errors"

// ErrWriteFailed is returned when an artefact could not be persisted. The
// caller's in-memory mutation is lost.
var ErrWriteFailed = errors.New("store write failed")
