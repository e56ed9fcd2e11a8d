package service

import (
	"errors"
	"fmt"
)

var (
	ErrIDRequired    = errors.New("id is required")
	ErrNotFound      = errors.New("document not found")
	ErrInvalidScope  = errors.New("invalid scope")
	ErrNoFiles       = errors.New("no files provided")
	ErrStateRequired = errors.New("state is required")
)

// StorageError reports a failed payload operation: no viewable URL could be
// resolved, or an upload/remove failed. NotFound distinguishes a missing
// storage location from a transient failure.
type StorageError struct {
	Op       string
	Key      string
	Message  string
	NotFound bool
	Err      error
}

func (e *StorageError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Key, e.Message)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError reports a failed document-record operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
