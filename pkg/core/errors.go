package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrValidation    = errors.New("validation failed")
	ErrDuplicateName = errors.New("category name already exists")
	ErrNotFound      = errors.New("not found")
	ErrStorage       = errors.New("storage failure")
	ErrReadOnly      = errors.New("repository is in read-only mode")
)

// StorageError reports a failed repository call. It matches ErrStorage with
// errors.Is and unwraps to the adapter error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
