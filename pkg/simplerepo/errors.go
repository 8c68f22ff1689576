package simplerepo

import (
	"errors"
	"fmt"
)

// Common sentinel errors returned by the service and its backends. Callers
// should match them with errors.Is.
var (
	// ErrBadArgument indicates an invalid or incomplete request.
	ErrBadArgument = errors.New("bad argument")
	// ErrResourceNotFound indicates the resource or content does not exist,
	// or is hidden from the caller.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrResourceAlreadyExists indicates an identifier collision on create.
	ErrResourceAlreadyExists = errors.New("resource already exists")
	// ErrAccessForbidden indicates the caller lacks the required permission.
	ErrAccessForbidden = errors.New("access forbidden")
	// ErrUnsupportedMediaType indicates an unsupported packaging media type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrBackendNotFound indicates an unknown versioning service name.
	ErrBackendNotFound = errors.New("versioning backend not found")
	// ErrInternal indicates a server-side failure.
	ErrInternal = errors.New("internal error")
)

// ResourceError provides context about resource operation failures.
type ResourceError struct {
	ResourceID string
	Op         string
	Err        error
}

func (e *ResourceError) Error() string {
	if e.ResourceID == "" {
		return fmt.Sprintf("resource %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("resource %s %s: %v", e.Op, e.ResourceID, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// StorageError provides context about storage backend failures.
type StorageError struct {
	Backend string
	Path    string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s %s: %v", e.Backend, e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
