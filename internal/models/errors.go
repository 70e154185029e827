package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUpstream          = errors.New("upstream failure")

	// ErrDocumentNotFound means no document with that name is registered
	// against the request.
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)
	// ErrStorageIntegrity means a registered document is missing from the
	// artifact store.
	ErrStorageIntegrity = fmt.Errorf("document artifact missing from storage: %w", ErrNotFound)
	// ErrDocumentExists is returned by the registry when the (request,
	// template) pair is already taken.
	ErrDocumentExists = errors.New("document already exists")
)

// ValidationError carries per-field problems. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a problem for a field, keeping the first message.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// HasErrors reports whether any field problem was recorded.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UpstreamError wraps a failure of an external collaborator such as the
// rasterizer or the artifact store.
type UpstreamError struct {
	Component string
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Component, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Upstream wraps err as an UpstreamError unless it is nil.
func Upstream(component string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Component: component, Err: err}
}
