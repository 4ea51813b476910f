package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds reported by the service. Every error returned from a Service
// method matches exactly one of ErrValidation, ErrNotFound, ErrStorage or
// ErrPersistence under errors.Is; the cause stays reachable as well.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrStorage     = errors.New("asset storage failure")
	ErrPersistence = errors.New("record persistence failure")

	// ErrConflict is returned by record stores when a conditional write loses
	// to a concurrent one. The service reports it together with ErrPersistence.
	ErrConflict = errors.New("concurrent modification")
)

// Problem is a single invalid field.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a request.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) add(field, msg string) {
	e.Problems = append(e.Problems, Problem{Field: field, Message: msg})
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + " " + p.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func notFound(id string) error {
	return fmt.Errorf("item %s: %w", id, ErrNotFound)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
