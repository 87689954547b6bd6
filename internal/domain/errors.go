package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Error kinds. Callers classify with errors.Is; the constructors below attach
// one of these kinds to a descriptive error.
var (
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("conflict")
	ErrNotFound             = errors.New("not found")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrDestructiveOperation = errors.New("destructive operation refused")
	ErrSerializationFailure = errors.New("serialization failure")
)

// kindError keeps the message and cause chain of the wrapped error and
// answers errors.Is for each of its kinds.
type kindError struct {
	cause error
	kinds []error
}

func (e *kindError) Error() string { return e.cause.Error() }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool {
	for _, k := range e.kinds {
		if k == target {
			return true
		}
	}
	return false
}

// WithKind classifies err as every kind given. A nil err stays nil.
func WithKind(err error, kinds ...error) error {
	if err == nil {
		return nil
	}
	return &kindError{cause: err, kinds: kinds}
}

func Validationf(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), ErrValidation)
}

func Conflictf(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), ErrConflict)
}

func NotFoundf(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), ErrNotFound)
}

func CapacityExceededf(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), ErrCapacityExceeded)
}

func DestructiveOperationf(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), ErrDestructiveOperation)
}

// UnavailableSeat names one seat of a multi-seat request that could not be held.
type UnavailableSeat struct {
	SeatID uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

const (
	SeatReasonNotFound    = "not_found"
	SeatReasonUnavailable = "unavailable"
)

// SeatsUnavailableError is a conflict that lists every seat that kept a
// multi-seat request from being held.
type SeatsUnavailableError struct {
	Seats []UnavailableSeat
}

func (e *SeatsUnavailableError) Error() string {
	ids := make([]string, len(e.Seats))
	for i, s := range e.Seats {
		ids[i] = s.SeatID.String() + " (" + s.Reason + ")"
	}
	return "seats not available: " + strings.Join(ids, ", ")
}

func (e *SeatsUnavailableError) Is(target error) bool { return target == ErrConflict }
