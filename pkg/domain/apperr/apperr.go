// Package apperr provides the typed error taxonomy returned by the lot tracking engine.
// Every failure carries a Kind so callers (and the HTTP façade) can tell an operator
// input problem from a lost optimistic-lock race without parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates an unknown id or an entity owned by another tenant.
	KindNotFound
	// KindValidation indicates malformed input (negative counts, missing ids).
	KindValidation
	// KindInsufficientInventory indicates a heat overdraw.
	KindInsufficientInventory
	// KindInsufficientAvailability indicates an allocation or rework pool overdraw.
	KindInsufficientAvailability
	// KindConservationViolation indicates reported piece counts exceed the batch ceiling.
	KindConservationViolation
	// KindInvalidTransition indicates a state machine violation.
	KindInvalidTransition
	// KindInvalidOperation indicates an operation on the wrong measurement mode or stage.
	KindInvalidOperation
	// KindConcurrentModification indicates an optimistic-lock conflict.
	KindConcurrentModification
	// KindInternal indicates an unexpected infrastructure error.
	KindInternal
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindInsufficientInventory:
		return "InsufficientInventory"
	case KindInsufficientAvailability:
		return "InsufficientAvailability"
	case KindConservationViolation:
		return "ConservationViolation"
	case KindInvalidTransition:
		return "InvalidTransition"
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindConcurrentModification:
		return "ConcurrentModification"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Shortfall describes a requested amount that could not be satisfied.
// Amounts are strings so weights keep their decimal precision in responses.
type Shortfall struct {
	Entity    string `json:"entity"`
	ID        int64  `json:"id"`
	Requested string `json:"requested"`
	Available string `json:"available"`
}

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientInventory, KindInsufficientAvailability, KindConservationViolation, KindInvalidOperation:
		return http.StatusUnprocessableEntity
	case KindInvalidTransition, KindConcurrentModification:
		return http.StatusConflict
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new domain error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation and returns the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails sets additional details and returns the error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// NotFound creates a not found error for the given entity and id.
func NotFound(entity string, id int64) *Error {
	return Newf(KindNotFound, "%s %d not found", entity, id)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// InsufficientInventory reports a heat overdraw.
func InsufficientInventory(heatID int64, requested, available string) *Error {
	return Newf(KindInsufficientInventory, "heat %d has %s available, %s requested", heatID, available, requested).
		WithDetails(Shortfall{Entity: "heat", ID: heatID, Requested: requested, Available: available})
}

// InsufficientAvailability reports an allocation overdraw.
func InsufficientAvailability(entity string, id int64, requested, available int64) *Error {
	return Newf(KindInsufficientAvailability, "%s %d has %d pieces available, %d requested", entity, id, available, requested).
		WithDetails(Shortfall{
			Entity:    entity,
			ID:        id,
			Requested: fmt.Sprintf("%d", requested),
			Available: fmt.Sprintf("%d", available),
		})
}

// ConservationViolation reports reported counts exceeding a batch ceiling.
func ConservationViolation(batchID int64, reported, ceiling int64) *Error {
	return Newf(KindConservationViolation, "batch %d reported %d pieces against a ceiling of %d", batchID, reported, ceiling).
		WithDetails(Shortfall{
			Entity:    "stage_batch",
			ID:        batchID,
			Requested: fmt.Sprintf("%d", reported),
			Available: fmt.Sprintf("%d", ceiling),
		})
}

// InvalidTransition reports a state machine violation.
func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, message)
}

// InvalidOperation reports an operation that does not apply to the target.
func InvalidOperation(message string) *Error {
	return New(KindInvalidOperation, message)
}

// ConcurrentModification wraps an optimistic-lock conflict.
func ConcurrentModification(err error) *Error {
	return Wrap(KindConcurrentModification, "concurrent modification, retry with fresh state", err)
}

// Internal wraps an unexpected infrastructure error.
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
