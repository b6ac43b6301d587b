// Package errors provides standardized error types for the domain layer.
// The settlement core distinguishes transient chain failures (retried on the
// next sweep), invalid evidence (rejected, no transition), and status-conflict
// races (caller must re-read and retry).
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a settlement status transition that the
	// state machine does not allow from the investment's current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidHash indicates a transaction hash that is malformed for the
	// chain it was submitted against
	ErrInvalidHash = errors.New("invalid transaction hash")

	// ErrHashAlreadyClaimed indicates a payment hash already recorded against
	// a different investment
	ErrHashAlreadyClaimed = errors.New("transaction hash already claimed")

	// ErrStatusConflict indicates a compare-and-swap update whose expected
	// status no longer matched; the caller must re-read and retry
	ErrStatusConflict = errors.New("status precondition failed")

	// ErrTxNotFound indicates the chain has no record of the transaction
	ErrTxNotFound = errors.New("transaction not found on chain")

	// ErrChainUnavailable indicates a transport-level chain lookup failure;
	// never negative evidence
	ErrChainUnavailable = errors.New("chain endpoint unavailable")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// IsRetryable returns true if the error is safe to retry
func (e *DomainError) IsRetryable() bool {
	return e.Retryable
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// InvalidTransitionError creates an invalid transition error
func InvalidTransitionError(from, to string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidTransition,
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// InvalidHashError creates an invalid hash error
func InvalidHashError(chain, hash string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidHash,
		Code:    "INVALID_HASH",
		Message: fmt.Sprintf("malformed transaction hash for chain %s", chain),
		Details: map[string]interface{}{
			"chain": chain,
			"hash":  hash,
		},
	}
}

// HashAlreadyClaimedError creates a hash reuse error
func HashAlreadyClaimedError(hash string) *DomainError {
	return &DomainError{
		Err:     ErrHashAlreadyClaimed,
		Code:    "HASH_ALREADY_CLAIMED",
		Message: "transaction hash is already associated with another investment",
		Details: map[string]interface{}{
			"hash": hash,
		},
	}
}

// StatusConflictError creates a compare-and-swap conflict error
func StatusConflictError(expected, resource string) *DomainError {
	return &DomainError{
		Err:     ErrStatusConflict,
		Code:    "STATUS_CONFLICT",
		Message: fmt.Sprintf("%s status no longer %s", resource, expected),
	}
}

// ConcurrentUpdateError reports that another writer holds the resource right
// now; the caller should retry
func ConcurrentUpdateError(resource string) *DomainError {
	return &DomainError{
		Err:       ErrStatusConflict,
		Code:      "STATUS_CONFLICT",
		Message:   fmt.Sprintf("%s is being updated by another request", resource),
		Retryable: true,
	}
}

// ChainUnavailableError creates a transient chain failure error
func ChainUnavailableError(chain string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrChainUnavailable,
		Code:      "CHAIN_UNAVAILABLE",
		Message:   fmt.Sprintf("%s endpoint is temporarily unavailable", chain),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// ValidationError creates a validation error
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// InternalError creates an internal error
func InternalError(message string, err error) *DomainError {
	return &DomainError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"cause": err.Error(),
		},
	}
}

// Error helpers for common patterns

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidTransition checks if an error is an invalid transition error
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsInvalidHash checks if an error is an invalid hash error
func IsInvalidHash(err error) bool {
	return errors.Is(err, ErrInvalidHash)
}

// IsHashAlreadyClaimed checks if an error is a hash reuse error
func IsHashAlreadyClaimed(err error) bool {
	return errors.Is(err, ErrHashAlreadyClaimed)
}

// IsStatusConflict checks if an error is a status conflict error
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}

// IsTxNotFound checks if an error is a transaction not found error
func IsTxNotFound(err error) bool {
	return errors.Is(err, ErrTxNotFound)
}

// IsChainUnavailable checks if an error is a transient chain failure
func IsChainUnavailable(err error) bool {
	return errors.Is(err, ErrChainUnavailable)
}

// IsTransient reports whether the error should be retried on the next sweep
// rather than treated as evidence.
func IsTransient(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Retryable {
		return true
	}
	return errors.Is(err, ErrChainUnavailable)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
