package app

import (
	"errors"
	"strings"

	"github.com/gart/membership-service/internal/store"
)

var (
	ErrActiveMembershipExists   = errors.New("an active membership already exists for this user")
	ErrPendingApplicationExists = store.ErrPendingApplicationExists
	ErrDuplicateTransactionID   = store.ErrDuplicateTransactionID
	ErrMembershipTypeNotFound   = store.ErrMembershipTypeNotFound
	ErrInvalidTransition        = errors.New("application cannot move to the requested status")
	ErrForbidden                = errors.New("not allowed to act on this application")
	ErrAttachmentNotFound       = errors.New("attachment not found")
	ErrRateLimited              = errors.New("too many requests")
)

// ValidationError carries every violated rule of a rejected request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func newValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// RateLimitError is returned when a caller exceeds the per-minute request budget.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
