package common

import (
	"errors"
	"net/http"
)

// Business logic errors
var (
	// General errors
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")

	// Identity errors
	ErrUserNotFound = errors.New("user not found")
	ErrAuthFailure  = errors.New("authentication failed")

	// Access ledger errors
	ErrDuplicateRequest  = errors.New("an active chat request already exists for this pair")
	ErrNoActiveAccess    = errors.New("no active chat access between these users")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRequestNotFound   = errors.New("chat request not found")
	ErrRequestClosed     = errors.New("chat request was closed and cannot be reopened by this user")
	ErrInvalidTransition = errors.New("chat request is not in a state that allows this action")

	// Message errors
	ErrMessageNotFound   = errors.New("message not found")
	ErrEditWindowExpired = errors.New("message can no longer be edited")
	ErrUploadFailed      = errors.New("image upload failed")
	ErrRateLimited       = errors.New("you are sending messages too quickly, please slow down")

	// Live query errors
	ErrSubscription = errors.New("subscription failed")
)

// StatusFor maps a business error to the HTTP status a handler should answer with.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNoActiveAccess), errors.Is(err, ErrRequestClosed):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateRequest), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrEditWindowExpired):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUploadFailed), errors.Is(err, ErrSubscription):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
