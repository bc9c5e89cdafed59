// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package apperr defines the centralized error handling framework for Skymirror.

It provides a rich error type that bridges the gap between low-level
transport/storage errors and the retry decisions the synchronization loops
have to make.

Architecture:

  - AppError: A struct carrying a machine-readable Kind and a log-safe message.
  - Classification: Upstream HTTP/XRPC failures are classified ONCE at the
    network-client boundary; downstream code switches on the Kind tag instead
    of matching error strings.
  - Mapping: Each Kind implies a handling policy (retry, treat-as-success,
    re-login, propagate).

Every error that leaves an infrastructure layer should be wrapped as an
[AppError] so the loops above can make a policy decision without inspecting
transport details.
*/
package apperr

import (
	"errors"
	"fmt"
)

// Kind tags an error with its handling policy.
type Kind string

const (
	// KindTransient marks connection resets, timeouts, and 5xx responses.
	// Policy: retry with backoff inside the governor.
	KindTransient Kind = "TRANSIENT"

	// KindRateLimited marks 429s and upstream RateLimitExceeded responses.
	// Policy: exponential backoff, doubling per attempt.
	KindRateLimited Kind = "RATE_LIMITED"

	// KindAuthExpired marks rejected access or refresh tokens.
	// Policy: clear the session and fall back to a full login.
	KindAuthExpired Kind = "AUTH_EXPIRED"

	// KindConflict marks "record already exists" create collisions.
	// Policy: treat as success; the desired state is already present.
	KindConflict Kind = "CONFLICT"

	// KindNotFound marks missing rows and 404 responses.
	KindNotFound Kind = "NOT_FOUND"

	// KindValidation marks malformed configuration or input.
	KindValidation Kind = "VALIDATION_ERROR"

	// KindPermanent marks everything else: propagate immediately.
	KindPermanent Kind = "PERMANENT"
)

// AppError is the canonical error type for Skymirror.
//
// It carries the policy tag, a log-safe message, the upstream HTTP status
// (zero when not applicable), and the underlying cause.
type AppError struct {
	// Kind is the machine-readable policy tag.
	Kind Kind
	// Message is a human-readable description for logs.
	Message string
	// Status is the upstream HTTP status code, if the error crossed HTTP.
	Status int
	// Cause is the underlying error, kept for the %w chain.
	Cause error
	// Details holds per-field validation failures for KindValidation errors.
	Details []FieldError
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the configuration or input field that failed validation.
	Field string
	// Message is the human-readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Constructors

// Transient wraps a retryable transport failure.
func Transient(msg string, cause error) *AppError {
	return &AppError{Kind: KindTransient, Message: msg, Cause: cause}
}

// RateLimited wraps an upstream write-budget rejection.
func RateLimited(msg string, cause error) *AppError {
	return &AppError{Kind: KindRateLimited, Message: msg, Status: 429, Cause: cause}
}

// AuthExpired wraps a rejected access or refresh token.
func AuthExpired(msg string, cause error) *AppError {
	return &AppError{Kind: KindAuthExpired, Message: msg, Status: 401, Cause: cause}
}

// Conflict wraps a duplicate-record collision.
func Conflict(msg string) *AppError {
	return &AppError{Kind: KindConflict, Message: msg, Status: 409}
}

// NotFound wraps a missing resource.
func NotFound(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: resource + " not found", Status: 404}
}

// Validation wraps malformed configuration or input with per-field details.
func Validation(msg string, details ...FieldError) *AppError {
	return &AppError{Kind: KindValidation, Message: msg, Details: details}
}

// Permanent wraps a non-retryable failure.
func Permanent(msg string, cause error) *AppError {
	return &AppError{Kind: KindPermanent, Message: msg, Cause: cause}
}

// # Policy Helpers

// IsRateLimited reports whether err is tagged KindRateLimited.
func IsRateLimited(err error) bool { return kindOf(err) == KindRateLimited }

// IsConflict reports whether err is tagged KindConflict.
func IsConflict(err error) bool { return kindOf(err) == KindConflict }

// IsAuthExpired reports whether err is tagged KindAuthExpired.
func IsAuthExpired(err error) bool { return kindOf(err) == KindAuthExpired }

// IsTransient reports whether err is tagged KindTransient.
func IsTransient(err error) bool { return kindOf(err) == KindTransient }

// IsNotFound reports whether err is tagged KindNotFound.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

func kindOf(err error) Kind {
	if ae := As(err); ae != nil {
		return ae.Kind
	}
	return ""
}
