/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package apierr defines the classified error returned for failed backend calls.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a failed backend call.
type Kind string

// Error kinds.
const (
	// KindFailed is a generic, unclassified failure.
	KindFailed Kind = "failed"
	// KindRateLimited means the backend asked to slow down (HTTP 429).
	KindRateLimited Kind = "rate_limited"
	// KindTransientNetwork is a connection-level failure (reset, timeout, DNS).
	KindTransientNetwork Kind = "transient_network"
	// KindClient is a non-retryable request error (HTTP 4xx other than 429).
	KindClient Kind = "client"
	// KindServer is a backend failure (HTTP 5xx).
	KindServer Kind = "server"
)

// Error is a classified failure of a backend call.
type Error struct {
	Kind       Kind
	Op         string
	Resource   string
	StatusCode int
	// RetryAfter is the delay suggested by the backend, zero if none.
	RetryAfter time.Duration
	// Attempts is the number of physical calls made before giving up.
	Attempts int
	Err      error
}

// New creates an Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Error implements error.
func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" || e.Resource != "" {
		sb.WriteString(e.Op)
		if e.Resource != "" {
			if e.Op != "" {
				sb.WriteString(" ")
			}
			sb.WriteString(e.Resource)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&sb, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that errors.Is(err, &Error{Kind: KindClient}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Resource == "" && t.Err == nil
}

// KindOf returns the kind of err. Errors that are not *Error are KindFailed, nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindFailed
}

// RetryAfterOf returns the backend-suggested retry delay carried by err.
func RetryAfterOf(err error) (time.Duration, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// IsContextError reports whether err is caused by context cancellation or deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
