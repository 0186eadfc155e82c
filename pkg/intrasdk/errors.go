package intrasdk

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the SDK reports. Callers switch on the
// kind rather than on message text.
type ErrorKind string

const (
	KindNetwork             ErrorKind = "network_error"
	KindTokenExchangeFailed ErrorKind = "token_exchange_failed"
	KindMalformedResponse   ErrorKind = "malformed_response"
	KindIdentityFetchFailed ErrorKind = "identity_fetch_failed"
	KindProjectsFetchFailed ErrorKind = "projects_fetch_failed"
	KindRequestFailed       ErrorKind = "request_failed"
	KindUserNotFound        ErrorKind = "user_not_found"
	KindSessionExpired      ErrorKind = "session_expired"
	KindNotAuthenticated    ErrorKind = "not_authenticated"
)

// Error is the single error type returned by the client, the executor and the
// gateway. StatusCode is set when the failure came from an HTTP response.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind, so errors.Is(err, ErrUserNotFound) holds for any
// user_not_found error regardless of message or status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// Sentinels for errors.Is comparisons.
var (
	ErrNetwork             = &Error{Kind: KindNetwork, Message: "network error"}
	ErrTokenExchangeFailed = &Error{Kind: KindTokenExchangeFailed, Message: "token exchange failed"}
	ErrMalformedResponse   = &Error{Kind: KindMalformedResponse, Message: "malformed response"}
	ErrIdentityFetchFailed = &Error{Kind: KindIdentityFetchFailed, Message: "failed to fetch user identity"}
	ErrProjectsFetchFailed = &Error{Kind: KindProjectsFetchFailed, Message: "failed to fetch projects"}
	ErrRequestFailed       = &Error{Kind: KindRequestFailed, Message: "request failed"}
	ErrUserNotFound        = &Error{Kind: KindUserNotFound, Message: "user not found"}
	ErrSessionExpired      = &Error{Kind: KindSessionExpired, Message: "session expired, please log in again"}
	ErrNotAuthenticated    = &Error{Kind: KindNotAuthenticated, Message: "not authenticated"}
)

// ErrStaleFlow is returned when a login flow tries to commit results after a
// newer flow or a logout has taken over the session.
var ErrStaleFlow = errors.New("intrasdk: login flow superseded")

func newError(kind ErrorKind, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err did not come from this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// MessageOf returns a human-readable message for err suitable for display.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// CallbackError is returned by ParseAuthorizationCallback when the
// authorization server redirected back with an error instead of a code.
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}
