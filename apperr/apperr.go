// Package apperr defines the client's error taxonomy and decides, for every
// terminal failure, whether it is handled silently or surfaced to the user.
package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Code is the machine-readable error code carried by API error responses and
// by errors produced inside this SDK.
type Code string

const (
	// CodeDisconnected marks transport-level failures: the device is offline,
	// DNS fails, or the host is unreachable.
	CodeDisconnected Code = "disconnected"
	// CodeCanceled marks requests aborted by their caller.
	CodeCanceled Code = "canceled"
	// CodeExpiredAccessToken is the server's signal that the presented access
	// token has expired. Distinct from a plain 401, which must not trigger a
	// refresh.
	CodeExpiredAccessToken Code = "expired_access_token"
	// CodeSessionEnded marks an irrecoverable refresh failure. Downstream code
	// treats it as a forced logout, not a retryable condition.
	CodeSessionEnded Code = "session_ended"
	// CodeServerError is the generic code for API failures that carry no
	// recognized code of their own.
	CodeServerError Code = "server_error"
)

// Classification is the silent/surfaced decision for a terminal failure.
type Classification int

const (
	// Silent failures are fully absorbed by the SDK and never shown raw.
	Silent Classification = iota
	// Surfaced failures are reported through a user-visible notification.
	Surfaced
)

func (c Classification) String() string {
	if c == Silent {
		return "silent"
	}
	return "surfaced"
}

// Error is the typed error used across the SDK. Status is the HTTP status of
// the response that produced it, zero for transport or internal failures.
type Error struct {
	Code    Code
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that carries an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// errorEnvelope mirrors the API's JSON error body.
type errorEnvelope struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

const genericMessage = "request failed"

// FromResponseBody builds an Error from an API error response body. Bodies
// that are empty or not parseable JSON fall back to the generic message so
// the user never sees raw payloads.
func FromResponseBody(status int, body []byte) *Error {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || (envelope.Message == "" && envelope.Code == "") {
		return &Error{Code: CodeServerError, Message: genericMessage, Status: status}
	}
	apiErr := &Error{Code: envelope.Code, Message: envelope.Message, Status: status}
	if apiErr.Code == "" {
		apiErr.Code = CodeServerError
	}
	if apiErr.Message == "" {
		apiErr.Message = genericMessage
	}
	return apiErr
}

// Classify decides whether an error is handled silently or surfaced.
// Disconnected, Canceled, and ExpiredAccessToken are Silent: they are either
// locally recovered or fully absorbed by the refresh layer. Everything else,
// including SessionEnded, is Surfaced.
func Classify(err error) Classification {
	if err == nil {
		return Silent
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case CodeDisconnected, CodeCanceled, CodeExpiredAccessToken:
			return Silent
		default:
			return Surfaced
		}
	}

	if errors.Is(err, context.Canceled) {
		return Silent
	}
	if isDisconnected(err) {
		return Silent
	}
	return Surfaced
}

// Message returns the human-readable text to show for a surfaced error.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return genericMessage
}

// IsSessionEnded reports whether err signals a forced logout.
func IsSessionEnded(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == CodeSessionEnded
}

// isDisconnected reports whether err means the host could not be reached at
// all: DNS resolution, dialing, or an unreachable network. Failures of an
// established connection (a reset mid-response, say) are not "offline" and
// stay surfaced.
func isDisconnected(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
