// Package errors provides error handling for lookbridge.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for user-facing notifications
//
// Usage:
//
//	// Wrap with context
//	if err := dial(); err != nil {
//	    return errors.Wrap(ErrTransportOpen, err.Error())
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrUnsupportedMessageType) {
//	    // drop the frame
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef

	WithSecondaryError = crdb.WithSecondaryError
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Transport sentinels. Wrap these to add context; check with errors.Is().
var (
	// ErrTransportOpen indicates the socket could not be dialed or upgraded
	ErrTransportOpen = New("transport open failed")

	// ErrUnexpectedDisconnect indicates the companion dropped the connection
	// without a locally requested close
	ErrUnexpectedDisconnect = New("unexpected disconnect")

	// ErrNotConnected indicates a send was attempted on a connection that is not open
	ErrNotConnected = New("not connected")
)

// Protocol sentinels
var (
	// ErrUnsupportedMessageType indicates a JSON envelope with an unknown type
	ErrUnsupportedMessageType = New("unsupported event type")

	// ErrMalformedTag indicates a tag-delimited field is missing or unterminated
	ErrMalformedTag = New("malformed tag")

	// ErrUnknownCommand indicates a tag-delimited frame named a command we do not handle
	ErrUnknownCommand = New("unknown command")

	// ErrMalformedFrame indicates a frame could not be parsed at all
	ErrMalformedFrame = New("malformed frame")
)

// Host collaborator sentinels
var (
	ErrDegenerateGeometry = New("degenerate viewport geometry")
	ErrNoActiveViewport   = New("no active viewport")
	ErrLaunchFailed       = New("companion launch failed")
	ErrNotLoopback        = New("host is not a loopback address")
	ErrNotFound           = New("not found")
	ErrInvalidRequest     = New("invalid request")
	ErrLoopStopped        = New("event loop stopped")
)

// IsTransportError reports whether err came from opening or losing the socket
func IsTransportError(err error) bool {
	return err != nil && IsAny(err, ErrTransportOpen, ErrUnexpectedDisconnect, ErrNotConnected)
}

// IsProtocolError reports whether err came from decoding an inbound frame
func IsProtocolError(err error) bool {
	return err != nil && IsAny(err, ErrUnsupportedMessageType, ErrMalformedTag, ErrUnknownCommand, ErrMalformedFrame)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
