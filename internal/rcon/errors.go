package rcon

import (
	"fmt"
)

// ProtocolErrorKind classifies codec failures.
type ProtocolErrorKind int

const (
	// NonASCII means a payload contained a byte outside the 7-bit ASCII range.
	NonASCII ProtocolErrorKind = iota + 1
	// PayloadTooLong means a payload exceeded MaxPayloadLength.
	PayloadTooLong
	// Truncated means a buffer or stream ended before a full packet was read.
	Truncated
	// LengthMismatch means the declared length disagrees with the bytes present.
	LengthMismatch
)

// String returns the kind name.
func (k ProtocolErrorKind) String() string {
	switch k {
	case NonASCII:
		return "non-ascii payload"
	case PayloadTooLong:
		return "payload too long"
	case Truncated:
		return "truncated packet"
	case LengthMismatch:
		return "length mismatch"
	default:
		return "unknown protocol error"
	}
}

// ProtocolError is returned by the codec. It is always a local input or
// framing error and is never retried.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Detail string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return "rcon: " + e.Kind.String()
	}
	return fmt.Sprintf("rcon: %s: %s", e.Kind, e.Detail)
}

// Is reports whether target is a *ProtocolError of the same kind, so that
// errors.Is(err, ErrTruncated) works regardless of Detail.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

// Sentinel protocol errors for use with errors.Is.
var (
	ErrNonASCII       = &ProtocolError{Kind: NonASCII}
	ErrPayloadTooLong = &ProtocolError{Kind: PayloadTooLong}
	ErrTruncated      = &ProtocolError{Kind: Truncated}
	ErrLengthMismatch = &ProtocolError{Kind: LengthMismatch}
)

func protocolErrorf(kind ProtocolErrorKind, format string, args ...any) error {
	return &ProtocolError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ClientErrorKind classifies client failures.
type ClientErrorKind int

const (
	// Unreachable means the server could not be dialed or the connection broke.
	Unreachable ClientErrorKind = iota + 1
	// AuthFailed means the server rejected the password. It is not retried
	// with the same password.
	AuthFailed
	// MalformedResponse means the server replied with a packet that violated
	// the protocol or did not match the request.
	MalformedResponse
)

// String returns the kind name.
func (k ClientErrorKind) String() string {
	switch k {
	case Unreachable:
		return "server unreachable"
	case AuthFailed:
		return "authentication failed"
	case MalformedResponse:
		return "malformed response"
	default:
		return "unknown client error"
	}
}

// ClientError describes a failed RCON exchange.
type ClientError struct {
	Kind ClientErrorKind
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	msg := "rcon: " + e.Kind.String()
	if e.Addr != "" {
		msg += " (" + e.Addr + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is matches sentinel client errors by kind.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Kind == e.Kind && t.Addr == "" && t.Err == nil
}

// Sentinel client errors for use with errors.Is.
var (
	ErrUnreachable       = &ClientError{Kind: Unreachable}
	ErrAuthFailed        = &ClientError{Kind: AuthFailed}
	ErrMalformedResponse = &ClientError{Kind: MalformedResponse}
)
