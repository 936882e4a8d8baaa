package protocol

import (
	"errors"
	"fmt"
)

// Error types returned by ReadReply.
// They tell a client whether the connection is still usable after a failed
// request.

// ClientError represents a CLIENT_ERROR reply. The server rejected the request
// line but kept its receive state in sync, so the connection can be reused.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "CLIENT_ERROR: " + e.Message
}

func (e *ClientError) ShouldCloseConnection() bool {
	return false
}

// ServerError represents a SERVER_ERROR reply.
// A server refusing a new connection sends one and closes the socket.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "SERVER_ERROR: " + e.Message
}

func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// GenericError represents an ERROR reply (unknown command or malformed line).
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string {
	return e.Message
}

func (e *GenericError) ShouldCloseConnection() bool {
	return false
}

// NotImplementedError represents a NOT_IMPLEMENTED reply to a storage command.
type NotImplementedError struct{}

func (e *NotImplementedError) Error() string {
	return ReplyNotImplemented
}

func (e *NotImplementedError) ShouldCloseConnection() bool {
	return false
}

// ParseError represents a reply the client could not parse.
//
// Connection handling: CLOSE, the reply stream is out of sync
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps I/O errors from the underlying connection.
type ConnectionError struct {
	Op  string // read, write
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by all reply error types.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
// Unknown error types are treated as fatal.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}
