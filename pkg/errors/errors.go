package errors

import "errors"

// Identity and connection errors
var (
	// ErrNotConnected is returned when an operation requires a bound connection
	ErrNotConnected = errors.New("identity not connected")

	// ErrSendBufferFull is returned when a connection's outbound buffer is full
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrConnectionClosed is returned when writing to a closed connection
	ErrConnectionClosed = errors.New("connection closed")
)

// Routing and conversation errors
var (
	// ErrUnknownGroup is returned when a group id does not resolve
	ErrUnknownGroup = errors.New("unknown group")

	// ErrUnknownMessage is returned when a message id does not resolve
	ErrUnknownMessage = errors.New("unknown message")

	// ErrInvalidEvent is returned when an inbound event is malformed
	ErrInvalidEvent = errors.New("invalid event")
)

// Storage errors
var (
	// ErrStorageNotInitialized is returned when storage is not initialized
	ErrStorageNotInitialized = errors.New("storage not initialized")

	// ErrUploadNotFound is returned when an upload record does not exist
	ErrUploadNotFound = errors.New("upload not found")
)

// Configuration errors
var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)
