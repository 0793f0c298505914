package ipc

import (
	"errors"
	"fmt"
)

// Sentinel kinds for IPC errors. These allow errors.Is/As from callers.
var (
	ErrTransport    = errors.New("ipc transport failed")
	ErrProtocol     = errors.New("ipc protocol violation")
	ErrNotFound     = errors.New("not found")
	ErrNotSupported = errors.New("method not supported")
	ErrResultFailed = errors.New("calculation failed")
)

// JSON-RPC error codes. The application reuses HTTP-like codes for
// domain failures next to the reserved JSON-RPC range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeBadRequest     = 400
	CodeNotFound       = 404
	CodeServerError    = 500
	CodeNotImplemented = 501
)

// RPCError is an error object returned by the application.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Is maps application error codes onto the package sentinels.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrNotSupported:
		return e.Code == CodeMethodNotFound || e.Code == CodeNotImplemented
	}
	return false
}
