package serena

import (
	"encoding/json"
	"errors"
	"fmt"
)

/* =========================
   Errors: transport level vs tool level
   ========================= */

var (
	// ErrTransportClosed reports that the peer side of a transport is gone.
	ErrTransportClosed = errors.New("transport closed")

	// ErrDuplicateTool is returned when a tool name is registered twice.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrUnknownTool is reported (never returned to the client) when tools/call
	// names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// TransportError marks a failure reading from or writing to the stream.
type TransportError struct {
	Op        string // read / write / upgrade
	Err       error
	Temporary bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a line that could not be turned into a Request. ID holds the
// request id when it could still be recovered from the broken payload.
type DecodeError struct {
	ID  json.RawMessage
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode request: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking tool handler.
type PanicError struct {
	Tool  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v", e.Value)
}
