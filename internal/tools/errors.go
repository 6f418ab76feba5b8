package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors for tool invocation.
var (
	// ErrUnknownTool indicates a tool name absent from the routing table.
	// This is a configuration error: never retried, always fatal.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrAllServersUnavailable is returned by InitializeAll when every
	// configured server fails its startup probe.
	ErrAllServersUnavailable = errors.New("all tool servers unavailable")
)

// Failure distinguishes transport-level failures from failures reported by
// the remote tool itself. Callers classify recoverability per phase; the
// invoker only reports which layer broke.
type Failure string

const (
	// FailureConnection covers session open, handshake, and transport errors.
	FailureConnection Failure = "connection"
	// FailureTool covers remote tool errors, malformed output, and timeouts.
	// A timed-out call may simply be slow rather than broken, so it is not
	// treated as a connection failure.
	FailureTool Failure = "tool"
)

// InvokeError is a classified failure from a single tool call.
type InvokeError struct {
	Server  string
	Tool    string
	Failure Failure
	// Payload holds the failure-shaped result payload when the remote tool
	// reported an error, for message extraction by the caller.
	Payload map[string]any
	Err     error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("%s call %s on %s: %v", e.Failure, e.Tool, e.Server, e.Err)
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// IsConnectionFailure reports whether err is a transport-level InvokeError.
func IsConnectionFailure(err error) bool {
	var ie *InvokeError
	return errors.As(err, &ie) && ie.Failure == FailureConnection
}

// IsToolFailure reports whether err is a tool-level InvokeError.
func IsToolFailure(err error) bool {
	var ie *InvokeError
	return errors.As(err, &ie) && ie.Failure == FailureTool
}
