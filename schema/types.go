package schema

import (
	"fmt"
	"time"
)

// SessionID identifies a bridge session.
type SessionID string

// Method names a registered command.
type Method string

// TransportKind identifies how a session talks to its client.
type TransportKind string

const (
	// TransportRequestResponse is a one-shot POST carrying exactly one command.
	TransportRequestResponse TransportKind = "request-response"
	// TransportStreaming is a persistent websocket carrying many commands.
	TransportStreaming TransportKind = "streaming"
)

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	// SessionOpen accepts and answers requests.
	SessionOpen SessionState = iota
	// SessionClosing has stopped reading and is flushing or discarding replies.
	SessionClosing
	// SessionClosed has left the live set and released its slot.
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Params holds the flattened named fields of a request.
type Params map[string]any

// CommandRequest is a decoded inbound command.
type CommandRequest struct {
	Method Method
	Params Params
}

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// CommandResult is the outcome of a command: either a value or an error message.
// Build it with Ok or Fail.
type CommandResult struct {
	value  string
	err    string
	failed bool
}

// Ok returns a successful result.
func Ok(value string) CommandResult {
	return CommandResult{value: value}
}

// Okf formats a successful result.
func Okf(format string, args ...any) CommandResult {
	return Ok(fmt.Sprintf(format, args...))
}

// Fail returns an error result.
func Fail(message string) CommandResult {
	return CommandResult{err: message, failed: true}
}

// Failf formats an error result.
func Failf(format string, args ...any) CommandResult {
	return Fail(fmt.Sprintf(format, args...))
}

// FailErr converts err into an error result.
func FailErr(err error) CommandResult {
	if err == nil {
		return Fail("unknown error")
	}
	return Fail(err.Error())
}

// IsOk reports whether the result carries a value.
func (r CommandResult) IsOk() bool { return !r.failed }

// Value returns the success value; empty for error results.
func (r CommandResult) Value() string { return r.value }

// Error returns the error message; empty for success results.
func (r CommandResult) Error() string { return r.err }

// Envelope returns the wire envelope for the result.
func (r CommandResult) Envelope() ResponseEnvelope {
	if r.failed {
		msg := r.err
		return ResponseEnvelope{Status: StatusError, Message: &msg}
	}
	value := r.value
	return ResponseEnvelope{Status: StatusSuccess, Result: &value}
}

// ResponseEnvelope is the wire form of a CommandResult.
// Status success carries Result only; status error carries Message only.
type ResponseEnvelope struct {
	Status  string
	Result  *string
	Message *string
}

// Valid reports whether the envelope satisfies the status/field invariant.
func (e ResponseEnvelope) Valid() bool {
	switch e.Status {
	case StatusSuccess:
		return e.Result != nil && e.Message == nil
	case StatusError:
		return e.Message != nil && e.Result == nil
	default:
		return false
	}
}

// CommandResult converts a valid envelope back into a result.
func (e ResponseEnvelope) CommandResult() (CommandResult, error) {
	if !e.Valid() {
		return CommandResult{}, ErrInvalidEnvelope
	}
	if e.Status == StatusError {
		return Fail(*e.Message), nil
	}
	return Ok(*e.Result), nil
}

// LogLevel is the severity of a console entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is one captured host log line.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Text      string
}

// Vector3 is a scene position.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}
