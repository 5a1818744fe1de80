package errcode

import "errors"

// Code is a stable, status-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	NotFound      Code = "not_found"
	Timeout       Code = "timeout"

	Error Code = "error" // generic fallback
)

// Link lifecycle codes. These are what operators see as wifi_last_error.
const (
	LinkIdle               Code = "idle"
	LinkConnecting         Code = "connecting"
	LinkConnected          Code = "connected"
	LinkAlreadyConnected   Code = "already-connected"
	LinkCredentialsCleared Code = "credentials-cleared"
	LinkTimeout            Code = "timeout"

	LinkAuthExpired      Code = "auth-expired"
	LinkAuthFailed       Code = "auth-failed"
	LinkAssocFailed      Code = "association-failed"
	LinkHandshakeTimeout Code = "handshake-timeout"
	LinkBeaconTimeout    Code = "beacon-timeout"
	LinkAPNotFound       Code = "ap-not-found"
	LinkConnectFailed    Code = "connection-failed"
	LinkDisconnected     Code = "disconnected"
)

// Scan codes.
const (
	ScanReady       Code = "scan-ready"
	ScanFailed      Code = "scan-failed"
	ScanTimeout     Code = "scan-timeout"
	ScanStartFailed Code = "scan-start-failed"
)

// E wraps a Code when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New returns an *E for op with a human message.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap returns an *E carrying err as its cause. Nil err yields nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: err.Error(), Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}
