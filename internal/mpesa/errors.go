package mpesa

import "fmt"

// ErrorKind classifies gateway failures so handlers can pick a response without string matching.
type ErrorKind int

const (
	KindConfiguration ErrorKind = iota + 1
	KindAuth
	KindUnreachable
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindAuth:
		return "gateway_auth_error"
	case KindUnreachable:
		return "gateway_unreachable"
	case KindRejected:
		return "gateway_rejected"
	default:
		return "unknown"
	}
}

// Error is returned by every Client call that fails.
type Error struct {
	Kind    ErrorKind
	Op      string // e.g. "stk push", "access token"
	Message string // upstream errorMessage when the gateway supplied one
	Err     error
}

// Sentinels for errors.Is; only Kind is compared.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrUnreachable   = &Error{Kind: KindUnreachable}
	ErrRejected      = &Error{Kind: KindRejected}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}
