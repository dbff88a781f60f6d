// Package errclass gives pipeline errors a structured kind so retry decisions
// do not depend on matching downstream message text. Substring checks survive
// only as a fallback for errors that cross the API boundary untyped.
package errclass

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

type Kind int

const (
	// KindUnknown errors are treated as generic transient failures.
	KindUnknown Kind = iota
	// KindAuth means the credential is unusable. Never retried.
	KindAuth
	// KindTimeout covers deadline and dial timeouts.
	KindTimeout
	// KindConnReset covers dropped connections mid-call.
	KindConnReset
	// KindComplexity is the downstream query-cost quota signal. Retried on a
	// linear ramp rather than exponentially.
	KindComplexity
	// KindMissingURL marks an asset lookup that returned without a public URL.
	KindMissingURL
	// KindUnsupportedType marks a file outside the MIME allow-list. Terminal.
	KindUnsupportedType
	// KindColumnLimit is the "value exceeded max value for column" business
	// rule. Converted to a notification, not a failure.
	KindColumnLimit
	// KindPermanent marks any other non-retryable API error.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTimeout:
		return "timeout"
	case KindConnReset:
		return "connection_reset"
	case KindComplexity:
		return "complexity_budget"
	case KindMissingURL:
		return "missing_public_url"
	case KindUnsupportedType:
		return "unsupported_file_type"
	case KindColumnLimit:
		return "column_limit"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a kind. Returns nil for a nil err.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// New builds a tagged error from a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// KindOf classifies an error. Tagged errors win; untyped errors fall through
// to network-level checks and, last, message substrings.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return KindConnReset
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "complexity budget exhausted"):
		return KindComplexity
	case strings.Contains(msg, "connection reset"):
		return KindConnReset
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "exceeded max value for column"):
		return KindColumnLimit
	case strings.Contains(msg, "not authenticated"), strings.Contains(msg, "invalid token"):
		return KindAuth
	default:
		return KindUnknown
	}
}

// Retryable reports whether the pipeline should retry a task that failed with
// this kind. Unknown errors are retried; they are indistinguishable from
// transient infrastructure faults.
func Retryable(kind Kind) bool {
	switch kind {
	case KindAuth, KindUnsupportedType, KindColumnLimit, KindPermanent:
		return false
	default:
		return true
	}
}
