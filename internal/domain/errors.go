package domain

import (
	"errors"
	"time"
)

// Kind classifies a failure so the transport layer can pick a status code.
type Kind string

const (
	KindDecode           Kind = "decode"
	KindAudioFormat      Kind = "audio_format"
	KindServiceWarmingUp Kind = "service_warming_up"
	KindUnauthorized     Kind = "unauthorized"
	KindService          Kind = "service_error"
	KindNotFound         Kind = "not_found"
)

// Error is a classified failure from the ingest path.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// RetryAfter is a hint for KindServiceWarmingUp; zero when unknown.
	RetryAfter time.Duration
}

// NewError builds a classified error wrapping err (which may be nil).
func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first classified error in err's chain, or ""
// when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	return KindOf(err) == KindServiceWarmingUp
}
