package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/haivivi/memkit/pkg/store"
)

// Kind classifies an engine failure so callers can branch without string
// matching.
type Kind uint8

const (
	KindUnknown Kind = iota

	// KindValidation marks malformed input: an unknown gate, oversize
	// content, a bad enum value.
	KindValidation

	// KindConfig marks a missing prerequisite: a team write without a
	// team, a synthesis call without a Synthesizer.
	KindConfig

	// KindNotFound marks a lookup miss in the caller's tenant scope.
	KindNotFound

	// KindStorage marks an index round-trip failure.
	KindStorage

	// KindUpstream marks a synthesizer or embedder failure.
	KindUpstream

	// KindCancelled marks cooperative cancellation or deadline expiry.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not found"
	case KindStorage:
		return "storage"
	case KindUpstream:
		return "upstream"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Error is the engine's error type. Msg is safe to show to a user; the
// wrapped cause stays reachable through errors.Is / errors.As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("memory: %s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return "memory: " + e.Msg
	case e.Err != nil:
		return fmt.Sprintf("memory: %s: %v", e.Kind, e.Err)
	}
	return "memory: " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind reports the Kind of err. Bare store and context sentinels
// classify without wrapping; foreign errors report KindUnknown.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindUnknown
}

// IsNotFound reports whether err is a tenant-scope lookup miss.
func IsNotFound(err error) bool { return ErrorKind(err) == KindNotFound }

// IsValidation reports whether err is a malformed-input rejection.
func IsValidation(err error) bool { return ErrorKind(err) == KindValidation }

// IsConfig reports whether err is a missing-prerequisite rejection.
func IsConfig(err error) bool { return ErrorKind(err) == KindConfig }

// ValidationErrorf builds a KindValidation error with a user-facing message.
func ValidationErrorf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a KindConfig error with a user-facing message.
func ConfigErrorf(format string, args ...any) error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundErrorf builds a KindNotFound error with a user-facing message.
func NotFoundErrorf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// wrapStore classifies a store-layer failure under op. Store misses keep
// KindNotFound, context expiry keeps KindCancelled, everything else is
// KindStorage.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindStorage
	switch {
	case errors.Is(err, store.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCancelled
	}
	return &Error{Kind: kind, Msg: op, Err: err}
}

// wrapUpstream classifies a synthesizer failure under op.
func wrapUpstream(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindUpstream
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCancelled
	}
	return &Error{Kind: kind, Msg: op, Err: err}
}
