// Package apperr defines the error taxonomy of the Qwen-TTS graph compiler.
//
// Every failure that reaches a caller is an *Error carrying a Kind. User-facing
// kinds (payload, section, asset, config) describe bad input; KindInvariant
// marks a contract mismatch inside the compiler and should never surface in
// correct operation.
package apperr

import (
	"errors"
	"fmt"
)

// Feature is the prefix every rendered message starts with.
const Feature = "Qwen-TTS"

// Kind categorizes a compilation failure.
type Kind string

const (
	// KindPayload: the voices payload is malformed or out of bounds.
	KindPayload Kind = "payload"

	// KindSection: the prompt has no audio section, or more than one.
	KindSection Kind = "section"

	// KindAsset: an audio-file voice has no usable upload.
	KindAsset Kind = "asset"

	// KindConfig: synthesis parameters are outside their documented ranges.
	KindConfig Kind = "config"

	// KindInvariant: the compiler reached a state validation should have
	// made impossible.
	KindInvariant Kind = "invariant"
)

// Sentinels for errors.Is matching by kind.
var (
	Payload   = &Error{Kind: KindPayload}
	Section   = &Error{Kind: KindSection}
	Asset     = &Error{Kind: KindAsset}
	Config    = &Error{Kind: KindConfig}
	Invariant = &Error{Kind: KindInvariant}
)

// Error is a compilation failure with a user-readable message.
type Error struct {
	// Op describes the stage that failed, e.g. "invalid voices payload".
	Op string

	// Kind categorizes the failure.
	Kind Kind

	// Err is the underlying cause.
	Err error
}

// New builds an *Error from a kind, an operation and a message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// Newf is New with formatting.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Error renders "Qwen-TTS: <op>. <cause>".
func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return fmt.Sprintf("%s: %s error", Feature, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", Feature, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s.", Feature, e.Op)
	default:
		return fmt.Sprintf("%s: %s. %v", Feature, e.Op, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target with an
// Op also has to match the Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserFacing reports whether err should be shown to the requester as-is.
func UserFacing(err error) bool {
	switch KindOf(err) {
	case KindPayload, KindSection, KindAsset, KindConfig:
		return true
	default:
		return false
	}
}
