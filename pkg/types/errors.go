package types

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy from spec §7. It is a kind, not a type: every
// error surfaced by the store wraps exactly one Kind, recoverable via
// errors.Is against the package-level sentinels below or via KindOf.
type Kind uint8

const (
	KindNotFound Kind = iota
	KindAlreadyExists
	KindDimensionMismatch
	KindCorrupt
	KindIO
	KindTimeout
	KindTxnAborted
	KindCapacity
	KindReadOnly
	KindInUse
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindDimensionMismatch:
		return "DimensionMismatch"
	case KindCorrupt:
		return "Corrupt"
	case KindIO:
		return "Io"
	case KindTimeout:
		return "Timeout"
	case KindTxnAborted:
		return "TxnAborted"
	case KindCapacity:
		return "Capacity"
	case KindReadOnly:
		return "ReadOnly"
	case KindInUse:
		return "InUse"
	default:
		return "Unknown"
	}
}

// AbortReason qualifies a KindTxnAborted error, per spec §4.9/§7.
type AbortReason string

const (
	AbortTimeout           AbortReason = "timeout"
	AbortParticipantRefused AbortReason = "participant_refused"
	AbortNetwork           AbortReason = "network"
)

// Error is the structured error every public operation returns on
// failure. No exceptions-for-control-flow: NotFound and DimensionMismatch
// are ordinary returns, not panics.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "learn_concept"
	Reason AbortReason
	Err    error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Reason != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s(%s): %v", e.Op, e.Kind, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s: %s(%s)", e.Op, e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, types.ErrNotFound) work without callers needing
// to construct a matching *Error.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*Error)
	if !ok {
		return false
	}
	return sentinel.Kind == e.Kind && (sentinel.Reason == "" || sentinel.Reason == e.Reason)
}

// NewError constructs an *Error for op failing with kind, wrapping cause.
func NewError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// NewAbort constructs a KindTxnAborted error with a reason.
func NewAbort(op string, reason AbortReason, cause error) *Error {
	return &Error{Op: op, Kind: KindTxnAborted, Reason: reason, Err: cause}
}

// Sentinels for errors.Is comparisons that don't care about Op or the
// wrapped cause.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrDimensionMismatch = &Error{Kind: KindDimensionMismatch}
	ErrCorrupt          = &Error{Kind: KindCorrupt}
	ErrIO               = &Error{Kind: KindIO}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrTxnAborted       = &Error{Kind: KindTxnAborted}
	ErrCapacity         = &Error{Kind: KindCapacity}
	ErrReadOnly         = &Error{Kind: KindReadOnly}
	ErrInUse            = &Error{Kind: KindInUse}
)

// KindOf extracts the Kind carried by err, if any, walking the Unwrap
// chain. ok is false when err does not wrap a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
