// Package apperr classifies errors crossing component boundaries so that
// callers can decide between retrying, reporting, and rejecting.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindValidation marks missing or malformed input. Never retried.
	KindValidation Kind = iota + 1
	// KindNotFound marks an unknown order, coupon, or product.
	KindNotFound
	// KindConflict marks a business-state conflict, e.g. an order that is
	// already cancelled or a coupon that hit its usage limit.
	KindConflict
	// KindExternalTransient marks a gateway/carrier timeout or 5xx. Retried
	// with backoff before being reported.
	KindExternalTransient
	// KindExternalAuth marks an expired or invalid external credential.
	// Triggers exactly one re-authentication retry.
	KindExternalAuth
	// KindExternalPermanent marks a gateway/carrier business rejection (4xx
	// other than auth). Reported immediately.
	KindExternalPermanent
	// KindUnauthenticated marks a request with no resolved identity.
	KindUnauthenticated
	// KindPermissionDenied marks a request by the wrong identity.
	KindPermissionDenied
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the classification of err, or 0 when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
