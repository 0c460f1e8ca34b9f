package database

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidIdentifier Kind = "INVALID_IDENTIFIER"
	KindStoreUnavailable  Kind = "STORE_UNAVAILABLE"
)

// Error is returned by every Database operation that fails. Op names the
// operation (e.g. "GetPlant") and Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels usable with errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = "database: " + e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error found in err's chain. Errors
// that did not come from a Database are reported as KindStoreUnavailable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreUnavailable
}

func notFound(op string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

func invalidID(op string, raw string, err error) error {
	if err == nil {
		err = fmt.Errorf("malformed identifier %q", raw)
	} else {
		err = fmt.Errorf("malformed identifier %q: %w", raw, err)
	}
	return &Error{Kind: KindInvalidIdentifier, Op: op, Err: err}
}

func unavailable(op string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}
