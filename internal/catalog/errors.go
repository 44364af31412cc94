package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the store reports no such item (success=false or no entry).
	ErrNotFound = errors.New("catalog: item not found")
	// ErrUnavailable: network failure, timeout, non-2xx or open circuit.
	ErrUnavailable = errors.New("catalog: unavailable")
	// ErrMalformed: a response arrived but lacks required fields.
	ErrMalformed = errors.New("catalog: malformed response")
)

type Kind int

const (
	KindUnavailable Kind = iota
	KindNotFound
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	default:
		return "unavailable"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrUnavailable
	}
}

// Error is returned by every Client call. errors.Is matches the sentinel of
// its Kind as well as the wrapped cause.
type Error struct {
	Kind   Kind
	Op     string
	ItemID string
	Err    error
}

func (e *Error) Error() string {
	s := "catalog " + e.Op
	if e.ItemID != "" {
		s += " " + e.ItemID
	}
	s += ": " + e.Kind.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

func newError(kind Kind, op, itemID string, err error) *Error {
	return &Error{Kind: kind, Op: op, ItemID: itemID, Err: err}
}

func errorf(kind Kind, op, itemID, format string, args ...any) *Error {
	return newError(kind, op, itemID, fmt.Errorf(format, args...))
}

// KindOf classifies err; non-catalog errors count as unavailable.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	}
	return KindUnavailable
}

// Retryable reports whether retrying later may succeed.
func Retryable(err error) bool {
	return err != nil && KindOf(err) != KindNotFound
}
