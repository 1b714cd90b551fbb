package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Kind separates failures the caller can act on from infrastructure failures.
type Kind int

const (
	// KindUnavailable covers connectivity loss and unexpected store failures.
	KindUnavailable Kind = iota
	// KindConstraint is an integrity violation (duplicate, overlap, dangling reference).
	KindConstraint
	// KindRejected is a business rule raised by a procedure or an invalid request.
	KindRejected
	// KindNotFound means a referenced venue, gig or act does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConstraint:
		return "constraint_violation"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

// Error is returned by every gateway call and by the services built on it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error that did not originate in the driver.
func NewError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the first *Error in err's chain. Errors that never
// passed through the gateway are treated as unavailable.
func KindOf(err error) Kind {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return KindUnavailable
}

func IsRejected(err error) bool {
	return err != nil && KindOf(err) == KindRejected
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

func IsConstraint(err error) bool {
	return err != nil && KindOf(err) == KindConstraint
}

// Message returns the store-supplied message without the op prefix.
func Message(err error) string {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// classify wraps a driver error into an *Error. Errors already classified pass
// through with their kind intact.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *Error
	if errors.As(err, &storeErr) {
		return err
	}

	kind := KindUnavailable
	message := err.Error()

	var pqErr *pq.Error
	switch {
	case errors.As(err, &pqErr):
		kind = kindFromSQLState(pqErr.Code)
		message = pqErr.Message
		if pqErr.Detail != "" {
			message = fmt.Sprintf("%s (%s)", message, pqErr.Detail)
		}
	case errors.Is(err, sql.ErrNoRows):
		kind = KindNotFound
	case strings.Contains(message, "constraint failed"):
		// sqlite reports integrity violations only through the message
		kind = KindConstraint
	}

	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func kindFromSQLState(code pq.ErrorCode) Kind {
	switch {
	case code == "P0001":
		return KindRejected
	case code == "P0002":
		return KindNotFound
	case code.Class() == "23":
		return KindConstraint
	case code.Class() == "22":
		return KindRejected
	default:
		return KindUnavailable
	}
}
