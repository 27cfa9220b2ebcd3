package connector

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindInvalidCredentials means the institution rejected the credentials,
	// or they were empty.
	KindInvalidCredentials ErrorKind = iota + 1
	// KindInstitutionRequestError covers everything else that can go wrong
	// talking to the institution: bad statuses, unparseable pages, invalid
	// options and unexpected faults.
	KindInstitutionRequestError
	// KindCancelled means the caller cancelled the run between steps.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindInstitutionRequestError:
		return "InstitutionRequestError"
	case KindCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the only error type returned by extraction steps.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when target carries no cause, so
// errors.Is(err, ErrInvalidCredentials) works on wrapped errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials      = &Error{Kind: KindInvalidCredentials}
	ErrInstitutionRequestError = &Error{Kind: KindInstitutionRequestError}
	ErrCancelled               = &Error{Kind: KindCancelled}
)

func InvalidCredentials(err error) *Error {
	return &Error{Kind: KindInvalidCredentials, Err: err}
}

func InstitutionRequestError(err error) *Error {
	return &Error{Kind: KindInstitutionRequestError, Err: err}
}

func Cancelled(err error) *Error {
	return &Error{Kind: KindCancelled, Err: err}
}

// AsError returns the *Error in err's chain, anything else becomes an
// InstitutionRequestError. A nil err returns nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return InstitutionRequestError(err)
}
