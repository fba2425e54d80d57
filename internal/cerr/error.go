package cerr

import (
	"context"
	"errors"
	"fmt"
)

type Error struct {
	Code Code
	Msg  string // returned to the caller together with Code
	Err  error  // logged, never returned to the caller
}

func NewError(code Code, msg string, underlying error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// From classifies an arbitrary error. Unclassified errors become Unknown.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	if errors.Is(err, context.Canceled) {
		return NewError(Canceled, "connection closed", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(DeadlineExceeded, "deadline exceeded", err)
	}
	return NewError(Unknown, "unknown error", err)
}
