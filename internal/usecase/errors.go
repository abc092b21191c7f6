package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// Reasons attached to the codes above.
const (
	ReasonEmptyMessage     = "empty_message"
	ReasonEmptyChannel     = "empty_channel"
	ReasonHistoryReadError = "history_read_error"
)

// Error is returned for requests the broker refuses or cannot serve.
// Provider exhaustion is not an Error: it yields FailureReply.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s/%s", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s/%s: %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Classify returns the code and reason carried by err, or ErrorInternal for
// anything that is not an *Error.
func Classify(err error) (ErrorCode, string) {
	var ucErr *Error
	if errors.As(err, &ucErr) && ucErr != nil {
		return ucErr.Code, ucErr.Reason
	}
	return ErrorInternal, ""
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
