package bundle

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes bundle errors. The whole engine is failure-fast:
// any error aborts the operation that produced it, because a partially
// trusted audit log is worse than no log.
type ErrorCode string

const (
	// ErrCodeFormat indicates malformed bytes: bad magic, unsupported
	// version, truncated ranges, an index whose length is not a multiple
	// of the offset size.
	ErrCodeFormat ErrorCode = "FORMAT"

	// ErrCodeConsistency indicates a structurally valid log that breaks
	// an invariant: frame madi out of order, a snapshot whose own madi
	// disagrees with its frame, a blob too large for its length field.
	ErrCodeConsistency ErrorCode = "CONSISTENCY"

	// ErrCodeRange indicates a caller bug: a madi outside the recorded
	// frame range.
	ErrCodeRange ErrorCode = "RANGE"

	// ErrCodeVerify indicates a recomputed hash that disagrees with the
	// recorded one - corruption or nondeterminism.
	ErrCodeVerify ErrorCode = "VERIFY"
)

// Error is a categorized bundle error.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsFormatError reports whether err is a FORMAT bundle error.
func IsFormatError(err error) bool { return hasCode(err, ErrCodeFormat) }

// IsConsistencyError reports whether err is a CONSISTENCY bundle error.
func IsConsistencyError(err error) bool { return hasCode(err, ErrCodeConsistency) }

// IsRangeError reports whether err is a RANGE bundle error.
func IsRangeError(err error) bool { return hasCode(err, ErrCodeRange) }

// IsVerifyError reports whether err is a VERIFY bundle error.
func IsVerifyError(err error) bool { return hasCode(err, ErrCodeVerify) }
