package types

import (
	"errors"
	"fmt"
)

const (
	ErrInternalError      ErrCode = "InternalError"
	ErrInvalidArgsErrCode ErrCode = "InvalidArgs"
	ErrInvalidDataType    ErrCode = "InvalidDataType"

	ErrNetworkNotFound ErrCode = "NetworkNotFound"
	ErrBindingNotFound ErrCode = "BindingNotFound"
	ErrBindingExists   ErrCode = "BindingExists"

	ErrVlanExhausted ErrCode = "VlanExhausted"
)

type ErrCode string

type Error struct {
	Code ErrCode
	Msg  string

	R error
}

func (e *Error) Error() string {
	if e.R != nil {
		return fmt.Sprintf("code: %s, msg: %s, %s", e.Code, e.Msg, e.R.Error())
	}
	return fmt.Sprintf("code: %s, msg: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.R
}

// NewError build an Error with a formatted message
func NewError(code ErrCode, r error, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		R:    r,
	}
}

// IsCode reports whether any error in err's chain is an *Error with the code.
func IsCode(err error, code ErrCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
