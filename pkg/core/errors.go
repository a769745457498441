package core

import "errors"

var (
	ErrInternalServerError    = errors.New("internal server error")
	ErrNotFound               = errors.New("not found")
	ErrNoInMessage            = errors.New("no in_message was found in tx")
	ErrUnsupportedTransaction = errors.New("unsupported transaction type")
	ErrExecutionFailed        = errors.New("transaction execution failed")
	ErrTxMismatch             = errors.New("mismatched tx hash")
)
