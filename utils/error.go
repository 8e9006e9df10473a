package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// EngineErrorCode classifies reconciliation failures so handlers can map them
// to HTTP statuses and render actionable detail (e.g. the pending item list).
type EngineErrorCode string

const (
	ErrorCodeValidation     EngineErrorCode = "ValidationError"
	ErrorCodeInvalidSplit   EngineErrorCode = "InvalidSplit"
	ErrorCodeSessionClosed  EngineErrorCode = "SessionClosed"
	ErrorCodeAlreadyExists  EngineErrorCode = "AlreadyExists"
	ErrorCodeItemsPending   EngineErrorCode = "ItemsPending"
	ErrorCodeAlreadySettled EngineErrorCode = "AlreadySettled"
)

type EngineError struct {
	Code    EngineErrorCode `json:"code"`
	Message string          `json:"message"`
	// Details carries structured context for the caller: the offending pending
	// items for ItemsPending, the existing session for AlreadyExists.
	Details interface{} `json:"details,omitempty"`
}

func (e *EngineError) Error() string {
	return e.Message
}

func NewEngineError(code EngineErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

func NewEngineErrorWithDetails(code EngineErrorCode, message string, details interface{}) *EngineError {
	return &EngineError{Code: code, Message: message, Details: details}
}

// AsEngineError unwraps err to an EngineError if one is in the chain.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

func IsEngineErrorCode(err error, code EngineErrorCode) bool {
	ee, ok := AsEngineError(err)
	return ok && ee.Code == code
}
