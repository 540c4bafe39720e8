package models

import "errors"

// ErrorCode is the tagged-variant error taxonomy. Logical names, not
// exception types: ReplayMismatch and SignatureInvalid are expected
// control paths through the engine, not exceptional conditions.
type ErrorCode string

const (
	CodeInvalidInput                 ErrorCode = "InvalidInput"
	CodeSchemaValidation              ErrorCode = "SchemaValidation"
	CodeSignatureInvalid             ErrorCode = "SignatureInvalid"
	CodeInsufficientValidSignatures  ErrorCode = "InsufficientValidSignatures"
	CodeDuplicateEvaluation          ErrorCode = "DuplicateEvaluation"
	CodeValidatorNotQualified        ErrorCode = "ValidatorNotQualified"
	CodeValidatorBanned              ErrorCode = "ValidatorBanned"
	CodeReplayMismatch               ErrorCode = "ReplayMismatch"
	CodeHumanSelectionOutOfSet       ErrorCode = "HumanSelectionOutOfSet"
	CodeMaxRedosReached              ErrorCode = "MaxRedosReached"
	CodeTimeout                      ErrorCode = "Timeout"
	CodeStorageUnavailable           ErrorCode = "StorageUnavailable"
	CodeChainUnavailable             ErrorCode = "ChainUnavailable"
	CodeInternal                     ErrorCode = "Internal"
)

// EngineError wraps the taxonomy code above an optional underlying cause.
// Callers use errors.As to recover the Code; Unwrap keeps it compatible
// with the standard errors package.
type EngineError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewError builds a tagged EngineError.
func NewError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the ErrorCode from err, defaulting to CodeInternal when
// err does not carry one.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if err == nil {
		return ""
	}
	return CodeInternal
}

// ExitCode maps an ErrorCode to the CLI exit code convention from §6.5.
func ExitCode(code ErrorCode) int {
	switch code {
	case "":
		return 0
	case CodeInvalidInput:
		return 1
	case CodeSignatureInvalid:
		return 2
	case CodeInsufficientValidSignatures:
		return 3
	case CodeReplayMismatch:
		return 4
	case CodeSchemaValidation:
		return 5
	case CodeTimeout:
		return 6
	default:
		return 7
	}
}
