package services

import "errors"

type ErrorCode string

const (
	// Schema-time codes.
	ErrorUnknownKind           ErrorCode = "unknown_kind"
	ErrorInvalidTitle          ErrorCode = "invalid_title"
	ErrorInvalidOrder          ErrorCode = "invalid_order"
	ErrorInvalidOptions        ErrorCode = "invalid_options"
	ErrorInvalidRange          ErrorCode = "invalid_range"
	ErrorUnexpectedConfigField ErrorCode = "unexpected_config_field"

	// Answer-time codes.
	ErrorRequiredAnswerMissing ErrorCode = "required_answer_missing"
	ErrorAnswerTooLong         ErrorCode = "answer_too_long"
	ErrorInvalidOptionSelected ErrorCode = "invalid_option_selected"
	ErrorOutOfRange            ErrorCode = "out_of_range"
	ErrorInvalidDate           ErrorCode = "invalid_date"
	ErrorInvalidEmail          ErrorCode = "invalid_email"
	ErrorInvalidValue          ErrorCode = "invalid_value"

	// Submission-time codes.
	ErrorFormClosed      ErrorCode = "form_closed"
	ErrorUnknownQuestion ErrorCode = "unknown_question"
	ErrorDuplicateAnswer ErrorCode = "duplicate_answer"

	// Post-commit, non-fatal.
	ErrorAggregationFailure ErrorCode = "aggregation_failure"

	ErrorNotFound ErrorCode = "not_found"
)

// ValidationError is the structured result for every rejected definition,
// answer or submission. Field names the offending config field,
// QuestionID the offending question, when known.
type ValidationError struct {
	Code       ErrorCode
	Field      string
	QuestionID string
	Message    string
}

func (e *ValidationError) Error() string { return string(e.Code) + ": " + e.Message }

func NewValidationError(code ErrorCode, msg string) error {
	return &ValidationError{Code: code, Message: msg}
}

func NewFieldError(code ErrorCode, field, msg string) error {
	return &ValidationError{Code: code, Field: field, Message: msg}
}

func NewAnswerError(code ErrorCode, questionID, msg string) error {
	return &ValidationError{Code: code, QuestionID: questionID, Message: msg}
}

func NewNotFoundError(msg string) error {
	return &ValidationError{Code: ErrorNotFound, Message: msg}
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// HasCode reports whether err is a ValidationError carrying code.
func HasCode(err error, code ErrorCode) bool {
	ve, ok := AsValidationError(err)
	return ok && ve.Code == code
}
