package cerrors

import "github.com/palantir/stacktrace"

type ErrorType string

const (
	ErrorTypeNonUserFriendly  ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric          ErrorType = "GENERIC_ERROR"
	ErrorTypeSpecValidation   ErrorType = "SPEC_VALIDATION_ERROR"
	ErrorTypeBuildTimeout     ErrorType = "SUE_BUILD_TIMEOUT"
	ErrorTypeTreatmentInject  ErrorType = "TREATMENT_INJECT_ERROR"
	ErrorTypeTreatmentRecover ErrorType = "TREATMENT_RECOVER_ERROR"
	ErrorTypeTelemetryQuery   ErrorType = "TELEMETRY_QUERY_ERROR"
	ErrorTypeAccountingSample ErrorType = "ACCOUNTING_SAMPLE_ERROR"
	ErrorTypeReportWrite      ErrorType = "REPORT_WRITE_ERROR"
	ErrorTypeTimeout          ErrorType = "TIMEOUT"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to surface in the report
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// GetRootCauseAndErrorCode unwraps err down to its root cause and
// returns the message to record together with its error type
func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}
