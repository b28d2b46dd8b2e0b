package cerrors

import "fmt"

type Generic struct {
	Phase  string
	Reason string
}

func (e Generic) Error() string {
	if e.Phase == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
}

func (e Generic) UserFriendly() bool {
	return true
}

func (e Generic) ErrorType() ErrorType {
	return ErrorTypeGeneric
}

// SpecValidation is fatal to the whole invocation and is raised before
// any repetition starts
type SpecValidation struct {
	Field  string
	Reason string
}

func (e SpecValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("experiment spec validation failed, %s", e.Reason)
	}
	return fmt.Sprintf("experiment spec validation failed for '%s', %s", e.Field, e.Reason)
}

func (e SpecValidation) UserFriendly() bool {
	return true
}

func (e SpecValidation) ErrorType() ErrorType {
	return ErrorTypeSpecValidation
}

// BuildTimeout is fatal to a single repetition only
type BuildTimeout struct {
	Timeout string
	Reason  string
}

func (e BuildTimeout) Error() string {
	return fmt.Sprintf("sue did not become healthy within %s, %s", e.Timeout, e.Reason)
}

func (e BuildTimeout) UserFriendly() bool {
	return true
}

func (e BuildTimeout) ErrorType() ErrorType {
	return ErrorTypeBuildTimeout
}

// TreatmentInject is captured per treatment, never fatal
type TreatmentInject struct {
	Treatment string
	Target    string
	Reason    string
}

func (e TreatmentInject) Error() string {
	return fmt.Sprintf("failed to inject treatment '%s' into target '%s', %s", e.Treatment, e.Target, e.Reason)
}

func (e TreatmentInject) UserFriendly() bool {
	return true
}

func (e TreatmentInject) ErrorType() ErrorType {
	return ErrorTypeTreatmentInject
}

// TreatmentRecover is captured per treatment, never fatal
type TreatmentRecover struct {
	Treatment string
	Target    string
	Reason    string
}

func (e TreatmentRecover) Error() string {
	return fmt.Sprintf("failed to recover treatment '%s' on target '%s', %s", e.Treatment, e.Target, e.Reason)
}

func (e TreatmentRecover) UserFriendly() bool {
	return true
}

func (e TreatmentRecover) ErrorType() ErrorType {
	return ErrorTypeTreatmentRecover
}

// TelemetryQuery is captured per response variable after bounded retries
type TelemetryQuery struct {
	Variable string
	Backend  string
	Reason   string
}

func (e TelemetryQuery) Error() string {
	return fmt.Sprintf("failed to query %s backend for response variable '%s', %s", e.Backend, e.Variable, e.Reason)
}

func (e TelemetryQuery) UserFriendly() bool {
	return true
}

func (e TelemetryQuery) ErrorType() ErrorType {
	return ErrorTypeTelemetryQuery
}

// ReportWrite is fatal to the invocation
type ReportWrite struct {
	Path   string
	Reason string
}

func (e ReportWrite) Error() string {
	return fmt.Sprintf("failed to write report to '%s', %s", e.Path, e.Reason)
}

func (e ReportWrite) UserFriendly() bool {
	return true
}

func (e ReportWrite) ErrorType() ErrorType {
	return ErrorTypeReportWrite
}
