package errors

import "net/http"

// Error code constants.
// Errors carry code + message; backend logs are always in English.

// Directory error codes.
const (
	CodeDirectoryUnavailable  = "DIRECTORY_UNAVAILABLE"
	CodeDirectoryUnauthorized = "DIRECTORY_UNAUTHORIZED"
	CodeDirectoryForbidden    = "DIRECTORY_FORBIDDEN"
	CodePrincipalUnresolved   = "PRINCIPAL_UNRESOLVED"
)

// Role mutation error codes.
const (
	CodeActivationFailed   = "ROLE_ACTIVATION_FAILED"
	CodeDeactivationFailed = "ROLE_DEACTIVATION_FAILED"
	CodeMutationInFlight   = "ROLE_MUTATION_IN_FLIGHT"
)

// Auth error codes.
const (
	CodeAuthFailed          = "AUTH_FAILED"
	CodeInteractionRequired = "INTERACTION_REQUIRED"
	CodeTokenInvalid        = "TOKEN_INVALID"
)

// Validation error codes.
const (
	CodeJustificationRequired = "JUSTIFICATION_REQUIRED"
	CodeInvalidDuration       = "INVALID_DURATION"
	CodeRoleKeyRequired       = "ROLE_KEY_REQUIRED"
	CodeValidationFailed      = "VALIDATION_FAILED"
)

// Convenience constructors using predefined codes.

// ErrJustificationRequiredf creates the error returned when a justification is blank.
func ErrJustificationRequiredf() *AppError {
	return &AppError{
		Code:       CodeJustificationRequired,
		Message:    "justification is required",
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrInvalidDurationf creates the error returned for a malformed duration token.
func ErrInvalidDurationf(token string) *AppError {
	return &AppError{
		Code:       CodeInvalidDuration,
		Message:    "duration must look like PT[nH][nM]",
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"duration": token},
	}
}

// ErrRoleKeyRequiredf creates the error returned when a role key is incomplete.
func ErrRoleKeyRequiredf() *AppError {
	return &AppError{
		Code:       CodeRoleKeyRequired,
		Message:    "roleDefinitionId and directoryScopeId are required",
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrMutationInFlightf creates the error returned when another activation or
// deactivation is still outstanding.
func ErrMutationInFlightf() *AppError {
	return &AppError{
		Code:       CodeMutationInFlight,
		Message:    "another role activation or deactivation is in progress",
		HTTPStatus: http.StatusConflict,
	}
}
