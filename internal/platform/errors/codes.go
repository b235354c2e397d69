package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeMissingParameters Code = "MISSING_PARAMETERS"
	CodeInvalidEmail      Code = "INVALID_EMAIL"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"

	// Lookup errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeIdentityNotFound   Code = "IDENTITY_NOT_FOUND"
	CodeInviteTokenExpired Code = "INVITE_TOKEN_EXPIRED"

	// State-conflict errors
	CodeContactAlreadyBound     Code = "CONTACT_ALREADY_BOUND"
	CodeRegistrationInProgress  Code = "REGISTRATION_IN_PROGRESS"
	CodeInviteAlreadyAccepted   Code = "INVITE_ALREADY_ACCEPTED"
	CodeColumnMappingUnresolved Code = "COLUMN_MAPPING_UNRESOLVED"

	// Upstream errors
	CodeUpstreamError      Code = "UPSTREAM_ERROR"
	CodeMailDeliveryFailed Code = "MAIL_DELIVERY_FAILED"
)

// HTTPStatus maps domain codes to HTTP response statuses.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, missing input
	case CodeMissingParameters,
		CodeInvalidEmail,
		CodeInvalidArgument:
		return http.StatusBadRequest

	// Not found - token, identity, or CRM item absent
	case CodeNotFound,
		CodeIdentityNotFound,
		CodeInviteTokenExpired:
		return http.StatusNotFound

	// Conflict - state does not allow the operation
	case CodeContactAlreadyBound,
		CodeRegistrationInProgress,
		CodeInviteAlreadyAccepted:
		return http.StatusConflict

	// Internal - upstream provider failures and everything else
	case CodeUpstreamError,
		CodeMailDeliveryFailed,
		CodeColumnMappingUnresolved,
		CodeUnknown:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
