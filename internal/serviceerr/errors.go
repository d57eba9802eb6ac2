// Package serviceerr defines the error codes and errors surfaced by the age gate.
// Codes follow RFC 6749 where a matching OAuth error exists.
package serviceerr

import "net/http"

type Code string

// RFC6749 Authorization errors
const (
	CodeInvalidRequest         Code = "invalid_request"
	CodeUnauthorizedClient     Code = "unauthorized_client"
	CodeAccessDenied           Code = "access_denied"
	CodeServerError            Code = "server_error"
	CodeTemporarilyUnavailable Code = "temporarily_unavailable"
)

// RFC6749 Token errors
const (
	CodeInvalidClient Code = "invalid_client"
	CodeInvalidGrant  Code = "invalid_grant"
)

// Custom codes
const (
	CodeUnknown              Code = "unknown"
	CodeConflict             Code = "conflict"
	CodeNotFound             Code = "not_found"
	CodeConfiguration        Code = "configuration_error"
	CodeStateMismatch        Code = "state_mismatch"
	CodeStateExpired         Code = "state_expired"
	CodeAgeRequirementNotMet Code = "age_requirement_not_met"
	CodeStorageCorrupted     Code = "storage_corrupted"
	CodeNoSecureRandom       Code = "no_secure_random"
	CodeInvalidCSRFToken     Code = "invalid_csrf_token"
)

type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// HTTPStatus maps the error code onto the status returned by the HTTP host.
func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeInvalidClient, CodeInvalidGrant, CodeStateMismatch:
		return http.StatusBadRequest
	case CodeUnauthorizedClient:
		return http.StatusUnauthorized
	case CodeAccessDenied, CodeAgeRequirementNotMet, CodeInvalidCSRFToken:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeStateExpired:
		return http.StatusGone
	case CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrInvalidRequest   = &Error{Err: CodeInvalidRequest}
	ErrAccessDenied     = &Error{Err: CodeAccessDenied}
	ErrServerError      = &Error{Err: CodeServerError}
	ErrUnauthorized     = &Error{Err: CodeUnauthorizedClient, Description: "unauthorized"}
	ErrUnknown          = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrConflict         = &Error{Err: CodeConflict, Description: "already exists"}
	ErrNotFound         = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConfiguration    = &Error{Err: CodeConfiguration, Description: "invalid configuration"}
	ErrStateMismatch    = &Error{Err: CodeStateMismatch, Description: "state does not match the stored authorization request"}
	ErrStateExpired     = &Error{Err: CodeStateExpired, Description: "state expired"}
	ErrProviderDenial   = &Error{Err: CodeAccessDenied, Description: "verification denied by the provider"}
	ErrAgeRequirement   = &Error{Err: CodeAgeRequirementNotMet, Description: "age requirement not met"}
	ErrStorageCorrupted = &Error{Err: CodeStorageCorrupted, Description: "stored payload could not be decoded"}
	ErrNoSecureRandom   = &Error{Err: CodeNoSecureRandom, Description: "no cryptographically secure random source available"}
	ErrInvalidCSRFToken = &Error{Err: CodeInvalidCSRFToken, Description: "invalid csrf token"}
)
