package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable error identifier returned to clients.
type Code string

const (
	CodeNoOrganizationContext   Code = "NO_ORGANIZATION_CONTEXT"
	CodeTenantNotFound          Code = "TENANT_NOT_FOUND"
	CodeTenantDeleted           Code = "TENANT_DELETED"
	CodeAccountSuspended        Code = "ACCOUNT_SUSPENDED"
	CodeAccountCancelled        Code = "ACCOUNT_CANCELLED"
	CodeTrialExpired            Code = "TRIAL_EXPIRED"
	CodeAccountReadOnly         Code = "ACCOUNT_READ_ONLY"
	CodeFeatureNotAvailable     Code = "FEATURE_NOT_AVAILABLE"
	CodeLimitReached            Code = "LIMIT_REACHED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeConnectionLeaseTimeout  Code = "CONNECTION_LEASE_TIMEOUT"
	CodeSchemaBindFailure       Code = "SCHEMA_BIND_FAILURE"
	CodeUnauthenticated         Code = "UNAUTHENTICATED"
	CodeInvalidSignature        Code = "INVALID_SIGNATURE"
	CodeInvalidRequest          Code = "INVALID_REQUEST"
	CodeNotFound                Code = "NOT_FOUND"
	CodeRequestCancelled        Code = "REQUEST_CANCELLED"
	CodeRequestTimeout          Code = "REQUEST_TIMEOUT"
	CodeInternal                Code = "INTERNAL"
)

// StatusClientClosedRequest is used when the caller went away before a response.
const StatusClientClosedRequest = 499

// Error is the uniform error body.
type Error struct {
	Code           Code           `json:"errorCode"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	RemediationURL string         `json:"remediationUrl,omitempty"`

	Status int   `json:"-"`
	cause  error
}

// New creates an Error.
func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithRemediation returns a copy of e pointing the client at url.
func (e *Error) WithRemediation(url string) *Error {
	c := *e
	c.RemediationURL = url
	return &c
}

// WithCause returns a copy of e wrapping cause. The cause is never serialized.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

// Write renders e as JSON.
func Write(w http.ResponseWriter, e *Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
