package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes for the failure classes the claim lifecycle distinguishes. Handlers
// map these to HTTP statuses; services wrap underlying errors with them so
// callers can branch on the class without string matching.
const (
	CodeValidation                 = "validation_error"
	CodeIntegrityViolation         = "integrity_violation"
	CodeNotFound                   = "not_found"
	CodeMalformedCredential        = "malformed_credential"
	CodeCredentialExpired          = "credential_expired"
	CodeProvisioningIntegrity      = "provisioning_integrity"
	CodeReconciliationVerification = "reconciliation_verification"
	CodeNotificationFailed         = "notification_failed"
	CodeSignatureVerification      = "signature_verification"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(err error) *Error {
	return New(http.StatusBadRequest, CodeValidation, err)
}

func IntegrityViolation(err error) *Error {
	return New(http.StatusConflict, CodeIntegrityViolation, err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

func MalformedCredential(err error) *Error {
	return New(http.StatusBadRequest, CodeMalformedCredential, err)
}

func CredentialExpired(err error) *Error {
	return New(http.StatusBadRequest, CodeCredentialExpired, err)
}

func ProvisioningIntegrity(err error) *Error {
	return New(http.StatusInternalServerError, CodeProvisioningIntegrity, err)
}

func ReconciliationVerification(err error) *Error {
	return New(http.StatusInternalServerError, CodeReconciliationVerification, err)
}

func SignatureVerification(err error) *Error {
	return New(http.StatusBadRequest, CodeSignatureVerification, err)
}

// HasCode reports whether err (or anything it wraps) is an *Error carrying
// the given code.
func HasCode(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// StatusOf returns the HTTP status for err, defaulting to 500 for errors
// that are not *Error.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the apierr code for err, or "internal_error".
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}
