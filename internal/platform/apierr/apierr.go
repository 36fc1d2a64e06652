package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable error codes. Components classify provider errors
// into one of these at their boundary; handlers map them to HTTP statuses.
const (
	CodeValidation        = "validation"
	CodeNotFound          = "not_found"
	CodePermissionDenied  = "permission_denied"
	CodeQuotaExceeded     = "quota_exceeded"
	CodeRateLimited       = "rate_limited"
	CodeDedupConflict     = "dedup_conflict"
	CodeUnauthorized      = "unauthorized"
	CodeTransientUpstream = "transient_upstream"
	CodeFailedJob         = "failed_job"
	CodeBusy              = "busy"
	CodeStaleToken        = "stale_token"
	CodeAuthReuse         = "auth_reuse"
	CodeFatal             = "fatal"
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

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

func PermissionDenied(err error) *Error {
	return New(http.StatusForbidden, CodePermissionDenied, err)
}

func QuotaExceeded(err error) *Error {
	return New(http.StatusPaymentRequired, CodeQuotaExceeded, err)
}

func RateLimited(err error) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, err)
}

func TransientUpstream(err error) *Error {
	return New(http.StatusBadGateway, CodeTransientUpstream, err)
}

func Busy(err error) *Error {
	return New(http.StatusConflict, CodeBusy, err)
}

func Unauthorized(err error) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, err)
}

// StaleToken marks a refresh token that has expired.
func StaleToken(err error) *Error {
	return New(http.StatusUnauthorized, CodeStaleToken, err)
}

// AuthReuse marks presentation of an already-rotated or revoked refresh
// token; the whole family gets revoked in response.
func AuthReuse(err error) *Error {
	return New(http.StatusUnauthorized, CodeAuthReuse, err)
}

// CodeOf extracts the stable code from err, or "" when err carries none.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// StatusOf extracts the HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}
