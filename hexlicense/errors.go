package hexlicense

import (
	"errors"
	"fmt"
)

// Sentinel errors for the validate flow.
var (
	ErrMissingLicenseKey = errors.New("no license key provided")
	ErrNetwork           = errors.New("license authority unreachable")
	ErrServerRejected    = errors.New("license rejected by server")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// Sentinel errors for the offline cache.
var (
	ErrCacheMissing      = errors.New("license cache not found")
	ErrCacheCorrupt      = errors.New("license cache corrupt")
	ErrDecryptFailure    = errors.New("decrypt failure")
	ErrCryptoUnavailable = errors.New("cryptography unavailable")
	ErrRecordNotValid    = errors.New("refusing to cache an invalid license record")
)

// Sentinel errors for offline acceptance.
var (
	ErrGraceExpired   = errors.New("offline validation period expired")
	ErrLicenseExpired = errors.New("cached license has expired")
)

// StatusError describes a non-2xx answer from the license authority.
// The authority may send {"error": "..."} or {"error": {"code": "...", "message": "..."}}.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %d: [%s] %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// NetworkError wraps any failure to obtain a verdict from the authority:
// DNS, connection, timeout, non-2xx status or an undecodable body.
// It matches ErrNetwork with errors.Is and exposes the cause (for example a
// *StatusError) through errors.As.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork, e.Op, e.Err)
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func networkError(op string, err error) error {
	return &NetworkError{Op: op, Err: err}
}

// RejectedError is an explicit invalid verdict from the authority.
// The message is the server's error string, surfaced verbatim.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrServerRejected
}

// reasonFor maps an offline failure to the outcome reason reported to callers.
func reasonFor(err error) RejectReason {
	switch {
	case errors.Is(err, ErrCacheMissing), errors.Is(err, ErrCryptoUnavailable):
		return ReasonNoCache
	case errors.Is(err, ErrGraceExpired):
		return ReasonGraceExpired
	case errors.Is(err, ErrLicenseExpired):
		return ReasonLicenseExpired
	default:
		return ReasonCacheCorrupt
	}
}
