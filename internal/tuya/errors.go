package tuya

import (
	"errors"
	"fmt"
)

// Vendor error codes this client branches on
const (
	codeSignatureInvalid = 1004
	codeTokenInvalid     = 1010
	codeParamIllegal     = 1109
)

// ErrMalformedProperty indicates a raw property or response record that does
// not match the device's documented schema. Absence of a required field is an
// error here, never a silent default.
var ErrMalformedProperty = errors.New("malformed property payload")

// TransportError wraps network-level failures (connect, timeout, body read).
// These are the only failures worth retrying.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the vendor rejected the access token (code 1010). The
// client recovers by invalidating the cache and retrying once.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("access token rejected (code %d): %s", e.Code, e.Msg)
}

// SignatureError means the vendor rejected the request signature (code 1004).
// Usually clock skew or wrong credentials; not recoverable from the client
// side, so it is surfaced to the operator.
type SignatureError struct {
	Code int
	Msg  string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("request signature rejected (code %d): %s", e.Code, e.Msg)
}

// VendorError is any other non-success envelope, surfaced with the vendor's
// code and message (1109 "parameter illegal" lands here).
type VendorError struct {
	Code int
	Msg  string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vendor rejected request (code %d): %s", e.Code, e.Msg)
}

// IsRetryable reports whether err is a transport failure worth retrying
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// classifyEnvelope maps a non-success vendor envelope to a typed error
func classifyEnvelope(code int, msg string) error {
	switch code {
	case codeTokenInvalid:
		return &AuthError{Code: code, Msg: msg}
	case codeSignatureInvalid:
		return &SignatureError{Code: code, Msg: msg}
	default:
		return &VendorError{Code: code, Msg: msg}
	}
}
