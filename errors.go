package agentictrust

import (
	"errors"
	"fmt"
)

// ErrorKind classifies protocol errors so callers can branch on the failure
// class without string matching.
type ErrorKind string

const (
	// KindConfiguration: a required network, contract address, or signer is missing.
	KindConfiguration ErrorKind = "configuration"
	// KindAuthorization: a registry approval is missing or no signature candidate validated.
	KindAuthorization ErrorKind = "authorization"
	// KindNetwork: an RPC or gateway call failed or timed out.
	KindNetwork ErrorKind = "network"
	// KindEncoding: malformed address or record bytes.
	KindEncoding ErrorKind = "encoding"
	// KindNotFound: a referenced on-chain association is absent or mismatched.
	KindNotFound ErrorKind = "not_found"
)

// ProtocolError carries the taxonomy kind alongside a human-readable cause
// and optional structured details.
type ProtocolError struct {
	Kind    ErrorKind              `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewConfigurationError names the exact missing setting.
func NewConfigurationError(message string) *ProtocolError {
	return &ProtocolError{Kind: KindConfiguration, Message: message}
}

// NewAuthorizationError names the failed check.
func NewAuthorizationError(message string) *ProtocolError {
	return &ProtocolError{Kind: KindAuthorization, Message: message}
}

// NewNetworkError wraps a failed RPC or gateway call.
func NewNetworkError(message string, err error) *ProtocolError {
	return &ProtocolError{Kind: KindNetwork, Message: message, Err: err}
}

// NewEncodingError reports malformed address or record bytes.
func NewEncodingError(message string) *ProtocolError {
	return &ProtocolError{Kind: KindEncoding, Message: message}
}

// NewNotFoundError reports an absent or mismatched on-chain reference.
func NewNotFoundError(message string) *ProtocolError {
	return &ProtocolError{Kind: KindNotFound, Message: message}
}

// IsKind reports whether err (or anything it wraps) is a ProtocolError of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
