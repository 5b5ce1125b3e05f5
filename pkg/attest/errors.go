package attest

import (
	"errors"
	"fmt"
)

// Error is the kind of an attestation rejection.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrMalformedEnvelope is returned when the COSE_Sign1 envelope can't be decoded or is not a four element array.
	ErrMalformedEnvelope = Error("malformed attestation envelope")
	// ErrMalformedDocument is returned when the envelope payload can't be decoded into a map.
	ErrMalformedDocument = Error("malformed attestation document")
	// ErrMissingField is returned when a required document field is absent or null.
	ErrMissingField = Error("missing attestation document field")
	// ErrInvalidField is returned when a document field has the wrong type or is out of bounds.
	ErrInvalidField = Error("invalid attestation document field")
	// ErrInvalidChain is returned when a certificate does not validate against its issuer.
	ErrInvalidChain = Error("invalid certificate chain")
	// ErrMalformedPublicKey is returned when the leaf certificate's public key can't be parsed.
	ErrMalformedPublicKey = Error("malformed leaf public key")
	// ErrSignatureInvalid is returned when the envelope signature does not verify.
	ErrSignatureInvalid = Error("invalid attestation signature")
	// ErrNoTrustedRoot is wrapped by the ChainError returned when there is no usable root certificate.
	// It is a fault of the verifier, not of the document.
	ErrNoTrustedRoot = Error("no trusted root certificate")
)

// FieldError names the document field that failed validation.
type FieldError struct {
	// Field is the field name, with an index suffix for pcrs and cabundle entries.
	Field string
	// Err is either ErrMissingField or ErrInvalidField.
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Field)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ChainError names the position in the chain (root is 0) of the certificate that failed.
type ChainError struct {
	Index int
	Err   error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: certificate at index %d: %v", ErrInvalidChain, e.Index, e.Err)
}

func (e *ChainError) Unwrap() []error { return []error{ErrInvalidChain, e.Err} }

func missingField(name string) error {
	return &FieldError{Field: name, Err: ErrMissingField}
}

func invalidField(name string) error {
	return &FieldError{Field: name, Err: ErrInvalidField}
}

// Reason maps an error returned by Verify to a short stable identifier.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedEnvelope):
		return "malformed_envelope"
	case errors.Is(err, ErrMalformedDocument):
		return "malformed_document"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, ErrInvalidChain):
		return "invalid_chain"
	case errors.Is(err, ErrMalformedPublicKey):
		return "malformed_public_key"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "unknown"
	}
}
