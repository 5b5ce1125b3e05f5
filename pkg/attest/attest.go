// Package attest verifies AWS Nitro Enclave attestation documents.
//
// Verification runs a fixed pipeline: decode the COSE_Sign1 envelope, decode the document payload,
// validate the document fields, rebuild the certificate chain from the trusted root, extract the leaf
// public key and verify the envelope signature. Any failure rejects the document.
package attest

import (
	"crypto/x509"
	"fmt"
)

// Verifier verifies attestation documents against a single trusted root.
// A Verifier holds no mutable state and is safe for concurrent use.
type Verifier struct {
	root *x509.Certificate
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRootCertificate replaces the embedded AWS Nitro root as the trust anchor.
func WithRootCertificate(root *x509.Certificate) Option {
	return func(v *Verifier) {
		v.root = root
	}
}

// NewVerifier creates a Verifier. Without options it trusts the embedded AWS Nitro root.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify verifies data against the embedded AWS Nitro root.
func Verify(data []byte) (*Result, error) {
	return NewVerifier().Verify(data)
}

// Verify checks the raw COSE_Sign1 attestation envelope and returns the attested user data and public key.
// The returned error unwraps to one of the Err kinds of this package.
func (v *Verifier) Verify(data []byte) (*Result, error) {
	attDoc, err := v.VerifyDocument(data)
	if err != nil {
		return nil, err
	}
	return &Result{
		UserData:  attDoc.UserData,
		PublicKey: attDoc.PublicKey,
	}, nil
}

// VerifyDocument runs the same checks as Verify and returns the whole validated document,
// for callers that also need the nonce, PCRs or timestamp.
func (v *Verifier) VerifyDocument(data []byte) (*AttestationDocument, error) {
	envelope, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	rawDoc, err := DecodeDocument(envelope)
	if err != nil {
		return nil, err
	}

	attDoc, err := ValidateDocument(rawDoc)
	if err != nil {
		return nil, err
	}

	root, err := v.trustedRoot()
	if err != nil {
		return nil, &ChainError{Index: 0, Err: err}
	}
	chain, err := BuildChain(root, attDoc.CABundle, attDoc.Certificate)
	if err != nil {
		return nil, err
	}

	key, err := ExtractVerifierKey(chain.Leaf())
	if err != nil {
		return nil, err
	}

	if err := VerifySignature(data, key); err != nil {
		return nil, err
	}
	return attDoc, nil
}

func (v *Verifier) trustedRoot() (*x509.Certificate, error) {
	if v.root != nil {
		return v.root, nil
	}
	root, err := AWSNitroRoot()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTrustedRoot, err)
	}
	return root, nil
}
