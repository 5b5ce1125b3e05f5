package attest

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"slices"
)

const pemCertificateType = "CERTIFICATE"

// Chain is an ordered certificate chain: root first, then the cabundle in document order, then the leaf.
type Chain []*x509.Certificate

// Leaf returns the last certificate of the chain.
func (c Chain) Leaf() *x509.Certificate {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// DERToPEM wraps a DER certificate in PEM armor with 64 character base64 lines.
func DERToPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemCertificateType, Bytes: der})
}

// ParsePEMCertificate parses the first certificate block of pemBytes.
func ParsePEMCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != pemCertificateType {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// BuildChain assembles [root, cabundle..., leaf] and checks that every certificate up to and including the
// last cabundle entry is signed by its predecessor with ECDSA SHA-384.
// The leaf's own signature, validity periods, revocation and key usages are not checked.
func BuildChain(root *x509.Certificate, cabundle [][]byte, leaf []byte) (Chain, error) {
	if root == nil {
		return nil, &ChainError{Index: 0, Err: ErrNoTrustedRoot}
	}
	chain := make(Chain, 0, len(cabundle)+2)
	chain = append(chain, root)
	for i, der := range append(slices.Clip(cabundle), leaf) {
		cert, err := ParsePEMCertificate(DERToPEM(der))
		if err != nil {
			return nil, &ChainError{Index: i + 1, Err: err}
		}
		chain = append(chain, cert)
	}

	for i := 1; i < len(chain)-1; i++ {
		issuer, subject := chain[i-1], chain[i]
		if err := issuer.CheckSignature(x509.ECDSAWithSHA384, subject.RawTBSCertificate, subject.Signature); err != nil {
			return nil, &ChainError{Index: i, Err: fmt.Errorf("not signed by the certificate at index %d: %w", i-1, err)}
		}
	}
	return chain, nil
}
