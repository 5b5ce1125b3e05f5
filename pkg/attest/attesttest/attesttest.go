// Package attesttest builds synthetic Nitro style certificate hierarchies and signed attestation envelopes for tests.
package attesttest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// ModuleID is the module_id of documents produced by Fields.
const ModuleID = "i-0123456789abcdef0-enc0123456789abcdef"

var (
	// PublicKey is the public_key of documents produced by Fields.
	PublicKey = []byte("enclave application public key")
	// UserData is the user_data of documents produced by Fields.
	UserData = []byte("attested user data")
	// Nonce is the nonce of documents produced by Fields.
	Nonce = []byte("0f6a3b1c-5d2e-4f70-9a81-b2c3d4e5f607")
)

// Authority is a root, a run of intermediates and a leaf, each with a P-384 key.
type Authority struct {
	Root          *x509.Certificate
	Intermediates []*x509.Certificate
	Leaf          *x509.Certificate
	LeafKey       *ecdsa.PrivateKey
}

// NewAuthority creates a hierarchy root -> intermediates[0] -> ... -> leaf.
func NewAuthority(tb testing.TB, intermediates int) *Authority {
	tb.Helper()
	auth, err := newAuthority(intermediates)
	if err != nil {
		tb.Fatalf("failed to create certificate authority: %v", err)
	}
	return auth
}

func newAuthority(intermediates int) (*Authority, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}
	rootTmpl, err := template("aws.nitro-enclaves", true)
	if err != nil {
		return nil, err
	}
	root, err := issue(rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create root: %w", err)
	}

	auth := &Authority{Root: root}
	parent, parentKey := root, rootKey
	for i := range intermediates {
		key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate intermediate key: %w", err)
		}
		tmpl, err := template(fmt.Sprintf("intermediate-%d.aws.nitro-enclaves", i), true)
		if err != nil {
			return nil, err
		}
		cert, err := issue(tmpl, parent, &key.PublicKey, parentKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create intermediate %d: %w", i, err)
		}
		auth.Intermediates = append(auth.Intermediates, cert)
		parent, parentKey = cert, key
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate leaf key: %w", err)
	}
	leafTmpl, err := template(ModuleID+".aws.nitro-enclaves", false)
	if err != nil {
		return nil, err
	}
	auth.Leaf, err = issue(leafTmpl, parent, &leafKey.PublicKey, parentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create leaf: %w", err)
	}
	auth.LeafKey = leafKey
	return auth, nil
}

func template(commonName string, isCA bool) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Country: []string{"US"}, Organization: []string{"Amazon"}, OrganizationalUnit: []string{"AWS"}, CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		SignatureAlgorithm:    x509.ECDSAWithSHA384,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
		KeyUsage:              x509.KeyUsageDigitalSignature,
	}
	if isCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	}
	return tmpl, nil
}

func issue(tmpl, parent *x509.Certificate, pub *ecdsa.PublicKey, parentKey *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, parentKey)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

// CABundle returns the DER encoded intermediates, root side first.
func (a *Authority) CABundle() [][]byte {
	bundle := make([][]byte, 0, len(a.Intermediates))
	for _, cert := range a.Intermediates {
		bundle = append(bundle, cert.Raw)
	}
	return bundle
}

// Fields returns the fields of a valid attestation document issued by the authority's leaf.
// Tests mutate or delete entries before passing the map to Sign.
func (a *Authority) Fields() map[string]any {
	return map[string]any{
		"module_id": ModuleID,
		"digest":    "SHA384",
		"timestamp": uint64(time.Now().UnixMilli()),
		"pcrs": map[int][]byte{
			0: bytes.Repeat([]byte{0x00}, 48),
			1: bytes.Repeat([]byte{0x01}, 48),
			2: bytes.Repeat([]byte{0x02}, 48),
		},
		"certificate": a.Leaf.Raw,
		"cabundle":    a.CABundle(),
		"public_key":  PublicKey,
		"user_data":   UserData,
		"nonce":       Nonce,
	}
}

// Sign encodes fields as the document payload and signs it with the leaf key.
func (a *Authority) Sign(tb testing.TB, fields map[string]any) []byte {
	tb.Helper()
	payload, err := cbor.Marshal(fields)
	if err != nil {
		tb.Fatalf("failed to encode attestation document: %v", err)
	}
	return SignPayload(tb, a.LeafKey, payload)
}

// Document returns a signed envelope carrying the default fields.
func (a *Authority) Document(tb testing.TB) []byte {
	tb.Helper()
	return a.Sign(tb, a.Fields())
}

// SignPayload wraps payload in an untagged COSE_Sign1 envelope signed with ES384, as the NSM does.
func SignPayload(tb testing.TB, key *ecdsa.PrivateKey, payload []byte) []byte {
	tb.Helper()
	signer, err := cose.NewSigner(cose.AlgorithmES384, key)
	if err != nil {
		tb.Fatalf("failed to create signer: %v", err)
	}
	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{cose.HeaderLabelAlgorithm: cose.AlgorithmES384},
		},
		Payload: payload,
	}
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		tb.Fatalf("failed to sign envelope: %v", err)
	}
	untagged := cose.UntaggedSign1Message(msg)
	data, err := untagged.MarshalCBOR()
	if err != nil {
		tb.Fatalf("failed to encode envelope: %v", err)
	}
	return data
}
