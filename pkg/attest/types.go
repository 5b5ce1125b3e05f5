package attest

import "github.com/fxamacker/cbor/v2"

const (
	// ExpectedDigest is the only PCR digest algorithm accepted in a document.
	ExpectedDigest = "SHA384"
	// MaxPCRIndex is the exclusive upper bound of a PCR index.
	MaxPCRIndex = 32
	// MaxCertificateLength is the largest accepted cabundle entry.
	MaxCertificateLength = 1024
	// MaxPublicKeyLength is the largest accepted public_key.
	MaxPublicKeyLength = 1024
	// MaxUserDataLength is the largest accepted user_data.
	MaxUserDataLength = 512
	// MaxNonceLength is the largest accepted nonce.
	MaxNonceLength = 512
	// CoordinateSize is the size in bytes of a P-384 field element.
	CoordinateSize = 48
)

// Document field names as they appear in the CBOR payload.
const (
	FieldModuleID    = "module_id"
	FieldDigest      = "digest"
	FieldTimestamp   = "timestamp"
	FieldPCRs        = "pcrs"
	FieldCertificate = "certificate"
	FieldCABundle    = "cabundle"
	FieldPublicKey   = "public_key"
	FieldUserData    = "user_data"
	FieldNonce       = "nonce"
)

// Envelope is a decoded COSE_Sign1 message. The elements stay encoded until a later stage consumes them.
type Envelope struct {
	Protected   cbor.RawMessage
	Unprotected cbor.RawMessage
	Payload     cbor.RawMessage
	Signature   cbor.RawMessage
}

// RawDocument is the attestation document payload decoded one level deep.
type RawDocument map[string]cbor.RawMessage

// AttestationDocument represents the attestation document structure.
type AttestationDocument struct {
	// ModuleID is the issuing NSM ID
	ModuleID string

	// Digest is the digest function used for calculating the register values
	Digest string

	// Timestamp is the UTC time when document was created expressed as milliseconds since Unix Epoch
	Timestamp uint64

	// PCRs is the map of all locked PCRs at the moment the attestation document was generated
	PCRs map[int64][]byte

	// Certificate is the infrastructure certificate used to sign the document, DER encoded
	Certificate []byte

	// CABundle is the issuing CA bundle for infrastructure certificate, ordered from the root side
	CABundle [][]byte

	// PublicKey is an optional key the attestation consumer can use to encrypt data with.
	// Nil when absent.
	PublicKey []byte

	// UserData is additional signed user data. Nil when absent.
	UserData []byte

	// Nonce is an optional cryptographic nonce provided by the attestation consumer. Nil when absent.
	Nonce []byte
}

// VerifierKey is the leaf certificate's P-384 public point as hex encoded big-endian coordinates.
type VerifierKey struct {
	X string
	Y string
}

// Result is the output of a successful verification.
// A nil field means the document did not carry it.
type Result struct {
	UserData  []byte
	PublicKey []byte
}
