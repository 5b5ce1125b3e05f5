package attest

import (
	"crypto/x509"
	encoding_asn1 "encoding/asn1"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// uncompressedPoint prefixes an uncompressed SEC 1 elliptic curve point.
const uncompressedPoint = 0x04

// ExtractVerifierKey parses the leaf certificate's SubjectPublicKeyInfo as
// SEQUENCE { SEQUENCE { algorithm OID, curve OID }, BIT STRING } and returns the point coordinates.
func ExtractVerifierKey(leaf *x509.Certificate) (*VerifierKey, error) {
	if leaf == nil {
		return nil, fmt.Errorf("%w: no leaf certificate", ErrMalformedPublicKey)
	}
	var (
		input    = cryptobyte.String(leaf.RawSubjectPublicKeyInfo)
		spki     cryptobyte.String
		algo     cryptobyte.String
		algoOID  encoding_asn1.ObjectIdentifier
		curveOID encoding_asn1.ObjectIdentifier
		pubKey   encoding_asn1.BitString
	)
	if !input.ReadASN1(&spki, cryptobyte_asn1.SEQUENCE) || !input.Empty() ||
		!spki.ReadASN1(&algo, cryptobyte_asn1.SEQUENCE) ||
		!algo.ReadASN1ObjectIdentifier(&algoOID) ||
		!algo.ReadASN1ObjectIdentifier(&curveOID) || !algo.Empty() ||
		!spki.ReadASN1BitString(&pubKey) || !spki.Empty() {
		return nil, fmt.Errorf("%w: not an elliptic curve SubjectPublicKeyInfo", ErrMalformedPublicKey)
	}

	point := pubKey.RightAlign()
	if len(point) != 1+2*CoordinateSize || point[0] != uncompressedPoint {
		return nil, fmt.Errorf("%w: expected a %d byte uncompressed point, got %d bytes",
			ErrMalformedPublicKey, 1+2*CoordinateSize, len(point))
	}
	return &VerifierKey{
		X: hex.EncodeToString(point[1 : 1+CoordinateSize]),
		Y: hex.EncodeToString(point[1+CoordinateSize:]),
	}, nil
}
