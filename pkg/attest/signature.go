package attest

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/veraison/go-cose"
)

// PublicKey rebuilds the P-384 ECDSA public key. The point must lie on the curve.
func (k *VerifierKey) PublicKey() (*ecdsa.PublicKey, error) {
	x, err := decodeCoordinate(k.X)
	if err != nil {
		return nil, fmt.Errorf("invalid x coordinate: %w", err)
	}
	y, err := decodeCoordinate(k.Y)
	if err != nil {
		return nil, fmt.Errorf("invalid y coordinate: %w", err)
	}
	point := make([]byte, 0, 1+2*CoordinateSize)
	point = append(point, uncompressedPoint)
	point = append(point, x...)
	point = append(point, y...)
	if _, err := ecdh.P384().NewPublicKey(point); err != nil {
		return nil, fmt.Errorf("point is not on P-384: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P384(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

func decodeCoordinate(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != CoordinateSize {
		return nil, fmt.Errorf("expected %d bytes, got %d", CoordinateSize, len(b))
	}
	return b, nil
}

// VerifySignature verifies the COSE_Sign1 signature of the raw envelope with ES384 and the given key.
// The Sig_structure uses the "Signature1" context and an empty external AAD.
func VerifySignature(data []byte, key *VerifierKey) error {
	pubKey, err := key.PublicKey()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES384, pubKey)
	if err != nil {
		return fmt.Errorf("%w: failed to create verifier: %w", ErrSignatureInvalid, err)
	}

	var msg cose.UntaggedSign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return fmt.Errorf("%w: failed to parse COSE_Sign1: %w", ErrSignatureInvalid, err)
	}
	if err := (*cose.Sign1Message)(&msg).Verify(nil, verifier); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	return nil
}
