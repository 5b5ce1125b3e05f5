package attest

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

var requiredFields = []string{
	FieldModuleID,
	FieldDigest,
	FieldTimestamp,
	FieldPCRs,
	FieldCertificate,
	FieldCABundle,
}

// ValidateDocument checks presence, type and bounds of every document field and returns the typed document.
// Checks run in a fixed order and the first failure is returned as a *FieldError.
func ValidateDocument(doc RawDocument) (*AttestationDocument, error) {
	for _, name := range requiredFields {
		if !doc.present(name) {
			return nil, missingField(name)
		}
	}

	var attDoc AttestationDocument
	if err := doc.decode(FieldModuleID, &attDoc.ModuleID); err != nil {
		return nil, err
	}
	if len(attDoc.ModuleID) == 0 {
		return nil, invalidField(FieldModuleID)
	}

	if err := doc.decode(FieldDigest, &attDoc.Digest); err != nil {
		return nil, err
	}
	if attDoc.Digest != ExpectedDigest {
		return nil, invalidField(FieldDigest)
	}

	if err := doc.decode(FieldTimestamp, &attDoc.Timestamp); err != nil {
		return nil, err
	}
	if attDoc.Timestamp == 0 {
		return nil, invalidField(FieldTimestamp)
	}

	var err error
	if attDoc.PCRs, err = decodePCRs(doc[FieldPCRs]); err != nil {
		return nil, err
	}

	if err := doc.decode(FieldCertificate, &attDoc.Certificate); err != nil {
		return nil, err
	}

	if err := doc.decode(FieldCABundle, &attDoc.CABundle); err != nil {
		return nil, err
	}
	if len(attDoc.CABundle) == 0 {
		return nil, invalidField(FieldCABundle)
	}
	for i, cert := range attDoc.CABundle {
		if !inRange(0, MaxCertificateLength, len(cert)) {
			return nil, invalidField(fmt.Sprintf("%s[%d]", FieldCABundle, i))
		}
	}

	if attDoc.PublicKey, err = doc.optionalBytes(FieldPublicKey); err != nil {
		return nil, err
	}
	if attDoc.PublicKey != nil && !inRange(0, MaxPublicKeyLength, len(attDoc.PublicKey)) {
		return nil, invalidField(FieldPublicKey)
	}

	// user_data and nonce may be present but empty.
	if attDoc.UserData, err = doc.optionalBytes(FieldUserData); err != nil {
		return nil, err
	}
	if attDoc.UserData != nil && !inRange(-1, MaxUserDataLength, len(attDoc.UserData)) {
		return nil, invalidField(FieldUserData)
	}

	if attDoc.Nonce, err = doc.optionalBytes(FieldNonce); err != nil {
		return nil, err
	}
	if attDoc.Nonce != nil && !inRange(-1, MaxNonceLength, len(attDoc.Nonce)) {
		return nil, invalidField(FieldNonce)
	}

	return &attDoc, nil
}

// pcrDecMode keeps integer keys beyond the int64 range as *big.Int so they can be used as map keys.
var pcrDecMode = mustDecMode(cbor.DecOptions{BigIntDec: cbor.BigIntDecodePointer})

type pcrEntry struct {
	index *big.Int
	key   any
}

// decodePCRs decodes the register map with untyped keys so that any integer index can be named in the error.
// Registers are walked in ascending index order so the reported failure is deterministic.
func decodePCRs(raw cbor.RawMessage) (map[int64][]byte, error) {
	var entries map[any]cbor.RawMessage
	if err := pcrDecMode.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", invalidField(FieldPCRs), err)
	}

	sorted := make([]pcrEntry, 0, len(entries))
	for key := range entries {
		var index *big.Int
		switch k := key.(type) {
		case uint64:
			index = new(big.Int).SetUint64(k)
		case int64:
			index = big.NewInt(k)
		case *big.Int:
			index = k
		default:
			return nil, fmt.Errorf("%w: index %v is not an integer", invalidField(FieldPCRs), key)
		}
		sorted = append(sorted, pcrEntry{index: index, key: key})
	}
	slices.SortFunc(sorted, func(a, b pcrEntry) int { return a.index.Cmp(b.index) })

	maxIndex := big.NewInt(MaxPCRIndex)
	pcrs := make(map[int64][]byte, len(sorted))
	for _, entry := range sorted {
		name := fmt.Sprintf("%s[%s]", FieldPCRs, entry.index)
		if entry.index.Sign() < 0 || entry.index.Cmp(maxIndex) >= 0 {
			return nil, invalidField(name)
		}
		var value []byte
		if err := cbor.Unmarshal(entries[entry.key], &value); err != nil {
			return nil, fmt.Errorf("%w: %w", invalidField(name), err)
		}
		switch len(value) {
		case 32, 48, 64:
		default:
			return nil, invalidField(name)
		}
		pcrs[entry.index.Int64()] = value
	}
	return pcrs, nil
}

// inRange reports whether start < value <= end.
func inRange(start, end, value int) bool {
	return value > start && value <= end
}

func (d RawDocument) present(name string) bool {
	raw, ok := d[name]
	return ok && !isNull(raw)
}

func (d RawDocument) decode(name string, dst any) error {
	if err := cbor.Unmarshal(d[name], dst); err != nil {
		return fmt.Errorf("%w: %w", invalidField(name), err)
	}
	return nil
}

// optionalBytes returns nil for an absent or null field and a non-nil slice otherwise.
func (d RawDocument) optionalBytes(name string) ([]byte, error) {
	if !d.present(name) {
		return nil, nil
	}
	var value []byte
	if err := d.decode(name, &value); err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// isNull reports whether raw is the CBOR simple value null or undefined.
func isNull(raw cbor.RawMessage) bool {
	return len(raw) == 1 && (raw[0] == 0xf6 || raw[0] == 0xf7)
}
