package attest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// coseSign1Elements is the arity of an untagged COSE_Sign1 array.
const coseSign1Elements = 4

// envelopeDecMode rejects CBOR tags. Attestation documents are sent as an untagged COSE_Sign1 array.
var envelopeDecMode = mustDecMode(cbor.DecOptions{TagsMd: cbor.TagsForbidden})

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	decMode, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("invalid cbor decoding options: %v", err))
	}
	return decMode
}

// DecodeEnvelope decodes data as a COSE_Sign1 array of exactly four elements.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var elements []cbor.RawMessage
	if err := envelopeDecMode.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(elements) != coseSign1Elements {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", ErrMalformedEnvelope, coseSign1Elements, len(elements))
	}
	return &Envelope{
		Protected:   elements[0],
		Unprotected: elements[1],
		Payload:     elements[2],
		Signature:   elements[3],
	}, nil
}

// DecodeDocument decodes the envelope payload into a map of still encoded document fields.
// Field semantics are left to ValidateDocument.
func DecodeDocument(envelope *Envelope) (RawDocument, error) {
	var payload []byte
	if err := cbor.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not a byte string: %w", ErrMalformedDocument, err)
	}
	var doc RawDocument
	if err := cbor.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: payload is not a map", ErrMalformedDocument)
	}
	return doc, nil
}
