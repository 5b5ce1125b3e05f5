package app

import (
	"bytes"
	"errors"
	"time"

	"github.com/DIMO-Network/enclave-attest/pkg/attest"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// VerifyRequest is the JSON form of a verification request.
type VerifyRequest struct {
	// Document is the raw COSE_Sign1 attestation document, base64 encoded in JSON.
	Document []byte `json:"document"`
}

// VerifyResponse is returned for an accepted attestation document.
// UserData and PublicKey are null when the document does not carry them.
type VerifyResponse struct {
	UserData        []byte `json:"userData"`
	PublicKey       []byte `json:"publicKey"`
	EthereumAddress string `json:"ethereumAddress,omitempty"`
}

// NewVerifyResponse converts a verification result. With withAddress set, a public key that is an uncompressed
// secp256k1 point is also described by its Ethereum address.
func NewVerifyResponse(result *attest.Result, withAddress bool) VerifyResponse {
	resp := VerifyResponse{
		UserData:  result.UserData,
		PublicKey: result.PublicKey,
	}
	if withAddress && result.PublicKey != nil {
		if pubKey, err := crypto.UnmarshalPubkey(result.PublicKey); err == nil {
			resp.EthereumAddress = crypto.PubkeyToAddress(*pubKey).Hex()
		}
	}
	return resp
}

// Controller verifies attestation documents posted to the service.
type Controller struct {
	verifier    *attest.Verifier
	logger      *zerolog.Logger
	withAddress bool
}

// NewController creates a new Controller.
func NewController(verifier *attest.Verifier, logger *zerolog.Logger, withAddress bool) *Controller {
	return &Controller{verifier: verifier, logger: logger, withAddress: withAddress}
}

// VerifyAttestation godoc
// @Summary Verify an attestation document
// @Description Verify a Nitro Enclave attestation document and return its user data and public key.
// @Tags attestation
// @Accept json,application/cbor,application/octet-stream
// @Produce json
// @Param request body VerifyRequest true "attestation document"
// @Success 200 {object} VerifyResponse
// @Failure 400 {object} codeResp
// @Failure 422 {object} codeResp
// @Router /v1/attestation/verify [post]
func (c *Controller) VerifyAttestation(ctx *fiber.Ctx) error {
	document, err := readDocument(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	start := time.Now()
	result, err := c.verifier.Verify(document)
	observeVerification(start, err)
	if err != nil {
		c.logger.Warn().Err(err).Str("reason", attest.Reason(err)).Msg("Attestation document rejected.")
		return err
	}

	return ctx.JSON(NewVerifyResponse(result, c.withAddress))
}

// readDocument accepts either a JSON VerifyRequest or the raw document as the body.
func readDocument(ctx *fiber.Ctx) ([]byte, error) {
	if ctx.Is("json") {
		var req VerifyRequest
		if err := ctx.BodyParser(&req); err != nil {
			return nil, errors.New("invalid JSON request body")
		}
		if len(req.Document) == 0 {
			return nil, errors.New("document is required")
		}
		return req.Document, nil
	}
	body := ctx.Body()
	if len(body) == 0 {
		return nil, errors.New("document is required")
	}
	// fiber reuses the request buffer once the handler returns.
	return bytes.Clone(body), nil
}
