package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/DIMO-Network/enclave-attest/pkg/attest"
	"github.com/caarlos0/env/v11"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

const (
	// AttestationPath is the well-known path an enclave serves its attestation document on.
	AttestationPath = "/.well-known/nsm-attestation"
	// maxResponseBytes bounds the attestation response read from the enclave.
	maxResponseBytes = 1 << 20
)

var (
	// ErrEmptyDocument is returned when the enclave response carries no document.
	ErrEmptyDocument = errors.New("enclave returned an empty attestation document")
	// ErrNonceMismatch is returned when a verified document is not bound to the nonce of the request.
	ErrNonceMismatch = errors.New("attestation document nonce does not match the request")
)

// Settings configures how the enclave is reached.
type Settings struct {
	// EnclaveURL is the base URL of the enclave API.
	EnclaveURL string `env:"ENCLAVE_URL,required"`
	// VsockCID and VsockPort route requests through a vsock client tunnel when VsockPort is set.
	VsockCID  uint32 `env:"VSOCK_CID" envDefault:"3"`
	VsockPort uint32 `env:"VSOCK_PORT"`
	// RequestTimeout bounds a single attestation request.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// SettingsFromEnv parses Settings from the process environment.
func SettingsFromEnv() (Settings, error) {
	settings, err := env.ParseAs[Settings]()
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return settings, nil
}

// SettingsFromEnvMap parses Settings from envMap instead of the process environment.
func SettingsFromEnvMap(envMap map[string]string) (Settings, error) {
	settings, err := env.ParseAsWithOptions[Settings](env.Options{Environment: envMap})
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return settings, nil
}

type attestationResponse struct {
	Document []byte `json:"document"`
}

// Service requests attestation documents from an enclave.
type Service struct {
	httpClient     *http.Client
	attestationURL string
	verifier       *attest.Verifier
}

// NewService creates a new Service. A nil verifier trusts the embedded AWS Nitro root.
func NewService(settings Settings, verifier *attest.Verifier) (*Service, error) {
	attestationURL, err := url.JoinPath(settings.EnclaveURL, AttestationPath)
	if err != nil {
		return nil, fmt.Errorf("create attestation URL: %w", err)
	}
	httpClient := &http.Client{}
	if settings.VsockPort != 0 {
		httpClient = NewVsockHTTPClient(settings.VsockCID, settings.VsockPort)
	}
	httpClient.Timeout = settings.RequestTimeout
	if verifier == nil {
		verifier = attest.NewVerifier()
	}
	return &Service{
		httpClient:     httpClient,
		attestationURL: attestationURL,
		verifier:       verifier,
	}, nil
}

// FetchAttestation requests a fresh attestation document bound to nonce and returns the raw envelope bytes.
func (s *Service) FetchAttestation(ctx context.Context, nonce string) ([]byte, error) {
	reqURL := s.attestationURL
	if nonce != "" {
		reqURL += "?" + url.Values{"nonce": {nonce}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create attestation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send attestation request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 response from enclave: %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read attestation response body: %w", err)
	}

	var respBody attestationResponse
	if err := json.Unmarshal(bodyBytes, &respBody); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attestation response: %w", err)
	}
	if len(respBody.Document) == 0 {
		return nil, ErrEmptyDocument
	}
	return respBody.Document, nil
}

// VerifyEnclave fetches an attestation document with a random nonce, verifies it and checks that the
// document carries that nonce. The caller must not trust the enclave if an error is returned.
func (s *Service) VerifyEnclave(ctx context.Context) (*attest.Result, error) {
	nonce, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	logger := zerolog.Ctx(ctx).With().Str("nonce", nonce.String()).Logger()

	document, err := s.FetchAttestation(ctx, nonce.String())
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("size", len(document)).Msg("Received attestation document.")

	attDoc, err := s.verifier.VerifyDocument(document)
	if err != nil {
		logger.Warn().Err(err).Str("reason", attest.Reason(err)).Msg("Enclave attestation rejected.")
		return nil, fmt.Errorf("enclave attestation rejected: %w", err)
	}
	if !bytes.Equal(attDoc.Nonce, []byte(nonce.String())) {
		logger.Warn().Hex("documentNonce", attDoc.Nonce).Msg("Enclave attestation is not bound to the request nonce.")
		return nil, ErrNonceMismatch
	}
	logger.Debug().Uint64("timestamp", attDoc.Timestamp).Msg("Enclave attestation verified.")
	return &attest.Result{UserData: attDoc.UserData, PublicKey: attDoc.PublicKey}, nil
}
