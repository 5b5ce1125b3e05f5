// Command verify-attestation verifies a single Nitro Enclave attestation document, read from a file or
// requested from a running enclave, and prints the attested user data and public key as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DIMO-Network/enclave-attest/internal/app"
	"github.com/DIMO-Network/enclave-attest/pkg/attest"
	"github.com/DIMO-Network/enclave-attest/pkg/client"
	"github.com/DIMO-Network/enclave-attest/pkg/server"
	"github.com/rs/zerolog"
)

func main() {
	logger := server.DefaultLogger("verify-attestation", os.Stderr)

	file := flag.String("file", "", "path of an attestation document to verify")
	isBase64 := flag.Bool("base64", false, "the document file is base64 encoded")
	enclaveURL := flag.String("url", "", "base URL of an enclave serving "+client.AttestationPath+" (defaults to ENCLAVE_URL)")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout when fetching from an enclave")
	ethAddress := flag.Bool("eth-address", true, "describe a secp256k1 public key by its Ethereum address")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()
	if err := server.SetLevel(*logLevel); err != nil {
		logger.Fatal().Err(err).Msg("Failed to set log level.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx)

	var result *attest.Result
	var err error
	if *file != "" {
		result, err = verifyFile(*file, *isBase64)
	} else {
		result, err = verifyRemote(ctx, *enclaveURL, *timeout)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("reason", attest.Reason(err)).Msg("Attestation verification failed.")
	}

	out, err := json.MarshalIndent(app.NewVerifyResponse(result, *ethAddress), "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to marshal result.")
	}
	fmt.Println(string(out))
}

func verifyFile(path string, isBase64 bool) (*attest.Result, error) {
	document, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if isBase64 {
		document, err = base64.StdEncoding.DecodeString(string(bytes.TrimSpace(document)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 document: %w", err)
		}
	}
	return attest.Verify(document)
}

func verifyRemote(ctx context.Context, enclaveURL string, timeout time.Duration) (*attest.Result, error) {
	var settings client.Settings
	if enclaveURL != "" {
		settings = client.Settings{EnclaveURL: enclaveURL, RequestTimeout: timeout}
	} else {
		var err error
		settings, err = client.SettingsFromEnv()
		if err != nil {
			return nil, err
		}
	}
	svc, err := client.NewService(settings, nil)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("url", settings.EnclaveURL).Msg("Requesting attestation document.")
	return svc.VerifyEnclave(ctx)
}

