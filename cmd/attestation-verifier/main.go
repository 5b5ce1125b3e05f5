package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/DIMO-Network/enclave-attest/internal/app"
	"github.com/DIMO-Network/enclave-attest/internal/config"
	"github.com/DIMO-Network/enclave-attest/pkg/attest"
	"github.com/DIMO-Network/enclave-attest/pkg/server"
	"github.com/DIMO-Network/shared"
	"golang.org/x/sync/errgroup"
)

// @title                       Enclave Attestation Verifier API
// @version                     1.0
func main() {
	logger := server.DefaultLogger("attestation-verifier", os.Stdout)

	// create a flag for the settings file
	settingsFile := flag.String("settings", "settings.yaml", "settings file")
	flag.Parse()
	settings, err := shared.LoadConfig[config.Settings](*settingsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't load settings.")
	}
	if err := server.SetLevel(settings.LogLevel); err != nil {
		logger.Fatal().Err(err).Msg("Failed to set log level.")
	}

	// Fail at startup rather than on the first request if the trust anchor is unusable.
	root, err := attest.AWSNitroRoot()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load trusted root certificate.")
	}
	logger.Info().Str("root", root.Subject.CommonName).Time("rootNotAfter", root.NotAfter).Msg("Loaded trusted root certificate.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)

	monApp := server.CreateMonitoringServer()
	logger.Info().Str("port", strconv.Itoa(settings.MonPort)).Msgf("Starting monitoring server")
	server.RunFiber(groupCtx, monApp, ":"+strconv.Itoa(settings.MonPort), group)

	webApp := app.CreateVerifierWebServer(logger, &settings, attest.NewVerifier(attest.WithRootCertificate(root)))
	logger.Info().Str("port", strconv.Itoa(settings.Port)).Msgf("Starting web server")
	server.RunFiber(groupCtx, webApp, ":"+strconv.Itoa(settings.Port), group)

	if err := group.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run servers.")
	}
}
