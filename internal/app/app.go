package app

import (
	"errors"
	"strings"

	"github.com/DIMO-Network/enclave-attest/internal/config"
	"github.com/DIMO-Network/enclave-attest/pkg/attest"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// CreateVerifierWebServer creates a new web server that verifies attestation documents with verifier.
func CreateVerifierWebServer(logger *zerolog.Logger, settings *config.Settings, verifier *attest.Verifier) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return ErrorHandler(c, err, logger)
		},
		BodyLimit:             settings.BodyLimit(),
		DisableStartupMessage: true,
	})
	ctrl := NewController(verifier, logger, settings.EnableEthAddress)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(cors.New())
	app.Get("/", HealthCheck)
	app.Post("/v1/attestation/verify", ctrl.VerifyAttestation)
	return app
}

// HealthCheck godoc
// @Summary Show the status of server.
// @Description get the status of server.
// @Tags root
// @Accept */*
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func HealthCheck(ctx *fiber.Ctx) error {
	res := map[string]any{
		"data": "Server is up and running",
	}

	return ctx.JSON(res)
}

// ErrorHandler custom handler to log recovered errors using our logger and return json instead of string.
// Attestation rejections are returned as 422 with the rejection reason. A missing trusted root is a server fault.
func ErrorHandler(ctx *fiber.Ctx, err error, logger *zerolog.Logger) error {
	code := fiber.StatusInternalServerError // Default 500 statuscode
	message := "Internal error."
	reason := ""

	var e *fiber.Error
	var attErr attest.Error
	switch {
	case errors.As(err, &e):
		code = e.Code
		message = e.Message
	case errors.Is(err, attest.ErrNoTrustedRoot):
		// the verifier is misconfigured, the document was never judged
	case errors.As(err, &attErr):
		code = fiber.StatusUnprocessableEntity
		message = err.Error()
		reason = attest.Reason(err)
	}

	// rejections are logged by the controller
	if code != fiber.StatusNotFound && code != fiber.StatusUnprocessableEntity {
		logger.Err(err).Int("httpStatusCode", code).
			Str("httpPath", strings.TrimPrefix(ctx.Path(), "/")).
			Str("httpMethod", ctx.Method()).
			Msg("caught an error from http request")
	}

	return ctx.Status(code).JSON(codeResp{Code: code, Message: message, Reason: reason})
}

type codeResp struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
}
