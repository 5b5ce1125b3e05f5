// Package server contains the logging and fiber helpers shared by the binaries.
package server

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// DefaultLogger creates a new logger with the given app name that writes to writer.
func DefaultLogger(appName string, writer io.Writer) *zerolog.Logger {
	logger := zerolog.New(writer).With().Timestamp().Str("app", appName).Logger()
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) == 40 {
				logger = logger.With().Str("commit", s.Value[:7]).Logger()
				break
			}
		}
	}
	return &logger
}

// SetLevel sets the global log level if level is not empty.
func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
