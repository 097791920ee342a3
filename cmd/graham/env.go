package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/graham/internal/config"
	"github.com/aristath/graham/internal/di"
	"github.com/aristath/graham/pkg/logger"
	"github.com/rs/zerolog"
)

// environment is the wired application shared by the commands
type environment struct {
	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
}

// openEnvironment loads configuration and wires the container. Logs go to
// stderr so command output stays clean on stdout.
func openEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &environment{cfg: cfg, log: log, container: container}, nil
}

func (e *environment) Close() {
	if err := e.container.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close databases")
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
