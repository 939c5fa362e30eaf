// Package cli — serve.go implements the "uvboot serve" command.
//
// serve is the container entrypoint mode: the same uvboot binary that
// generates and manages images is copied into entrypoint-form images and
// invoked as PID 1. It resolves all runtime settings from the environment
// (listen port included), prepares the data directory, and then launches
// uvicorn, supervising it until exit.
//
// Resolution happens in-process, so no shell is involved and no ${VAR}
// placeholder can ever leak into the server's arguments. An invalid port
// value terminates the process with a non-zero exit code before any
// socket is opened.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/uvboot/internal/bootstrap"
)

// NewServeCommand creates the "serve" cobra command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Resolve runtime settings and launch the ASGI server",
		Long: `Resolve the listen port and application settings from the environment,
ensure the data directory exists, and launch uvicorn.

Settings are read from environment variables:
  PORT             listen port (default 8000; empty counts as unset)
  UVBOOT_APP       ASGI application reference (default "main:app")
  UVBOOT_HOST      bind address (default "0.0.0.0")
  UVBOOT_DATA_DIR  data directory to create (default "/app/data")
  UVBOOT_PORT_ENV  name of the port variable (default "PORT")

A port value that is not an integer, or outside 1-65535, aborts startup
with a non-zero exit code. The server's exit code is propagated as the
command's own exit code.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	return cmd
}

// runServe is the main logic function for the serve command.
func runServe(cmd *cobra.Command) error {
	// Step 1: Resolve settings from the environment. An invalid port
	// value surfaces here as a CLIError and the process exits non-zero
	// before uvicorn is ever started.
	settings, err := bootstrap.LoadSettings()
	if err != nil {
		return err
	}
	VerboseLog("Resolved settings: app=%s host=%s port=%d dataDir=%s",
		settings.App, settings.Host, settings.Port, settings.DataDir)

	// Step 2: Ensure the data directory exists before the server starts,
	// so application code can rely on it from the first request.
	if err := bootstrap.EnsureDataDir(settings.DataDir); err != nil {
		return err
	}

	// Step 3: Build the structured logger. Production config writes JSON
	// to stderr, which container log collectors ingest directly.
	logger, err := newServeLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Step 4: Launch and supervise the server, then exit with its code.
	// os.Exit is deliberate: as PID 1 inside a container, the bootstrap's
	// exit code IS the container's exit code, and the orchestrator's
	// restart policy keys off it.
	launcher := bootstrap.NewLauncher(settings, logger)
	code, runErr := launcher.Run(cmd.Context())
	if runErr != nil {
		printError(runErr.Error(), nil)
	}
	_ = logger.Sync()
	os.Exit(code)
	return nil
}

// newServeLogger builds the zap logger for the serve command. Verbose
// mode switches to the development config (human-readable, debug level).
func newServeLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
