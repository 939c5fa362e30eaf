package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"
)

// serverBinary is the ASGI server executable launched by the bootstrap.
// uvicorn is expected on PATH inside the image; the generated Dockerfile
// installs it from the pinned dependency set.
const serverBinary = "uvicorn"

// Launcher starts the ASGI server as a child process and supervises it
// until it exits. It forwards termination signals so that "docker stop"
// (SIGTERM to PID 1) reaches uvicorn and triggers its graceful shutdown,
// and it propagates the child's exit code back to the caller.
type Launcher struct {
	settings *Settings
	logger   *zap.Logger
}

// NewLauncher creates a Launcher for the given settings. The logger must
// not be nil; pass zap.NewNop() to silence output in tests.
func NewLauncher(settings *Settings, logger *zap.Logger) *Launcher {
	return &Launcher{settings: settings, logger: logger}
}

// Command returns the argv the launcher will execute. The port is
// rendered as a decimal literal: by the time an argument list exists, the
// environment has already been resolved, so no placeholder can survive
// into the server's arguments.
//
// Example: ["uvicorn", "main:app", "--host", "0.0.0.0", "--port", "8000"]
func (l *Launcher) Command() []string {
	return []string{
		serverBinary,
		l.settings.App,
		"--host", l.settings.Host,
		"--port", strconv.Itoa(l.settings.Port),
	}
}

// Run launches the server and blocks until it terminates. It returns the
// child's exit code and a non-nil error for abnormal termination.
//
// Signal handling: SIGINT and SIGTERM are caught and forwarded to the
// child. The launcher itself never initiates shutdown — lifecycle policy
// (restarts, backoff) belongs to the surrounding orchestration layer.
func (l *Launcher) Run(ctx context.Context) (int, error) {
	argv := l.Command()

	l.logger.Info("starting ASGI server",
		zap.String("app", l.settings.App),
		zap.String("host", l.settings.Host),
		zap.Int("port", l.settings.Port),
		zap.Strings("argv", argv),
	)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// The server owns the terminal streams: its access logs and startup
	// banner go straight through without buffering in uvboot.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return int(exitCodeStartFailure), fmt.Errorf("failed to start %s: %w", serverBinary, err)
	}

	// Forward termination signals to the child for graceful shutdown.
	// Registration happens after Start so a signal arriving before the
	// child exists is handled by the Go runtime's default behavior.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigCh:
			l.logger.Info("forwarding signal to server", zap.String("signal", sig.String()))
			// Ignore the error: the child may have exited between the
			// signal arriving and the forward, which is not a failure.
			_ = cmd.Process.Signal(sig)

		case err := <-done:
			return l.exitResult(err)
		}
	}
}

// exitCodeStartFailure is returned when the server binary could not be
// started at all (not found, not executable). 127 mirrors the shell's
// command-not-found convention so orchestration layers see a familiar code.
const exitCodeStartFailure = 127

// exitResult translates cmd.Wait's error into an exit code. A clean exit
// returns (0, nil); a non-zero exit returns the child's code with an
// error; signal-terminated children map to 128+signum per POSIX shell
// convention.
func (l *Launcher) exitResult(waitErr error) (int, error) {
	if waitErr == nil {
		l.logger.Info("server exited cleanly")
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// ExitCode is -1 when the process was signal-terminated.
			// Recover the signal number from the wait status.
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				code = 128 + int(ws.Signal())
			} else {
				code = 1
			}
		}
		l.logger.Warn("server exited with failure", zap.Int("code", code))
		return code, fmt.Errorf("%s exited with code %d", serverBinary, code)
	}

	return 1, fmt.Errorf("waiting for %s: %w", serverBinary, waitErr)
}
