package port

import (
	"fmt"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

const (
	// dynamicRangeStart is the start of the IANA dynamic/private port
	// range used for fallback selection.
	dynamicRangeStart = 49152

	// dynamicRangeEnd is the end of the dynamic port range.
	dynamicRangeEnd = 65535
)

// Picker selects the host port for a deployment. It prefers the
// requested port and, when allowed, falls back to the dynamic range
// rather than failing.
type Picker struct {
	// scanner probes the OS for actual availability. Injected via
	// constructor so tests can exercise the picker against real sockets.
	scanner *Scanner
}

// NewPicker creates a Picker using the given Scanner.
// The scanner must not be nil.
func NewPicker(scanner *Scanner) *Picker {
	return &Picker{scanner: scanner}
}

// Pick returns a host port binding for the given container port.
//
// The preferred host port is used when free. When it is occupied:
//   - autoFallback false → a CLIError with ExitPortUnavailable, so the
//     user either frees the port or opts into fallback explicitly;
//   - autoFallback true → the first free port in the dynamic range.
//
// The deployment remains predictable by default: a service asked to
// publish on 8000 is either on 8000 or not running at all, unless the
// user said otherwise.
func (p *Picker) Pick(containerPort, preferredHostPort int, autoFallback bool) (model.PortBinding, error) {
	binding := model.PortBinding{
		ContainerPort: containerPort,
		HostPort:      preferredHostPort,
		Protocol:      "tcp",
	}
	if err := binding.Validate(); err != nil {
		return model.PortBinding{}, err
	}

	if p.scanner.IsPortAvailable(preferredHostPort, "tcp") {
		return binding, nil
	}

	if !autoFallback {
		return model.PortBinding{}, model.NewCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("host port %d is already in use (re-run with --auto-port to pick a free one)", preferredHostPort))
	}

	fallback, err := p.scanner.FindAvailablePort(dynamicRangeStart, dynamicRangeEnd, "tcp")
	if err != nil {
		return model.PortBinding{}, model.WrapCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("host port %d is in use and no fallback port is free", preferredHostPort), err)
	}

	binding.HostPort = fallback
	return binding, nil
}
