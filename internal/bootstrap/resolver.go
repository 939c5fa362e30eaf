package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

const (
	// DefaultPortEnv is the environment variable consulted for the bind
	// port when the service descriptor does not name another one.
	DefaultPortEnv = "PORT"

	// DefaultPort is the bind port used when the port variable is unset
	// or empty at container start.
	DefaultPort = 8000

	// DefaultHost is the bind address. The server always binds all
	// interfaces: inside a container, loopback-only binds are unreachable
	// through published ports.
	DefaultHost = "0.0.0.0"

	// DefaultDataDir is the directory guaranteed to exist before the
	// application starts. Its contents are owned by the application.
	DefaultDataDir = "/app/data"

	// DefaultApp is the ASGI application reference launched when the
	// environment does not override it.
	DefaultApp = "main:app"

	// envPrefix namespaces the uvboot-specific settings variables
	// (UVBOOT_APP, UVBOOT_DATA_DIR). The port variable is intentionally
	// NOT prefixed: its name is part of the platform contract and is set
	// by orchestrators (Heroku, Cloud Run, Render) without any prefix.
	envPrefix = "UVBOOT"
)

// Settings holds the resolved runtime configuration for one serve
// invocation. Everything except Port comes from the UVBOOT_* settings
// layer; Port comes from the un-prefixed port variable.
type Settings struct {
	// App is the ASGI application reference, e.g. "main:app".
	App string

	// Host is the bind address.
	Host string

	// Port is the resolved bind port.
	Port int

	// PortEnv is the variable name Port was resolved from.
	PortEnv string

	// DataDir is the directory ensured to exist before launch.
	DataDir string
}

// ResolvePort parses a raw port value taken from the environment.
//
// An empty (or all-whitespace) value means "not configured" and yields
// the default. Anything else must be an integer in 1-65535; a malformed
// value is a fatal configuration error carrying ExitInvalidPort, and the
// caller must not start the server.
//
// Leading/trailing whitespace is tolerated because orchestration layers
// and .env files occasionally introduce it; "8000 " failing the whole
// container over an invisible character is not a useful failure.
func ResolvePort(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultPort, nil
	}

	port, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, model.WrapCLIError(model.ExitInvalidPort,
			fmt.Sprintf("invalid port value %q: not an integer", raw), err)
	}
	if port < 1 || port > 65535 {
		return 0, model.NewCLIError(model.ExitInvalidPort,
			fmt.Sprintf("invalid port value %d: out of range (1-65535)", port))
	}
	return port, nil
}

// ResolvePortFromEnv resolves the bind port from the named environment
// variable. An empty envName falls back to DefaultPortEnv. Unset and
// empty variables are equivalent: both yield the default port.
func ResolvePortFromEnv(envName string) (int, error) {
	if envName == "" {
		envName = DefaultPortEnv
	}
	return ResolvePort(os.Getenv(envName))
}

// LoadSettings builds the runtime Settings from the process environment.
//
// The UVBOOT_* layer is read through viper so defaults, environment
// variables, and any future config-file source share one resolution path.
// The port variable is resolved separately through ResolvePortFromEnv
// because its unset/empty/invalid semantics are stricter than viper's
// string-typed defaults can express.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("app", DefaultApp)
	v.SetDefault("host", DefaultHost)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("port_env", DefaultPortEnv)

	settings := &Settings{
		App:     v.GetString("app"),
		Host:    v.GetString("host"),
		DataDir: v.GetString("data_dir"),
		PortEnv: v.GetString("port_env"),
	}

	if err := model.ValidateApp(settings.App); err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			"invalid UVBOOT_APP value", err)
	}

	port, err := ResolvePortFromEnv(settings.PortEnv)
	if err != nil {
		return nil, err
	}
	settings.Port = port

	return settings, nil
}

// EnsureDataDir creates the data directory (and any missing parents)
// before the application starts. The directory's contents and layout are
// entirely owned by the application; existence is the only invariant
// uvboot maintains.
//
// MkdirAll is a no-op when the directory already exists, so this is safe
// to run on every container start.
func EnsureDataDir(path string) error {
	if path == "" {
		path = DefaultDataDir
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %q: %w", path, err)
	}
	return nil
}
