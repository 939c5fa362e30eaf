// Package appconfig handles locating, parsing, and validating uvboot.json
// service descriptors.
//
// uvboot.json supports JSONC (JSON with Comments), so this package uses
// github.com/tidwall/jsonc to strip comments before parsing with the
// standard encoding/json library. Parsing and defaulting are separated:
// RawConfig mirrors the file verbatim, ToServiceSpec applies defaults and
// produces the domain type the rest of the tool works with.
package appconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// ConfigFileName is the canonical descriptor file name.
const ConfigFileName = "uvboot.json"

// searchPaths lists the locations probed by FindConfig, relative to the
// project directory, in priority order.
var searchPaths = []string{
	ConfigFileName,
	filepath.Join(".uvboot", ConfigFileName),
}

// RawConfig mirrors the JSON structure of a uvboot.json file before any
// defaulting. Zero values mean "not specified"; ToServiceSpec fills them.
type RawConfig struct {
	// Name is the service name. Required.
	Name string `json:"name"`

	// PythonVersion selects the base image tag. Default "3.12".
	PythonVersion string `json:"pythonVersion,omitempty"`

	// App is the ASGI application reference. Default "main:app".
	App string `json:"app,omitempty"`

	// PortEnv names the port environment variable. Default "PORT".
	PortEnv string `json:"portEnv,omitempty"`

	// DefaultPort is the fallback bind port. Default 8000.
	DefaultPort int `json:"defaultPort,omitempty"`

	// DataDir is the in-container state directory. Default "/app/data".
	DataDir string `json:"dataDir,omitempty"`

	// RequirementsFile is the dependency manifest. Default "requirements.txt".
	RequirementsFile string `json:"requirementsFile,omitempty"`

	// LockFile is the exact-version lock file. Optional; when present the
	// dependency layer installs from it for reproducible builds.
	LockFile string `json:"lockFile,omitempty"`

	// Env holds extra build-time environment variables for the image.
	Env map[string]string `json:"env,omitempty"`
}

// Load reads a uvboot.json file, strips JSONC comments, and parses it
// into a RawConfig.
//
// Returns a CLIError with ExitConfigNotFound if the file does not exist,
// so the CLI maps a missing descriptor to its dedicated exit code.
func Load(path string) (*RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitConfigNotFound,
				fmt.Sprintf("service descriptor not found at %s", path), err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// jsonc.ToJSON rewrites comments and trailing commas to whitespace,
	// preserving offsets, so json.Unmarshal error positions still point
	// at the right place in the original file.
	var raw RawConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &raw, nil
}

// FindConfig locates the service descriptor under the given project
// directory, probing searchPaths in order. Returns the absolute path of
// the first file found, or a CLIError with ExitConfigNotFound.
func FindConfig(projectDir string) (string, error) {
	for _, rel := range searchPaths {
		candidate := filepath.Join(projectDir, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", model.NewCLIError(model.ExitConfigNotFound,
		fmt.Sprintf("no %s found in %s (looked in: %v)", ConfigFileName, projectDir, searchPaths))
}

// ToServiceSpec converts a RawConfig into a defaulted, validated
// ServiceSpec. Validation failures are returned as a single error listing
// every finding; see Validate for the individual checks.
func ToServiceSpec(raw *RawConfig) (*model.ServiceSpec, error) {
	spec := &model.ServiceSpec{
		Name:             raw.Name,
		PythonVersion:    raw.PythonVersion,
		App:              raw.App,
		PortEnv:          raw.PortEnv,
		DefaultPort:      raw.DefaultPort,
		DataDir:          raw.DataDir,
		RequirementsFile: raw.RequirementsFile,
		LockFile:         raw.LockFile,
		Env:              raw.Env,
	}

	applyDefaults(spec)

	if findings := Validate(spec); len(findings) > 0 {
		return nil, fmt.Errorf("invalid service descriptor: %s", joinFindings(findings))
	}

	return spec, nil
}

// applyDefaults fills unset ServiceSpec fields with their documented
// defaults. Name has no default: a service must be explicitly named.
func applyDefaults(spec *model.ServiceSpec) {
	if spec.PythonVersion == "" {
		spec.PythonVersion = "3.12"
	}
	if spec.App == "" {
		spec.App = "main:app"
	}
	if spec.PortEnv == "" {
		spec.PortEnv = "PORT"
	}
	if spec.DefaultPort == 0 {
		spec.DefaultPort = 8000
	}
	if spec.DataDir == "" {
		spec.DataDir = "/app/data"
	}
	if spec.RequirementsFile == "" {
		spec.RequirementsFile = "requirements.txt"
	}
}

// LoadServiceSpec is the common entry point used by CLI commands: locate
// the descriptor under projectDir, parse it, and return the defaulted,
// validated ServiceSpec together with the descriptor's path.
func LoadServiceSpec(projectDir string) (*model.ServiceSpec, string, error) {
	configPath, err := FindConfig(projectDir)
	if err != nil {
		return nil, "", err
	}

	raw, err := Load(configPath)
	if err != nil {
		return nil, "", err
	}

	spec, err := ToServiceSpec(raw)
	if err != nil {
		return nil, "", err
	}

	return spec, configPath, nil
}
