// validate.go provides field-level validation for service descriptors.
//
// Validation returns every finding instead of stopping at the first one,
// so a user fixing a hand-written uvboot.json sees the full list in a
// single run.
package appconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// ValidationError represents a single validation failure in a service
// descriptor.
type ValidationError struct {
	// Field is the JSON field that failed validation (e.g. "defaultPort").
	Field string

	// Message describes what is wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("uvboot.json validation error: %s: %s", e.Field, e.Message)
}

// envNameValid reports whether s is a usable POSIX environment variable
// name: letters, digits, underscores, not starting with a digit.
func envNameValid(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Validate checks a defaulted ServiceSpec and returns all findings.
// An empty slice means the descriptor is valid.
//
// Checks performed:
//   - name: required, alphanumeric + hyphens
//   - app: "module:attribute" reference format
//   - portEnv: valid environment variable name
//   - defaultPort: integer in 1-65535
//   - dataDir: absolute path (it names a location inside the container)
//   - requirementsFile / lockFile: relative paths, no parent traversal
//   - env: no entry may shadow the port variable (the port is resolved
//     at container start, never baked into the image)
func Validate(spec *model.ServiceSpec) []ValidationError {
	var findings []ValidationError

	if err := model.ValidateName(spec.Name); err != nil {
		findings = append(findings, ValidationError{
			Field:   "name",
			Message: err.Error(),
		})
	}

	if err := model.ValidateApp(spec.App); err != nil {
		findings = append(findings, ValidationError{
			Field:   "app",
			Message: err.Error(),
		})
	}

	if !envNameValid(spec.PortEnv) {
		findings = append(findings, ValidationError{
			Field:   "portEnv",
			Message: fmt.Sprintf("%q is not a valid environment variable name", spec.PortEnv),
		})
	}

	if spec.DefaultPort < 1 || spec.DefaultPort > 65535 {
		findings = append(findings, ValidationError{
			Field:   "defaultPort",
			Message: fmt.Sprintf("port %d out of range (1-65535)", spec.DefaultPort),
		})
	}

	if !filepath.IsAbs(spec.DataDir) {
		findings = append(findings, ValidationError{
			Field:   "dataDir",
			Message: fmt.Sprintf("%q must be an absolute container path", spec.DataDir),
		})
	}

	findings = append(findings, validateManifestPath("requirementsFile", spec.RequirementsFile, true)...)
	if spec.LockFile != "" {
		findings = append(findings, validateManifestPath("lockFile", spec.LockFile, false)...)
	}

	// Environment entries are baked into the image at build time. The
	// port variable must stay out of that layer: a build-time value
	// would shadow the orchestrator-provided one at container start.
	for key := range spec.Env {
		if key == spec.PortEnv {
			findings = append(findings, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("must not set %q: the port is resolved from the environment at container start, not at build time", key),
			})
		}
	}

	return findings
}

// validateManifestPath checks that a dependency manifest path is relative
// to the project directory and does not traverse out of it.
func validateManifestPath(field, path string, required bool) []ValidationError {
	if path == "" {
		if required {
			return []ValidationError{{Field: field, Message: "must not be empty"}}
		}
		return nil
	}

	var findings []ValidationError
	if filepath.IsAbs(path) {
		findings = append(findings, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q must be relative to the project directory", path),
		})
	}
	if strings.Contains(path, "..") {
		findings = append(findings, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q must not reference parent directories", path),
		})
	}
	return findings
}

// joinFindings renders a finding list as a single semicolon-separated
// string for embedding in an error message.
func joinFindings(findings []ValidationError) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return strings.Join(parts, "; ")
}
