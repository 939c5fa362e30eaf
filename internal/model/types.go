// Package model defines the domain types for the uvboot CLI.
//
// The types here describe a single containerized ASGI web service: how it
// is packaged (invocation form), how it binds its network port, and what
// its running deployment looks like. All deployment state is persisted via
// Docker container labels, so these types are transient representations
// reconstructed from Docker API queries at runtime.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DeploymentStatus represents the lifecycle state of a service deployment.
// The state transitions are:
//
//	[Created] → Running → Stopped ⇄ Running → [Removed]
//	Running/Stopped → Orphaned (when the project directory is deleted)
type DeploymentStatus string

const (
	// StatusRunning indicates the service container is running.
	StatusRunning DeploymentStatus = "running"

	// StatusStopped indicates the container exists but is not running.
	// The image and data volume are preserved.
	StatusStopped DeploymentStatus = "stopped"

	// StatusOrphaned indicates the project directory recorded at deploy
	// time no longer exists on disk, but the Docker container remains.
	// This typically happens when a user deletes the project without
	// running "uvboot down" first.
	StatusOrphaned DeploymentStatus = "orphaned"
)

// String returns the string representation of DeploymentStatus.
// This satisfies fmt.Stringer for CLI output and logging.
func (s DeploymentStatus) String() string {
	return string(s)
}

// IsValid checks whether the DeploymentStatus value is one of the
// predefined valid states.
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusStopped, StatusOrphaned:
		return true
	default:
		return false
	}
}

// ParseDeploymentStatus converts a string to a DeploymentStatus.
// Returns an error if the string does not match any valid status.
func ParseDeploymentStatus(s string) (DeploymentStatus, error) {
	status := DeploymentStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid deployment status: %q (valid: running, stopped, orphaned)", s)
	}
	return status, nil
}

// InvocationForm represents how the generated container image starts the
// ASGI server. The form decides where runtime environment substitution
// happens, which is the one correctness-critical choice in the whole
// packaging pipeline:
//
//   - FormEntrypoint: the image ENTRYPOINT is an exec-form array pointing
//     at the uvboot binary itself, which reads the port variable directly
//     from the process environment. No textual substitution exists anywhere.
//   - FormShell: the image CMD is shell form, so /bin/sh expands
//     ${PORT:-8000} at container start before uvicorn parses its arguments.
//
// An exec-form array that embeds a ${...} placeholder is NOT a valid form:
// the placeholder would reach uvicorn verbatim and the bind would fail at
// runtime. The linter flags that pattern as an error.
type InvocationForm string

const (
	// FormEntrypoint starts the service through the uvboot binary, which
	// resolves the port from the environment and launches uvicorn.
	FormEntrypoint InvocationForm = "entrypoint"

	// FormShell starts the service through a shell-form CMD, relying on
	// /bin/sh to expand the port variable at container start.
	FormShell InvocationForm = "shell"
)

// String returns the string representation of InvocationForm.
func (f InvocationForm) String() string {
	return string(f)
}

// IsValid checks whether the InvocationForm value is one of the
// predefined valid forms.
func (f InvocationForm) IsValid() bool {
	switch f {
	case FormEntrypoint, FormShell:
		return true
	default:
		return false
	}
}

// ParseInvocationForm converts a string to an InvocationForm.
// Returns an error if the string does not match any valid form.
func ParseInvocationForm(s string) (InvocationForm, error) {
	form := InvocationForm(strings.ToLower(s))
	if !form.IsValid() {
		return "", fmt.Errorf("invalid invocation form: %q (valid: entrypoint, shell)", s)
	}
	return form, nil
}

// ServiceSpec describes a single ASGI web service to package and run.
// It is the parsed, defaulted representation of a uvboot.json file.
type ServiceSpec struct {
	// Name is the unique identifier for this service. Must contain only
	// alphanumeric characters and hyphens. Used as the image tag base,
	// the container name, and the Compose service name.
	Name string `json:"name"`

	// PythonVersion selects the base image tag (e.g. "3.12" →
	// python:3.12-slim).
	PythonVersion string `json:"pythonVersion"`

	// App is the ASGI application reference in "module:attribute" form,
	// e.g. "main:app". The module and attribute are owned by the
	// application; uvboot only passes the reference to the server.
	App string `json:"app"`

	// PortEnv is the name of the environment variable consulted at
	// container start for the bind port. Defaults to "PORT".
	PortEnv string `json:"portEnv"`

	// DefaultPort is the bind port used when PortEnv is unset or empty
	// at container start. Also used for EXPOSE and the default host
	// binding. Defaults to 8000.
	DefaultPort int `json:"defaultPort"`

	// DataDir is the absolute path inside the container that the
	// application may use for persisted state. uvboot guarantees the
	// directory exists before the server starts; its contents are
	// entirely owned by the application. Defaults to "/app/data".
	DataDir string `json:"dataDir"`

	// RequirementsFile is the dependency manifest copied into the image
	// before the application source. Defaults to "requirements.txt".
	RequirementsFile string `json:"requirementsFile"`

	// LockFile is the exact-version lock file installed in the dependency
	// layer. When set, dependency installation reads the lock file so
	// rebuilds are reproducible. Optional.
	LockFile string `json:"lockFile,omitempty"`

	// Env holds additional environment variables baked into the image.
	// The port variable must not appear here; it is resolved at container
	// start, never at build time.
	Env map[string]string `json:"env,omitempty"`
}

// AppModule returns the Python module part of the App reference,
// e.g. "main" for "main:app".
func (s *ServiceSpec) AppModule() string {
	if i := strings.Index(s.App, ":"); i >= 0 {
		return s.App[:i]
	}
	return s.App
}

// AppObject returns the attribute part of the App reference,
// e.g. "app" for "main:app". Returns "app" when no attribute is given.
func (s *ServiceSpec) AppObject() string {
	if i := strings.Index(s.App, ":"); i >= 0 && i+1 < len(s.App) {
		return s.App[i+1:]
	}
	return "app"
}

// nameRegex validates service names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid service name.
// Valid names contain only alphanumeric characters and hyphens, and must
// start/end with an alphanumeric character. The same charset is accepted
// by Docker image tags and Compose service names, so a valid service name
// is usable in every place uvboot puts it.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("service name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid service name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// appRegex validates ASGI application references: a Python dotted module
// path, optionally followed by ":" and an attribute name.
var appRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*(:[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateApp checks if the given string is a valid "module:attribute"
// ASGI application reference.
func ValidateApp(app string) error {
	if app == "" {
		return fmt.Errorf("app reference must not be empty")
	}
	if !appRegex.MatchString(app) {
		return fmt.Errorf("invalid app reference %q: expected \"module:attribute\", e.g. \"main:app\"", app)
	}
	return nil
}

// PortBinding represents the mapping between the container port the
// service binds and the host port it is published on.
type PortBinding struct {
	// ContainerPort is the port the ASGI server binds inside the
	// container (1-65535).
	ContainerPort int `json:"containerPort"`

	// HostPort is the port published on the host machine (1-65535).
	HostPort int `json:"hostPort"`

	// Protocol is the network protocol for the binding. Always "tcp"
	// for HTTP services; the field exists so the type round-trips
	// cleanly through Docker API structures.
	Protocol string `json:"protocol"`
}

// Validate checks whether the PortBinding has valid field values.
func (b *PortBinding) Validate() error {
	if b.ContainerPort < 1 || b.ContainerPort > 65535 {
		return fmt.Errorf("port binding: container port %d out of range (1-65535)", b.ContainerPort)
	}
	if b.HostPort < 1 || b.HostPort > 65535 {
		return fmt.Errorf("port binding: host port %d out of range (1-65535)", b.HostPort)
	}
	if b.Protocol == "" {
		b.Protocol = "tcp"
	}
	if b.Protocol != "tcp" && b.Protocol != "udp" {
		return fmt.Errorf("port binding: invalid protocol %q (valid: tcp, udp)", b.Protocol)
	}
	return nil
}

// String returns a human-readable representation of the binding.
// Format: "hostPort→containerPort/protocol"
func (b *PortBinding) String() string {
	proto := b.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return fmt.Sprintf("%d→%d/%s", b.HostPort, b.ContainerPort, proto)
}

// ContainerInfo holds runtime information about a Docker container.
// This data is fetched dynamically from the Docker API, not persisted.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// Status is the Docker container status (e.g. "running", "exited").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container,
	// including the uvboot management labels (uvboot.* prefix).
	Labels map[string]string `json:"labels,omitempty"`
}

// Deployment represents a deployed service: the container created by
// "uvboot up" together with the metadata reconstructed from its labels.
// This is the primary aggregate entity in the domain.
type Deployment struct {
	// Service is the service name this deployment belongs to.
	Service string `json:"service"`

	// ProjectPath is the absolute path of the project directory the
	// image was built from. Used to detect orphaned deployments.
	ProjectPath string `json:"projectPath"`

	// Image is the image tag the container runs.
	Image string `json:"image"`

	// App is the ASGI application reference ("module:attribute").
	App string `json:"app"`

	// Form is the invocation form the image was generated with.
	Form InvocationForm `json:"form"`

	// Status is the current lifecycle state of the deployment.
	Status DeploymentStatus `json:"status"`

	// Binding is the port mapping the container was published with.
	Binding PortBinding `json:"binding"`

	// Containers holds the Docker containers belonging to this
	// deployment. A deployment always has at least one container.
	Containers []ContainerInfo `json:"containers,omitempty"`

	// CreatedAt is the timestamp when this deployment was created.
	CreatedAt time.Time `json:"createdAt"`
}

// ExitCode defines the CLI exit codes. These codes allow scripts and CI
// systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigNotFound indicates uvboot.json was not found in the
	// expected location.
	ExitConfigNotFound ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortUnavailable indicates the requested host port is already
	// in use and no alternative was permitted.
	ExitPortUnavailable ExitCode = 4

	// ExitInvalidPort indicates the port environment variable held a
	// value that is not an integer in 1-65535. The server is never
	// started in this case; no socket is opened.
	ExitInvalidPort ExitCode = 5

	// ExitDeploymentNotFound indicates the named deployment does not exist.
	ExitDeploymentNotFound ExitCode = 6

	// ExitLintFailed indicates the lint command found at least one
	// error-severity finding.
	ExitLintFailed ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
