// Package buildfile generates and lints the container build definition
// for an ASGI service.
//
// Generation encodes two properties the rest of the tool depends on:
//
//   - Cache layering: the dependency manifest (and lock file) are copied
//     and installed before the application source, so a rebuild that only
//     touches source files reuses the dependency layer.
//   - Invocation form: the start command either goes through the uvboot
//     binary (which reads the port variable from the environment) or
//     through a shell-form CMD (which lets /bin/sh expand the variable).
//     Neither form ever places a ${...} placeholder inside an exec-form
//     array, because no expansion happens on that path.
//
// The linter checks existing Dockerfiles for violations of the same two
// properties.
//
// All filesystem access goes through afero so generation is testable
// against an in-memory filesystem.
package buildfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

const (
	// DockerfileName is the file name generation writes and lint reads
	// by default.
	DockerfileName = "Dockerfile"

	// binaryStagePath is where the uvboot binary is staged inside the
	// build context for the entrypoint form. The path lives under
	// .uvboot/ so it is clearly tool-owned and easy to gitignore.
	binaryStagePath = ".uvboot/bin/uvboot"

	// binaryImagePath is where the binary lands inside the image.
	binaryImagePath = "/usr/local/bin/uvboot"
)

// Generator produces build definition files for a service. The zero
// value is not usable; construct with NewGenerator.
type Generator struct {
	fs afero.Fs
}

// NewGenerator creates a Generator writing through the given filesystem.
// Pass afero.NewOsFs() for real output or afero.NewMemMapFs() in tests.
func NewGenerator(fs afero.Fs) *Generator {
	return &Generator{fs: fs}
}

// Dockerfile renders the build definition for the given service and
// invocation form. The result is deterministic: environment variables
// are emitted in sorted key order so repeated generation never produces
// spurious diffs.
func (g *Generator) Dockerfile(spec *model.ServiceSpec, form model.InvocationForm) (string, error) {
	if !form.IsValid() {
		return "", fmt.Errorf("cannot generate Dockerfile: %w", invalidFormError(form))
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# syntax=docker/dockerfile:1\n")
	fmt.Fprintf(&b, "FROM python:%s-slim\n\n", spec.PythonVersion)
	b.WriteString("WORKDIR /app\n\n")

	// Unbuffered output makes the server's logs visible through
	// `docker logs` immediately instead of on flush.
	b.WriteString("ENV PYTHONDONTWRITEBYTECODE=1 \\\n    PYTHONUNBUFFERED=1\n\n")

	writeEnvBlock(&b, spec)

	// Dependency layer first: only the manifests are copied, so editing
	// application source leaves this layer's cache key unchanged and
	// rebuilds skip dependency installation entirely.
	if spec.LockFile != "" {
		fmt.Fprintf(&b, "COPY %s %s ./\n", spec.RequirementsFile, spec.LockFile)
		fmt.Fprintf(&b, "RUN pip install --no-cache-dir -r %s\n\n", spec.LockFile)
	} else {
		fmt.Fprintf(&b, "COPY %s ./\n", spec.RequirementsFile)
		fmt.Fprintf(&b, "RUN pip install --no-cache-dir -r %s\n\n", spec.RequirementsFile)
	}

	if form == model.FormEntrypoint {
		fmt.Fprintf(&b, "COPY %s %s\n", binaryStagePath, binaryImagePath)
	}

	b.WriteString("COPY . .\n\n")

	fmt.Fprintf(&b, "RUN mkdir -p %s\n\n", spec.DataDir)
	fmt.Fprintf(&b, "EXPOSE %d\n\n", spec.DefaultPort)

	switch form {
	case model.FormEntrypoint:
		// Exec form is safe here: the binary reads the port variable
		// itself, so no argument needs expansion.
		fmt.Fprintf(&b, "ENTRYPOINT [%q, \"serve\"]\n", binaryImagePath)

	case model.FormShell:
		// Shell form on purpose: /bin/sh expands the variable at
		// container start. The :- default keeps an unset variable from
		// collapsing into a missing argument.
		fmt.Fprintf(&b, "CMD uvicorn %s --host 0.0.0.0 --port ${%s:-%d}\n",
			spec.App, spec.PortEnv, spec.DefaultPort)
	}

	return b.String(), nil
}

// writeEnvBlock emits build-time environment variables. For the
// entrypoint form the UVBOOT_* settings that differ from their defaults
// are included so the binary starts the right application. The port
// variable itself is never emitted: it belongs to container start, and
// an ENV line would silently pin it at build time.
func writeEnvBlock(b *strings.Builder, spec *model.ServiceSpec) {
	env := map[string]string{}
	for k, v := range spec.Env {
		env[k] = v
	}
	if spec.App != "main:app" {
		env["UVBOOT_APP"] = spec.App
	}
	if spec.DataDir != "/app/data" {
		env["UVBOOT_DATA_DIR"] = spec.DataDir
	}
	if spec.PortEnv != "PORT" {
		env["UVBOOT_PORT_ENV"] = spec.PortEnv
	}
	if len(env) == 0 {
		return
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(b, "ENV %s=%q\n", k, env[k])
	}
	b.WriteString("\n")
}

// WriteDockerfile renders the Dockerfile and writes it into the project
// directory. Returns the written path.
func (g *Generator) WriteDockerfile(projectDir string, spec *model.ServiceSpec, form model.InvocationForm) (string, error) {
	content, err := g.Dockerfile(spec, form)
	if err != nil {
		return "", err
	}

	path := filepath.Join(projectDir, DockerfileName)
	if err := afero.WriteFile(g.fs, path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Dockerignore returns the .dockerignore content for a service. The data
// directory stays out of the build context: it holds runtime state, and
// including it would both bloat the context and invalidate the source
// layer on every state change.
func (g *Generator) Dockerignore(spec *model.ServiceSpec) string {
	var b strings.Builder
	b.WriteString(".git\n")
	b.WriteString("__pycache__\n")
	b.WriteString("*.pyc\n")
	b.WriteString(".venv\n")
	b.WriteString("Dockerfile\n")
	b.WriteString("docker-compose.yml\n")

	// The in-container data dir usually mirrors a ./data directory in
	// the project during local development.
	b.WriteString(filepath.Base(spec.DataDir) + "/\n")
	return b.String()
}

// WriteDockerignore writes the .dockerignore file into the project
// directory. Returns the written path.
func (g *Generator) WriteDockerignore(projectDir string, spec *model.ServiceSpec) (string, error) {
	path := filepath.Join(projectDir, ".dockerignore")
	if err := afero.WriteFile(g.fs, path, []byte(g.Dockerignore(spec)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// StageBinary copies the currently running uvboot executable into the
// build context at .uvboot/bin/uvboot, where the entrypoint-form
// Dockerfile expects it. Called before building an entrypoint-form image.
//
// The copy reads from the real OS (os.Executable has no afero
// equivalent) but writes through the Generator's filesystem, so tests
// can still observe the staging without touching disk.
func (g *Generator) StageBinary(projectDir string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate the uvboot executable: %w", err)
	}

	src, err := os.Open(exe)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", exe, err)
	}
	defer func() { _ = src.Close() }()

	dst := filepath.Join(projectDir, filepath.FromSlash(binaryStagePath))
	if err := g.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	out, err := g.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("failed to stage binary at %s: %w", dst, err)
	}
	return dst, nil
}

// invalidFormError builds the error for an unknown invocation form.
func invalidFormError(form model.InvocationForm) error {
	return fmt.Errorf("unknown invocation form %q (valid: entrypoint, shell)", form)
}
