package buildfile

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// testSpec returns a defaulted spec matching a typical FastAPI project
// with a lock file.
func testSpec() *model.ServiceSpec {
	return &model.ServiceSpec{
		Name:             "schedule-bot",
		PythonVersion:    "3.12",
		App:              "main:app",
		PortEnv:          "PORT",
		DefaultPort:      8000,
		DataDir:          "/app/data",
		RequirementsFile: "requirements.txt",
		LockFile:         "requirements.lock",
	}
}

// TestDockerfile_CacheLayering verifies the ordering invariant: the
// dependency manifests are copied and installed strictly before the
// application source, so source-only edits reuse the dependency layer.
func TestDockerfile_CacheLayering(t *testing.T) {
	g := NewGenerator(afero.NewMemMapFs())

	for _, form := range []model.InvocationForm{model.FormEntrypoint, model.FormShell} {
		t.Run(form.String(), func(t *testing.T) {
			content, err := g.Dockerfile(testSpec(), form)
			require.NoError(t, err)

			depCopy := strings.Index(content, "COPY requirements.txt requirements.lock ./")
			install := strings.Index(content, "RUN pip install --no-cache-dir -r requirements.lock")
			srcCopy := strings.Index(content, "COPY . .")

			require.GreaterOrEqual(t, depCopy, 0, "dependency manifests must be copied")
			require.GreaterOrEqual(t, install, 0, "dependencies must be installed from the lock file")
			require.GreaterOrEqual(t, srcCopy, 0, "application source must be copied")

			assert.Less(t, depCopy, install, "manifest copy must precede the install")
			assert.Less(t, install, srcCopy, "install must precede the source copy")
		})
	}
}

// TestDockerfile_NoLockFile verifies the manifest-only layout when no
// lock file is declared.
func TestDockerfile_NoLockFile(t *testing.T) {
	spec := testSpec()
	spec.LockFile = ""

	g := NewGenerator(afero.NewMemMapFs())
	content, err := g.Dockerfile(spec, model.FormShell)
	require.NoError(t, err)

	assert.Contains(t, content, "COPY requirements.txt ./")
	assert.Contains(t, content, "RUN pip install --no-cache-dir -r requirements.txt")
	assert.NotContains(t, content, "requirements.lock")
}

// TestDockerfile_EntrypointForm verifies the entrypoint variant: an
// exec-form ENTRYPOINT pointing at the uvboot binary, with no variable
// placeholder anywhere in the file's start command.
func TestDockerfile_EntrypointForm(t *testing.T) {
	g := NewGenerator(afero.NewMemMapFs())
	content, err := g.Dockerfile(testSpec(), model.FormEntrypoint)
	require.NoError(t, err)

	assert.Contains(t, content, `ENTRYPOINT ["/usr/local/bin/uvboot", "serve"]`)
	assert.Contains(t, content, "COPY .uvboot/bin/uvboot /usr/local/bin/uvboot")

	// The generated start command must never carry a placeholder: the
	// binary reads the environment itself.
	entrypointLine := lineContaining(t, content, "ENTRYPOINT")
	assert.NotContains(t, entrypointLine, "$")
}

// TestDockerfile_ShellForm verifies the shell variant: a shell-form CMD
// with a defaulted variable expansion evaluated at container start.
func TestDockerfile_ShellForm(t *testing.T) {
	g := NewGenerator(afero.NewMemMapFs())
	content, err := g.Dockerfile(testSpec(), model.FormShell)
	require.NoError(t, err)

	assert.Contains(t, content,
		"CMD uvicorn main:app --host 0.0.0.0 --port ${PORT:-8000}")

	// Shell form must not be a JSON array, or no expansion would happen.
	cmdLine := lineContaining(t, content, "CMD ")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(cmdLine, "CMD")), "["),
		"shell-form CMD must not be an exec-form array")
}

// TestDockerfile_GeneratedFilesPassLint closes the loop: both generated
// variants must be clean under the package's own linter.
func TestDockerfile_GeneratedFilesPassLint(t *testing.T) {
	g := NewGenerator(afero.NewMemMapFs())

	for _, form := range []model.InvocationForm{model.FormEntrypoint, model.FormShell} {
		t.Run(form.String(), func(t *testing.T) {
			spec := testSpec()
			content, err := g.Dockerfile(spec, form)
			require.NoError(t, err)

			findings := Lint(content, spec)
			assert.Empty(t, findings, "generated Dockerfile must lint clean, got: %v", findings)
		})
	}
}

// TestDockerfile_BaseImageAndPort verifies base image selection, data
// directory creation, and the EXPOSE line.
func TestDockerfile_BaseImageAndPort(t *testing.T) {
	spec := testSpec()
	spec.PythonVersion = "3.11"
	spec.DefaultPort = 9000
	spec.DataDir = "/srv/state"

	g := NewGenerator(afero.NewMemMapFs())
	content, err := g.Dockerfile(spec, model.FormShell)
	require.NoError(t, err)

	assert.Contains(t, content, "FROM python:3.11-slim")
	assert.Contains(t, content, "RUN mkdir -p /srv/state")
	assert.Contains(t, content, "EXPOSE 9000")
	assert.Contains(t, content, "${PORT:-9000}")
}

// TestDockerfile_SettingsEnv verifies that non-default runtime settings
// are baked in for the entrypoint binary, while the port variable never is.
func TestDockerfile_SettingsEnv(t *testing.T) {
	spec := testSpec()
	spec.App = "bot.web:application"
	spec.PortEnv = "HTTP_PORT"
	spec.Env = map[string]string{"TZ": "UTC"}

	g := NewGenerator(afero.NewMemMapFs())
	content, err := g.Dockerfile(spec, model.FormEntrypoint)
	require.NoError(t, err)

	assert.Contains(t, content, `ENV TZ="UTC"`)
	assert.Contains(t, content, `ENV UVBOOT_APP="bot.web:application"`)
	assert.Contains(t, content, `ENV UVBOOT_PORT_ENV="HTTP_PORT"`)

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "ENV ") {
			assert.NotContains(t, line, "HTTP_PORT=",
				"the port variable must never be baked into the image")
		}
	}
}

// TestDockerfile_InvalidForm verifies the error path.
func TestDockerfile_InvalidForm(t *testing.T) {
	g := NewGenerator(afero.NewMemMapFs())
	_, err := g.Dockerfile(testSpec(), model.InvocationForm("exec"))
	assert.Error(t, err)
}

// TestWriteDockerfile verifies the write path through afero.
func TestWriteDockerfile(t *testing.T) {
	fs := afero.NewMemMapFs()
	g := NewGenerator(fs)

	path, err := g.WriteDockerfile("/proj", testSpec(), model.FormShell)
	require.NoError(t, err)
	assert.Equal(t, "/proj/Dockerfile", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FROM python:3.12-slim")
}

// TestWriteDockerignore verifies the ignore file keeps runtime state and
// tool output out of the build context.
func TestWriteDockerignore(t *testing.T) {
	fs := afero.NewMemMapFs()
	g := NewGenerator(fs)

	path, err := g.WriteDockerignore("/proj", testSpec())
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, ".git\n")
	assert.Contains(t, content, "__pycache__\n")
	assert.Contains(t, content, "data/\n")
}

// lineContaining returns the first line of content containing substr.
func lineContaining(t *testing.T, content, substr string) string {
	t.Helper()
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, substr) {
			return line
		}
	}
	t.Fatalf("no line containing %q", substr)
	return ""
}
