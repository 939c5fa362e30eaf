package buildfile

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// TestGenerateCompose verifies the Compose output mirrors the uvboot up
// behavior: port publish, runtime port passthrough, and the data volume.
func TestGenerateCompose(t *testing.T) {
	spec := testSpec()
	binding := model.PortBinding{ContainerPort: 8000, HostPort: 3000, Protocol: "tcp"}

	out, err := GenerateCompose(spec, binding)
	require.NoError(t, err)

	// Decode the YAML back into a generic structure and verify the
	// pieces the runtime depends on.
	var doc struct {
		Name     string `yaml:"name"`
		Services map[string]struct {
			Build       string   `yaml:"build"`
			Image       string   `yaml:"image"`
			Ports       []string `yaml:"ports"`
			Environment []string `yaml:"environment"`
			Volumes     []string `yaml:"volumes"`
			Restart     string   `yaml:"restart"`
		} `yaml:"services"`
		Volumes map[string]any `yaml:"volumes"`
	}
	require.NoError(t, yaml.Unmarshal(out, &doc))

	assert.Equal(t, "schedule-bot", doc.Name)

	svc, ok := doc.Services["schedule-bot"]
	require.True(t, ok, "service must be keyed by its name")

	assert.Equal(t, ".", svc.Build)
	assert.Equal(t, "uvboot/schedule-bot:latest", svc.Image)
	assert.Equal(t, []string{"3000:8000"}, svc.Ports)
	assert.Equal(t, []string{"PORT=${PORT:-8000}"}, svc.Environment,
		"the port variable must pass through for resolution at compose-up time")
	assert.Equal(t, []string{"schedule-bot-data:/app/data"}, svc.Volumes)
	assert.Equal(t, "unless-stopped", svc.Restart)

	assert.Contains(t, doc.Volumes, "schedule-bot-data")
}

// TestGenerateCompose_CustomPortEnv verifies the passthrough follows the
// configured variable name.
func TestGenerateCompose_CustomPortEnv(t *testing.T) {
	spec := testSpec()
	spec.PortEnv = "HTTP_PORT"
	spec.DefaultPort = 9000

	out, err := GenerateCompose(spec, model.PortBinding{ContainerPort: 9000, HostPort: 9000})
	require.NoError(t, err)

	assert.Contains(t, string(out), "HTTP_PORT=${HTTP_PORT:-9000}")
}

// TestGenerateCompose_InvalidBinding verifies binding validation runs
// before rendering.
func TestGenerateCompose_InvalidBinding(t *testing.T) {
	_, err := GenerateCompose(testSpec(), model.PortBinding{ContainerPort: 0, HostPort: 3000})
	assert.Error(t, err)
}

// TestWriteCompose verifies the write path through afero.
func TestWriteCompose(t *testing.T) {
	fs := afero.NewMemMapFs()
	g := NewGenerator(fs)

	path, err := g.WriteCompose("/proj", testSpec(),
		model.PortBinding{ContainerPort: 8000, HostPort: 8000})
	require.NoError(t, err)
	assert.Equal(t, "/proj/docker-compose.yml", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "schedule-bot")
}
