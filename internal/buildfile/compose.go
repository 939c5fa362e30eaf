// compose.go renders a docker-compose.yml for a service. The Compose
// output mirrors what "uvboot up" does through the Docker API — same
// port binding, same data volume, same port variable passthrough — so a
// project can graduate from the CLI to Compose without behavior changes.
package buildfile

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// ComposeFileName is the file name WriteCompose produces.
const ComposeFileName = "docker-compose.yml"

// composeFile is the YAML document structure for the generated Compose
// file. Only the fields uvboot manages are emitted.
type composeFile struct {
	// Name sets the Compose project name, isolating container, network,
	// and volume names per service.
	Name string `yaml:"name"`

	// Services maps the single service name to its definition.
	Services map[string]composeService `yaml:"services"`

	// Volumes declares the named data volume.
	Volumes map[string]struct{} `yaml:"volumes"`
}

// composeService is the definition of the one service in the file.
type composeService struct {
	// Build points at the project directory holding the Dockerfile.
	Build string `yaml:"build"`

	// Image names the built image so Compose and "uvboot up" share tags.
	Image string `yaml:"image"`

	// Ports holds the single "host:container" publish entry.
	Ports []string `yaml:"ports"`

	// Environment passes the port variable through from the host shell.
	// "PORT=${PORT:-8000}" keeps runtime resolution in place: the value
	// is decided when "docker compose up" runs, not when the file is
	// generated.
	Environment []string `yaml:"environment"`

	// Volumes mounts the named data volume at the service's data dir.
	Volumes []string `yaml:"volumes"`

	// Restart is the container restart policy. Restart-on-failure
	// belongs to the orchestration layer, and in a Compose deployment
	// Compose is that layer.
	Restart string `yaml:"restart"`
}

// GenerateCompose renders the Compose YAML for a service and host port
// binding.
func GenerateCompose(spec *model.ServiceSpec, binding model.PortBinding) ([]byte, error) {
	if err := binding.Validate(); err != nil {
		return nil, fmt.Errorf("cannot generate compose file: %w", err)
	}

	doc := composeFile{
		Name: spec.Name,
		Services: map[string]composeService{
			spec.Name: {
				Build: ".",
				Image: ImageTag(spec),
				Ports: []string{
					fmt.Sprintf("%d:%d", binding.HostPort, binding.ContainerPort),
				},
				Environment: []string{
					fmt.Sprintf("%s=${%s:-%d}", spec.PortEnv, spec.PortEnv, spec.DefaultPort),
				},
				Volumes: []string{
					fmt.Sprintf("%s-data:%s", spec.Name, spec.DataDir),
				},
				Restart: "unless-stopped",
			},
		},
		Volumes: map[string]struct{}{
			spec.Name + "-data": {},
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compose file: %w", err)
	}
	return out, nil
}

// WriteCompose renders and writes docker-compose.yml into the project
// directory. Returns the written path.
func (g *Generator) WriteCompose(projectDir string, spec *model.ServiceSpec, binding model.PortBinding) (string, error) {
	out, err := GenerateCompose(spec, binding)
	if err != nil {
		return "", err
	}

	path := filepath.Join(projectDir, ComposeFileName)
	if err := afero.WriteFile(g.fs, path, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ImageTag returns the image tag used for a service's builds, shared by
// Dockerfile-based builds and the Compose output.
func ImageTag(spec *model.ServiceSpec) string {
	return "uvboot/" + spec.Name + ":latest"
}
