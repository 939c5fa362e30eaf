package docker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// Label key constants define the Docker labels that persist deployment
// metadata on containers. The labels are the sole persistence mechanism:
// there is no state file, and a Deployment is reconstructed entirely
// from container inspection.
//
// All keys share the "uvboot." prefix to stay clear of labels set by
// other tools (Compose, buildkit, IDEs).
const (
	// LabelPrefix is the common prefix for all uvboot labels.
	LabelPrefix = "uvboot."

	// LabelManagedBy identifies containers managed by uvboot. This is
	// the primary discovery label used in Docker API filters.
	// Key: "uvboot.managed-by", Value: always "uvboot".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelService stores the service name.
	// Key: "uvboot.service".
	LabelService = LabelPrefix + "service"

	// LabelProjectPath stores the absolute path of the project directory
	// the image was built from. Used to detect orphaned deployments.
	// Key: "uvboot.project-path".
	LabelProjectPath = LabelPrefix + "project-path"

	// LabelApp stores the ASGI application reference ("module:attribute").
	// Key: "uvboot.app".
	LabelApp = LabelPrefix + "app"

	// LabelForm stores the invocation form the image was generated with.
	// Key: "uvboot.form", Value: "entrypoint" or "shell".
	LabelForm = LabelPrefix + "form"

	// LabelContainerPort stores the port the server binds inside the
	// container. Key: "uvboot.container-port".
	LabelContainerPort = LabelPrefix + "container-port"

	// LabelHostPort stores the published host port.
	// Key: "uvboot.host-port".
	LabelHostPort = LabelPrefix + "host-port"

	// LabelCreatedAt stores the deployment creation timestamp.
	// Key: "uvboot.created-at", Value: RFC3339.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value of the LabelManagedBy label.
const ManagedByValue = "uvboot"

// BuildLabels constructs the Docker label map for a deployment. Applied
// at container creation, the labels allow BuildDeployment to reconstruct
// the full Deployment from `docker inspect` output alone.
func BuildLabels(dep *model.Deployment) map[string]string {
	return map[string]string{
		LabelManagedBy:     ManagedByValue,
		LabelService:       dep.Service,
		LabelProjectPath:   dep.ProjectPath,
		LabelApp:           dep.App,
		LabelForm:          dep.Form.String(),
		LabelContainerPort: strconv.Itoa(dep.Binding.ContainerPort),
		LabelHostPort:      strconv.Itoa(dep.Binding.HostPort),
		// UTC keeps the stored timestamp independent of the host
		// machine's timezone.
		LabelCreatedAt: dep.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs a Deployment from Docker container labels.
// This is the inverse of BuildLabels.
//
// Status and Containers are not populated here: both are derived from
// live container state, not from static labels.
func ParseLabels(labels map[string]string) (*model.Deployment, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelService,
		LabelProjectPath,
		LabelApp,
		LabelForm,
		LabelContainerPort,
		LabelHostPort,
		LabelCreatedAt,
	}

	// Collect all missing labels at once so the error names every
	// problem in a single message.
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	form, err := model.ParseInvocationForm(labels[LabelForm])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelForm, err)
	}

	containerPort, err := strconv.Atoi(labels[LabelContainerPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s=%q: %w", LabelContainerPort, labels[LabelContainerPort], err)
	}
	hostPort, err := strconv.Atoi(labels[LabelHostPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s=%q: %w", LabelHostPort, labels[LabelHostPort], err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &model.Deployment{
		Service:     labels[LabelService],
		ProjectPath: labels[LabelProjectPath],
		App:         labels[LabelApp],
		Form:        form,
		Binding: model.PortBinding{
			ContainerPort: containerPort,
			HostPort:      hostPort,
			Protocol:      "tcp",
		},
		CreatedAt: createdAt,
	}, nil
}
