// container.go implements container lifecycle operations for uvboot
// deployments: discovery by label, image build, create/start with the
// published port and data volume, and stop/remove.
//
// Image builds shell out to "docker build" so BuildKit, credential
// helpers, and the daemon's layer cache behave exactly as they do for a
// manual build. Everything else goes through the Docker SDK.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// ListManagedContainers queries the daemon for all containers carrying
// the "uvboot.managed-by=uvboot" label, including stopped ones. Stopped
// containers still represent deployments ("uvboot list" and "uvboot
// down" must see them), so the All flag is always set.
func ListManagedContainers(ctx context.Context, cli *Client) ([]model.ContainerInfo, error) {
	// Filtering server-side via the label filter avoids pulling every
	// container on the host across the API.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}

	return result, nil
}

// containerToInfo converts a Docker API container summary into the
// domain ContainerInfo. Pure mapping, no side effects.
//
// The API returns names with a leading "/" (an artifact of the legacy
// container linking feature) which is stripped for display.
func containerToInfo(c types.Container) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Image:         c.Image,
		Status:        c.State,
		Labels:        c.Labels,
	}
}

// GroupContainersByService groups containers by their "uvboot.service"
// label. Containers without the label cannot be attributed to a service
// and are skipped; ListManagedContainers filtering makes that case
// unreachable in practice.
func GroupContainersByService(containers []model.ContainerInfo) map[string][]model.ContainerInfo {
	groups := make(map[string][]model.ContainerInfo)

	for _, c := range containers {
		service, ok := c.Labels[LabelService]
		if !ok || service == "" {
			continue
		}
		groups[service] = append(groups[service], c)
	}

	return groups
}

// BuildDeployment constructs a Deployment from the containers belonging
// to one service. The metadata comes from the first container's labels
// (all containers of a service carry identical uvboot labels); the
// status comes from live container state and the project directory.
func BuildDeployment(service string, containers []model.ContainerInfo) (*model.Deployment, error) {
	if len(containers) == 0 {
		return nil, fmt.Errorf("cannot build deployment %q: no containers provided", service)
	}

	dep, err := ParseLabels(containers[0].Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to parse labels for deployment %q: %w", service, err)
	}

	dep.Image = containers[0].Image
	dep.Containers = containers
	dep.Status = determineStatus(containers, dep.ProjectPath)

	return dep, nil
}

// determineStatus derives the aggregate deployment status:
//  1. project directory gone → orphaned
//  2. any container running → running
//  3. otherwise → stopped
func determineStatus(containers []model.ContainerInfo, projectPath string) model.DeploymentStatus {
	if _, err := os.Stat(projectPath); os.IsNotExist(err) {
		return model.StatusOrphaned
	}

	for _, c := range containers {
		if c.Status == "running" {
			return model.StatusRunning
		}
	}

	return model.StatusStopped
}

// BuildImage builds the service image by executing "docker build -t tag"
// in the project directory. Build output streams through to the user:
// dependency installation can take minutes on a cold cache, and a silent
// CLI would look hung.
func BuildImage(ctx context.Context, projectDir, tag string) error {
	cmd := exec.CommandContext(ctx, "docker", "build", "-t", tag, ".")
	cmd.Dir = projectDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("docker build failed for image %q", tag),
			err,
		)
	}
	return nil
}

// CreateAndStart creates and starts the deployment's container: one
// published TCP port, the data volume mounted at the service's data
// directory, and the uvboot management labels.
//
// The port variable is deliberately NOT set on the container: the
// image's start path resolves it from the environment, and an absent
// variable means the in-image default. Callers that want a specific
// in-container port pass extraEnv.
func CreateAndStart(ctx context.Context, cli *Client, dep *model.Deployment, spec *model.ServiceSpec, extraEnv []string) (string, error) {
	containerPort, err := nat.NewPort("tcp", strconv.Itoa(dep.Binding.ContainerPort))
	if err != nil {
		return "", fmt.Errorf("invalid container port %d: %w", dep.Binding.ContainerPort, err)
	}

	config := &container.Config{
		Image:  dep.Image,
		Labels: BuildLabels(dep),
		Env:    extraEnv,
		ExposedPorts: nat.PortSet{
			containerPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{
					// 0.0.0.0 matches EXPOSE semantics: the service is
					// reachable from outside the host, not just loopback.
					HostIP:   "0.0.0.0",
					HostPort: strconv.Itoa(dep.Binding.HostPort),
				},
			},
		},
		// Named volume for the service's state directory. Docker
		// creates the volume on first use and keeps it across container
		// replacement, which is exactly the durability contract of the
		// data directory.
		Binds: []string{
			fmt.Sprintf("%s-data:%s", dep.Service, spec.DataDir),
		},
	}

	containerName := "uvboot-" + dep.Service

	created, err := cli.Inner().ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container %q", containerName),
			err,
		)
	}

	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", containerName),
			err,
		)
	}

	return created.ID, nil
}

// StartContainer starts a stopped container by ID.
func StartContainer(ctx context.Context, cli *Client, containerID string) error {
	if err := cli.Inner().ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", containerID),
			err,
		)
	}
	return nil
}

// StopContainer stops a running container by ID. The nil timeout uses
// the daemon default (SIGTERM, then SIGKILL after ten seconds), which
// gives uvicorn its graceful-shutdown window.
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	if err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveContainer removes a container by ID. With force, the daemon
// kills a still-running container first; used by "uvboot down --force".
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	if err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	}); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveVolume removes the service's named data volume. Called only when
// the user explicitly asks for it ("uvboot down --volumes"); state is
// never deleted implicitly.
func RemoveVolume(ctx context.Context, cli *Client, service string) error {
	volumeName := service + "-data"
	if err := cli.Inner().VolumeRemove(ctx, volumeName, false); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove volume %q", volumeName),
			err,
		)
	}
	return nil
}
