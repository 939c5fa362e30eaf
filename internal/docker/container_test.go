package docker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

func TestContainerToInfo(t *testing.T) {
	c := types.Container{
		ID:     "abc123",
		Names:  []string{"/uvboot-schedule-bot"},
		Image:  "uvboot/schedule-bot:latest",
		State:  "running",
		Labels: map[string]string{LabelService: "schedule-bot"},
	}

	info := containerToInfo(c)

	assert.Equal(t, "abc123", info.ContainerID)
	assert.Equal(t, "uvboot-schedule-bot", info.ContainerName, "leading slash should be stripped")
	assert.Equal(t, "uvboot/schedule-bot:latest", info.Image)
	assert.Equal(t, "running", info.Status)
	assert.Equal(t, "schedule-bot", info.Labels[LabelService])
}

func TestContainerToInfoNoNames(t *testing.T) {
	info := containerToInfo(types.Container{ID: "abc123"})
	assert.Equal(t, "", info.ContainerName)
}

func TestGroupContainersByService(t *testing.T) {
	containers := []model.ContainerInfo{
		{ContainerID: "a1", Labels: map[string]string{LabelService: "api"}},
		{ContainerID: "b1", Labels: map[string]string{LabelService: "bot"}},
		{ContainerID: "a2", Labels: map[string]string{LabelService: "api"}},
		{ContainerID: "x1", Labels: map[string]string{}},
	}

	groups := GroupContainersByService(containers)

	require.Len(t, groups, 2)
	assert.Len(t, groups["api"], 2)
	assert.Len(t, groups["bot"], 1)
	assert.Equal(t, "a1", groups["api"][0].ContainerID)
	assert.Equal(t, "a2", groups["api"][1].ContainerID)
}

func TestDetermineStatus(t *testing.T) {
	existingDir := t.TempDir()
	missingDir := filepath.Join(existingDir, "gone")

	tests := []struct {
		name        string
		containers  []model.ContainerInfo
		projectPath string
		want        model.DeploymentStatus
	}{
		{
			name:        "running container",
			containers:  []model.ContainerInfo{{Status: "exited"}, {Status: "running"}},
			projectPath: existingDir,
			want:        model.StatusRunning,
		},
		{
			name:        "all exited",
			containers:  []model.ContainerInfo{{Status: "exited"}, {Status: "created"}},
			projectPath: existingDir,
			want:        model.StatusStopped,
		},
		{
			name:        "project directory removed",
			containers:  []model.ContainerInfo{{Status: "running"}},
			projectPath: missingDir,
			want:        model.StatusOrphaned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineStatus(tt.containers, tt.projectPath))
		})
	}
}

func TestBuildDeployment(t *testing.T) {
	projectDir := t.TempDir()

	dep := testDeployment()
	dep.ProjectPath = projectDir
	labels := BuildLabels(dep)

	containers := []model.ContainerInfo{
		{
			ContainerID:   "abc123",
			ContainerName: "uvboot-schedule-bot",
			Image:         "uvboot/schedule-bot:latest",
			Status:        "running",
			Labels:        labels,
		},
	}

	built, err := BuildDeployment("schedule-bot", containers)
	require.NoError(t, err)

	assert.Equal(t, "schedule-bot", built.Service)
	assert.Equal(t, projectDir, built.ProjectPath)
	assert.Equal(t, "uvboot/schedule-bot:latest", built.Image)
	assert.Equal(t, model.StatusRunning, built.Status)
	assert.Len(t, built.Containers, 1)
}

func TestBuildDeploymentOrphaned(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "removed")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	require.NoError(t, os.RemoveAll(projectDir))

	dep := testDeployment()
	dep.ProjectPath = projectDir
	containers := []model.ContainerInfo{
		{ContainerID: "abc123", Status: "running", Labels: BuildLabels(dep)},
	}

	built, err := BuildDeployment("schedule-bot", containers)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOrphaned, built.Status)
}

func TestBuildDeploymentNoContainers(t *testing.T) {
	_, err := BuildDeployment("schedule-bot", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no containers")
}

func TestBuildDeploymentBadLabels(t *testing.T) {
	containers := []model.ContainerInfo{
		{ContainerID: "abc123", Labels: map[string]string{LabelManagedBy: ManagedByValue}},
	}

	_, err := BuildDeployment("schedule-bot", containers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule-bot")
}
