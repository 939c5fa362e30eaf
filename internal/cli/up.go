// Package cli — up.go implements the "uvboot up" command.
//
// up takes a project from descriptor to running container: it loads
// uvboot.json, verifies the Docker daemon is reachable, allocates a free
// host port, builds the image, and creates and starts a labeled container
// with the data volume mounted. All deployment metadata is stored as
// container labels, so no state file is written anywhere.
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/uvboot/internal/appconfig"
	"github.com/mmr-tortoise/uvboot/internal/buildfile"
	"github.com/mmr-tortoise/uvboot/internal/docker"
	"github.com/mmr-tortoise/uvboot/internal/model"
	"github.com/mmr-tortoise/uvboot/internal/port"
)

// upFlags holds the flag values for the up command.
type upFlags struct {
	// form selects the invocation form when a Dockerfile must be
	// generated. Ignored if the project already has one.
	form string

	// hostPort is the preferred host port to publish. 0 means "use the
	// service's default port".
	hostPort int

	// autoPort falls back to a free dynamic-range port when the
	// preferred one is taken, instead of failing.
	autoPort bool

	// skipBuild starts a container from the existing image without
	// rebuilding. Useful when only runtime settings changed.
	skipBuild bool
}

// NewUpCommand creates the "up" cobra command.
func NewUpCommand() *cobra.Command {
	flags := &upFlags{}

	cmd := &cobra.Command{
		Use:   "up [project-dir]",
		Short: "Build the service image and start its container",
		Long: `Build the service image and start a managed container for it.

A Dockerfile is generated first if the project does not have one. The
host port defaults to the service's default port; if it is already in
use, up fails unless --auto-port is given, in which case a free port
from the dynamic range (49152-65535) is used instead.

If the service is already deployed but stopped, its existing containers
are restarted in place with their original image and port binding.

Examples:
  uvboot up
  uvboot up --port 9000
  uvboot up --auto-port
  uvboot up --skip-build`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir := "."
			if len(args) == 1 {
				projectDir = args[0]
			}
			return runUp(cmd.Context(), projectDir, flags)
		},
	}

	cmd.Flags().StringVar(&flags.form, "form", "entrypoint",
		"Invocation form when generating a Dockerfile: entrypoint, shell")
	cmd.Flags().IntVar(&flags.hostPort, "port", 0,
		"Host port to publish (default: the service's default port)")
	cmd.Flags().BoolVar(&flags.autoPort, "auto-port", false,
		"Fall back to a free dynamic-range port if the requested one is taken")
	cmd.Flags().BoolVar(&flags.skipBuild, "skip-build", false,
		"Start from the existing image without rebuilding")

	return cmd
}

// runUp is the main logic function for the up command.
func runUp(ctx context.Context, projectDir string, flags *upFlags) error {
	fs := afero.NewOsFs()

	// Step 1: Load and validate the service descriptor.
	spec, configPath, err := appconfig.LoadServiceSpec(projectDir)
	if err != nil {
		return err
	}
	VerboseLog("Loaded service descriptor from %s", configPath)

	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to resolve project directory %q", projectDir), err)
	}

	// Step 2: Connect to Docker and verify the daemon is available
	// before doing any work.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 3: Handle an existing deployment of the same service. Stopped
	// containers are restarted in place; a running deployment is refused
	// (down first, then up — replacing containers implicitly would hide
	// the old one's state).
	existing, err := findDeployment(ctx, cli, spec.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Status == model.StatusStopped {
			return restartDeployment(ctx, cli, existing)
		}
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("service %q is already deployed (run \"uvboot down %s\" first)", spec.Name, spec.Name))
	}

	// Step 4: Ensure build files exist. A project that already carries a
	// Dockerfile keeps it untouched.
	form, err := model.ParseInvocationForm(flags.form)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid form %q: valid values are entrypoint, shell", flags.form), nil)
	}

	gen := buildfile.NewGenerator(fs)
	dockerfilePath := filepath.Join(absDir, buildfile.DockerfileName)
	if exists, _ := afero.Exists(fs, dockerfilePath); !exists {
		if _, err := gen.WriteDockerfile(absDir, spec, form); err != nil {
			return err
		}
		if _, err := gen.WriteDockerignore(absDir, spec); err != nil {
			return err
		}
		VerboseLog("Generated %s (%s form)", dockerfilePath, form)
	}
	if form == model.FormEntrypoint {
		if _, err := gen.StageBinary(absDir); err != nil {
			return err
		}
	}

	// Step 5: Allocate the host port before the (slow) image build, so a
	// port conflict fails fast.
	preferred := flags.hostPort
	if preferred == 0 {
		preferred = spec.DefaultPort
	}
	picker := port.NewPicker(port.NewScanner())
	binding, err := picker.Pick(spec.DefaultPort, preferred, flags.autoPort)
	if err != nil {
		return err
	}
	VerboseLog("Allocated port binding %s", binding.String())

	// Step 6: Build the image.
	tag := buildfile.ImageTag(spec)
	if flags.skipBuild {
		VerboseLog("Skipping image build for %s", tag)
	} else {
		fmt.Printf("Building image %s...\n", tag)
		if err := docker.BuildImage(ctx, absDir, tag); err != nil {
			return err
		}
	}

	// Step 7: Create and start the container with the uvboot labels.
	dep := &model.Deployment{
		Service:     spec.Name,
		ProjectPath: absDir,
		Image:       tag,
		App:         spec.App,
		Form:        form,
		Binding:     binding,
		CreatedAt:   time.Now(),
	}

	containerID, err := docker.CreateAndStart(ctx, cli, dep, spec, nil)
	if err != nil {
		return err
	}
	VerboseLog("Started container %s", containerID)

	printUpResult(dep, containerID)
	return nil
}

// restartDeployment starts the existing stopped containers of a
// deployment. The image, labels, and port binding are reused as-is: a
// restart resumes the deployment, it does not reconfigure it.
func restartDeployment(ctx context.Context, cli *docker.Client, dep *model.Deployment) error {
	for _, c := range dep.Containers {
		if c.Status == "running" {
			continue
		}
		VerboseLog("Restarting container %s", c.ContainerName)
		if err := docker.StartContainer(ctx, cli, c.ContainerID); err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		printJSON(map[string]interface{}{
			"service":   dep.Service,
			"image":     dep.Image,
			"restarted": true,
			"hostPort":  dep.Binding.HostPort,
			"port":      dep.Binding.ContainerPort,
		})
		return nil
	}

	fmt.Printf("Service %q restarted.\n", dep.Service)
	fmt.Printf("  URL: http://localhost:%d\n", dep.Binding.HostPort)
	return nil
}

// findDeployment looks up an existing deployment by service name.
// Returns (nil, nil) when the service has no containers.
func findDeployment(ctx context.Context, cli *docker.Client, service string) (*model.Deployment, error) {
	containers, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return nil, err
	}

	groups := docker.GroupContainersByService(containers)
	group, ok := groups[service]
	if !ok {
		return nil, nil
	}

	dep, err := docker.BuildDeployment(service, group)
	if err != nil {
		return nil, fmt.Errorf("inspecting existing deployment %q: %w", service, err)
	}
	return dep, nil
}

// printUpResult outputs the up result in text or JSON format.
func printUpResult(dep *model.Deployment, containerID string) {
	if IsJSONOutput() {
		printJSON(map[string]interface{}{
			"service":     dep.Service,
			"image":       dep.Image,
			"containerId": containerID,
			"form":        dep.Form.String(),
			"hostPort":    dep.Binding.HostPort,
			"port":        dep.Binding.ContainerPort,
		})
		return
	}

	fmt.Printf("Service %q is up.\n", dep.Service)
	fmt.Printf("  Image:     %s\n", dep.Image)
	fmt.Printf("  Container: %s\n", ShortContainerID(containerID))
	fmt.Printf("  URL:       http://localhost:%d\n", dep.Binding.HostPort)
}
