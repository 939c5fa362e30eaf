// Package cli — down.go implements the "uvboot down" command.
//
// down tears down a deployment by service name: every container carrying
// the service's labels is stopped and removed. The named data volume is
// kept unless --volumes is passed, so a subsequent "uvboot up" resumes
// with the service's state intact.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/uvboot/internal/docker"
	"github.com/mmr-tortoise/uvboot/internal/model"
)

// downFlags holds the flag values for the down command.
type downFlags struct {
	// force removes containers even if they are still running without
	// waiting for a graceful stop.
	force bool

	// volumes also removes the service's data volume.
	volumes bool
}

// NewDownCommand creates the "down" cobra command.
func NewDownCommand() *cobra.Command {
	flags := &downFlags{}

	cmd := &cobra.Command{
		Use:   "down <service>",
		Short: "Stop and remove a service's containers",
		Long: `Stop and remove all containers belonging to a deployed service.

The service's data volume is preserved by default so that a later
"uvboot up" keeps the accumulated state. Pass --volumes to delete it.

Examples:
  uvboot down schedule-bot
  uvboot down schedule-bot --volumes
  uvboot down schedule-bot --force`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDown(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false,
		"Remove containers without a graceful stop")
	cmd.Flags().BoolVar(&flags.volumes, "volumes", false,
		"Also remove the service's data volume")

	return cmd
}

// runDown is the main logic function for the down command.
func runDown(ctx context.Context, service string, flags *downFlags) error {
	// Step 1: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	// Step 2: Find the service's containers by label.
	containers, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return err
	}
	group, ok := docker.GroupContainersByService(containers)[service]
	if !ok {
		return model.NewCLIError(model.ExitDeploymentNotFound,
			fmt.Sprintf("no deployment found for service %q", service))
	}

	// Step 3: Stop running containers, then remove all of them. With
	// --force the stop is skipped and the daemon kills on remove.
	removed := 0
	for _, c := range group {
		if !flags.force && c.Status == "running" {
			VerboseLog("Stopping container %s", c.ContainerName)
			if err := docker.StopContainer(ctx, cli, c.ContainerID); err != nil {
				return err
			}
		}
		VerboseLog("Removing container %s", c.ContainerName)
		if err := docker.RemoveContainer(ctx, cli, c.ContainerID, flags.force); err != nil {
			return err
		}
		removed++
	}

	// Step 4: Optionally remove the data volume. Only after every
	// container is gone — the daemon refuses to delete a volume that is
	// still referenced.
	volumeRemoved := false
	if flags.volumes {
		if err := docker.RemoveVolume(ctx, cli, service); err != nil {
			return err
		}
		volumeRemoved = true
	}

	printDownResult(service, removed, volumeRemoved)
	return nil
}

// printDownResult outputs the down result in text or JSON format.
func printDownResult(service string, removed int, volumeRemoved bool) {
	if IsJSONOutput() {
		printJSON(map[string]interface{}{
			"service":           service,
			"containersRemoved": removed,
			"volumeRemoved":     volumeRemoved,
		})
		return
	}

	fmt.Printf("Removed %d container(s) for service %q.\n", removed, service)
	if volumeRemoved {
		fmt.Printf("Removed data volume %q.\n", service+"-data")
	} else {
		fmt.Printf("Data volume %q preserved.\n", service+"-data")
	}
}
