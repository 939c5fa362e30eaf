// Package cli — list.go implements the "uvboot list" command.
//
// The list command displays all managed deployments by querying Docker
// for containers with the "uvboot.managed-by=uvboot" label. Containers
// are grouped by service name and presented as a text table or JSON
// array, depending on the --json flag.
//
// An optional --status flag allows filtering by deployment lifecycle
// state (running, stopped, orphaned, or all).
package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/uvboot/internal/docker"
	"github.com/mmr-tortoise/uvboot/internal/model"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// status filters deployments by their lifecycle state.
	// Valid values: "running", "stopped", "orphaned", "all" (default).
	status string
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all managed deployments",
		Long: `List all managed service deployments and their status.

Each deployment is shown with its service name, lifecycle status,
invocation form, published port, and image.

A deployment is "orphaned" when its project directory no longer exists
on disk; its containers may still be running.

Examples:
  uvboot list
  uvboot list --status running
  uvboot list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.status, "status", "all",
		"Filter by status: running, stopped, orphaned, all (default: all)")

	return cmd
}

// runList is the main logic function for the list command.
// It connects to Docker, discovers managed deployments, applies the
// status filter, and outputs results in the appropriate format.
func runList(ctx context.Context, flags *listFlags) error {
	// Step 1: Validate the --status flag value.
	statusFilter := flags.status
	if statusFilter != "all" {
		if _, err := model.ParseDeploymentStatus(statusFilter); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid status filter %q: valid values are running, stopped, orphaned, all", statusFilter), nil)
		}
	}

	// Step 2: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 3: List all containers that are managed by uvboot.
	containers, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return err
	}
	VerboseLog("Found %d managed containers", len(containers))

	// Step 4: Group containers by service and build Deployment domain
	// objects for each group.
	groups := docker.GroupContainersByService(containers)

	var deps []*model.Deployment
	for service, group := range groups {
		dep, err := docker.BuildDeployment(service, group)
		if err != nil {
			// Log the error but continue processing other deployments.
			// A single corrupted deployment should not prevent listing
			// the others.
			VerboseLog("Warning: skipping deployment %q: %v", service, err)
			continue
		}
		deps = append(deps, dep)
	}

	// Step 5: Sort deployments alphabetically for consistent output.
	sort.Slice(deps, func(i, j int) bool {
		return deps[i].Service < deps[j].Service
	})

	// Step 6: Apply the --status filter if specified.
	if statusFilter != "all" {
		deps = FilterDeploymentsByStatus(deps, statusFilter)
	}

	printListResult(deps)
	return nil
}

// FilterDeploymentsByStatus returns the deployments whose status string
// matches the filter. Pure function, extracted for testability.
func FilterDeploymentsByStatus(deps []*model.Deployment, status string) []*model.Deployment {
	filtered := make([]*model.Deployment, 0, len(deps))
	for _, dep := range deps {
		if dep.Status.String() == status {
			filtered = append(filtered, dep)
		}
	}
	return filtered
}

// ShortContainerID abbreviates a container ID to the 12-character form
// Docker uses in its own CLI output.
func ShortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// FormatBinding renders a deployment's published port for the table,
// "hostPort->containerPort" or "-" if no port is recorded.
func FormatBinding(binding model.PortBinding) string {
	if binding.HostPort == 0 {
		return "-"
	}
	return fmt.Sprintf("%d->%d", binding.HostPort, binding.ContainerPort)
}

// printListResult outputs the list of deployments in text or JSON format,
// depending on the global --json flag.
func printListResult(deps []*model.Deployment) {
	if IsJSONOutput() {
		printListResultJSON(deps)
	} else {
		printListResultText(deps)
	}
}

// listDeploymentJSON is the JSON output structure for a single
// deployment in the list command.
type listDeploymentJSON struct {
	Service     string   `json:"service"`
	Status      string   `json:"status"`
	Form        string   `json:"form"`
	App         string   `json:"app"`
	Image       string   `json:"image"`
	ProjectPath string   `json:"projectPath"`
	HostPort    int      `json:"hostPort"`
	Port        int      `json:"port"`
	Containers  []string `json:"containers"`
}

// printListResultJSON outputs the deployment list as structured JSON.
// The top-level key is "deployments" containing an array of objects.
func printListResultJSON(deps []*model.Deployment) {
	type resultJSON struct {
		Deployments []listDeploymentJSON `json:"deployments"`
	}

	result := resultJSON{
		// Use an empty slice instead of nil to ensure JSON output shows []
		// instead of null when no deployments are found.
		Deployments: make([]listDeploymentJSON, 0, len(deps)),
	}

	for _, dep := range deps {
		entry := listDeploymentJSON{
			Service:     dep.Service,
			Status:      dep.Status.String(),
			Form:        dep.Form.String(),
			App:         dep.App,
			Image:       dep.Image,
			ProjectPath: dep.ProjectPath,
			HostPort:    dep.Binding.HostPort,
			Port:        dep.Binding.ContainerPort,
			Containers:  make([]string, 0, len(dep.Containers)),
		}
		for _, c := range dep.Containers {
			entry.Containers = append(entry.Containers, ShortContainerID(c.ContainerID))
		}
		result.Deployments = append(result.Deployments, entry)
	}

	printJSON(result)
}

// printListResultText outputs the deployment list as a human-readable
// text table with aligned columns.
//
// The table format is:
//
//	SERVICE        STATUS    FORM        PORT          IMAGE
//	schedule-bot   running   entrypoint  9001->8000    uvboot/schedule-bot:latest
//	report-api     stopped   shell       -             uvboot/report-api:latest
func printListResultText(deps []*model.Deployment) {
	if len(deps) == 0 {
		fmt.Println("No deployments found.")
		return
	}

	fmt.Printf("%-20s %-10s %-12s %-14s %s\n",
		"SERVICE", "STATUS", "FORM", "PORT", "IMAGE")

	for _, dep := range deps {
		fmt.Printf("%-20s %-10s %-12s %-14s %s\n",
			dep.Service,
			dep.Status.String(),
			dep.Form.String(),
			FormatBinding(dep.Binding),
			dep.Image)
	}
}
