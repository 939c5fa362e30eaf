// Package cli — generate.go implements the "uvboot generate" command.
//
// generate writes the build files for a service: a dependency-layer-cached
// Dockerfile (in either invocation form), a matching .dockerignore, and
// optionally a docker-compose.yml. The service descriptor (uvboot.json)
// in the project directory drives all content.
package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/uvboot/internal/appconfig"
	"github.com/mmr-tortoise/uvboot/internal/buildfile"
	"github.com/mmr-tortoise/uvboot/internal/model"
)

// generateFlags holds the flag values for the generate command.
type generateFlags struct {
	// form selects the invocation form of the generated Dockerfile:
	// "entrypoint" (exec-form, uvboot binary as PID 1) or "shell"
	// (shell-form CMD with a defaulted ${PORT} expansion).
	form string

	// compose additionally writes a docker-compose.yml.
	compose bool
}

// NewGenerateCommand creates the "generate" cobra command.
func NewGenerateCommand() *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate [project-dir]",
		Short: "Generate Dockerfile and supporting build files",
		Long: `Generate a Dockerfile, .dockerignore, and optionally a docker-compose.yml
for the service described by uvboot.json.

The Dockerfile copies the dependency manifest and installs packages before
copying the source tree, so source edits do not invalidate the dependency
layer's build cache.

Invocation forms:
  entrypoint  exec-form ENTRYPOINT running the uvboot binary, which
              resolves the port from the environment in-process (default)
  shell       shell-form CMD with ${PORT:-<default>} expansion

Examples:
  uvboot generate
  uvboot generate --form shell
  uvboot generate --compose`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir := "."
			if len(args) == 1 {
				projectDir = args[0]
			}
			return runGenerate(projectDir, flags)
		},
	}

	cmd.Flags().StringVar(&flags.form, "form", "entrypoint",
		"Invocation form: entrypoint, shell (default: entrypoint)")
	cmd.Flags().BoolVar(&flags.compose, "compose", false,
		"Also generate docker-compose.yml")

	return cmd
}

// runGenerate is the main logic function for the generate command.
func runGenerate(projectDir string, flags *generateFlags) error {
	// Step 1: Validate the --form flag value.
	form, err := model.ParseInvocationForm(flags.form)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid form %q: valid values are entrypoint, shell", flags.form), nil)
	}

	// Step 2: Load and validate the service descriptor.
	spec, configPath, err := appconfig.LoadServiceSpec(projectDir)
	if err != nil {
		return err
	}
	VerboseLog("Loaded service descriptor from %s", configPath)

	gen := buildfile.NewGenerator(afero.NewOsFs())
	written := make([]string, 0, 4)

	// Step 3: Write the Dockerfile and .dockerignore.
	dockerfilePath, err := gen.WriteDockerfile(projectDir, spec, form)
	if err != nil {
		return err
	}
	written = append(written, dockerfilePath)

	ignorePath, err := gen.WriteDockerignore(projectDir, spec)
	if err != nil {
		return err
	}
	written = append(written, ignorePath)

	// Step 4: Entrypoint-form images copy the uvboot binary into the
	// image, so the running binary must be staged into the build context.
	if form == model.FormEntrypoint {
		binaryPath, err := gen.StageBinary(projectDir)
		if err != nil {
			return err
		}
		written = append(written, binaryPath)
		VerboseLog("Staged uvboot binary at %s", binaryPath)
	}

	// Step 5: Optionally write docker-compose.yml. The compose file maps
	// the default port on both sides; "uvboot up" picks real host ports.
	if flags.compose {
		binding := model.PortBinding{
			ContainerPort: spec.DefaultPort,
			HostPort:      spec.DefaultPort,
			Protocol:      "tcp",
		}
		composePath, err := gen.WriteCompose(projectDir, spec, binding)
		if err != nil {
			return err
		}
		written = append(written, composePath)
	}

	printGenerateResult(spec.Name, form, written)
	return nil
}

// printGenerateResult outputs the generate result in text or JSON format.
func printGenerateResult(service string, form model.InvocationForm, written []string) {
	if IsJSONOutput() {
		printJSON(map[string]interface{}{
			"service": service,
			"form":    form.String(),
			"files":   written,
		})
		return
	}

	fmt.Printf("Generated build files for service %q (%s form):\n", service, form)
	for _, path := range written {
		fmt.Printf("  %s\n", path)
	}
}
