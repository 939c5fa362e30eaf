// Package cli — init.go implements the "uvboot init" command.
//
// init scaffolds a uvboot.json service descriptor in the current project
// directory. The generated file is JSONC with explanatory comments, so a
// developer can open it and understand every knob without consulting
// external documentation.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/uvboot/internal/appconfig"
	"github.com/mmr-tortoise/uvboot/internal/model"
)

// initFlags holds the flag values for the init command.
type initFlags struct {
	// name overrides the service name. Defaults to the project
	// directory's base name.
	name string

	// force overwrites an existing uvboot.json.
	force bool
}

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init [project-dir]",
		Short: "Create a uvboot.json service descriptor",
		Long: `Create a uvboot.json service descriptor in the project directory.

The descriptor is written as JSONC (JSON with comments) and pre-filled
with the defaults: Python 3.12, the "main:app" application reference,
the PORT variable with default 8000, and /app/data as the data directory.

Examples:
  uvboot init
  uvboot init ./my-service --name my-service`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir := "."
			if len(args) == 1 {
				projectDir = args[0]
			}
			return runInit(projectDir, flags)
		},
	}

	cmd.Flags().StringVar(&flags.name, "name", "", "Service name (default: project directory name)")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing uvboot.json")

	return cmd
}

// runInit is the main logic function for the init command.
func runInit(projectDir string, flags *initFlags) error {
	fs := afero.NewOsFs()

	// Step 1: Derive the service name and validate it up front, so the
	// scaffolded file is never born invalid.
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to resolve project directory %q", projectDir), err)
	}

	name := flags.name
	if name == "" {
		name = filepath.Base(absDir)
	}
	if err := model.ValidateName(name); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid service name %q", name), err)
	}

	// Step 2: Refuse to clobber an existing descriptor unless --force.
	configPath := filepath.Join(absDir, appconfig.ConfigFileName)
	if exists, _ := afero.Exists(fs, configPath); exists && !flags.force {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s already exists (use --force to overwrite)", configPath))
	}

	// Step 3: Write the commented template.
	if err := afero.WriteFile(fs, configPath, []byte(configTemplate(name)), 0o644); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to write %s", configPath), err)
	}

	VerboseLog("Wrote %s", configPath)
	printInitResult(name, configPath)
	return nil
}

// configTemplate renders the scaffolded uvboot.json content. JSONC
// comments document each field inline.
func configTemplate(name string) string {
	return fmt.Sprintf(`{
  // Service name: lowercase letters, digits, and hyphens.
  "name": %q,

  // Python base image version (python:<version>-slim).
  "pythonVersion": "3.12",

  // ASGI application reference in "module:attribute" form.
  "app": "main:app",

  // Environment variable the container reads its listen port from.
  "portEnv": "PORT",

  // Port used when the variable is unset or empty.
  "defaultPort": 8000,

  // Directory created inside the container before the server starts.
  "dataDir": "/app/data",

  // Dependency manifest copied before the source tree for layer caching.
  "requirementsFile": "requirements.txt",
}
`, name)
}

// printInitResult outputs the init result in text or JSON format.
func printInitResult(name, configPath string) {
	if IsJSONOutput() {
		printJSON(map[string]interface{}{
			"service": name,
			"config":  configPath,
		})
		return
	}

	fmt.Printf("Created %s for service %q.\n", configPath, name)
	fmt.Println("Next: run \"uvboot generate\" to produce a Dockerfile.")
}
