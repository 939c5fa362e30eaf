// Package cli — lint.go implements the "uvboot lint" command.
//
// lint checks a Dockerfile for the startup and caching defects uvboot
// knows about: unexpanded ${VAR} placeholders inside exec-form
// instructions (which Docker passes to the process verbatim, without
// shell expansion), port variables used without a default, source copied
// before the dependency install, and an EXPOSE that disagrees with the
// service descriptor.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/uvboot/internal/appconfig"
	"github.com/mmr-tortoise/uvboot/internal/buildfile"
	"github.com/mmr-tortoise/uvboot/internal/model"
)

// NewLintCommand creates the "lint" cobra command.
func NewLintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint [dockerfile]",
		Short: "Check a Dockerfile for startup and caching defects",
		Long: `Check a Dockerfile for defects that break container startup or waste
build cache.

Error-level rules (exit code 7):
  unexpanded-placeholder  ${VAR} inside an exec-form instruction; Docker
                          passes it to the process literally
  no-start-command        no CMD or ENTRYPOINT present

Warning-level rules:
  no-port-default         $PORT used without a ${PORT:-default} fallback
  source-before-deps      COPY of the source tree before the dependency
                          install, defeating layer caching
  missing-lock-file       dependency install without a pinned lock file
  expose-mismatch         EXPOSE port differs from the descriptor

If a uvboot.json is found next to the Dockerfile, descriptor-aware rules
are enabled; otherwise only descriptor-independent rules run.

Examples:
  uvboot lint
  uvboot lint ./svc/Dockerfile --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			path := buildfile.DockerfileName
			if len(args) == 1 {
				path = args[0]
			}
			return runLint(path)
		},
	}

	return cmd
}

// runLint is the main logic function for the lint command.
func runLint(path string) error {
	fs := afero.NewOsFs()

	// Step 1: Load the service descriptor if one exists next to the
	// Dockerfile. Lint runs fine without it; descriptor-aware rules
	// (expose-mismatch, the correct port variable name) just stay off.
	var spec *model.ServiceSpec
	projectDir := filepath.Dir(path)
	if loaded, configPath, err := appconfig.LoadServiceSpec(projectDir); err == nil {
		spec = loaded
		VerboseLog("Using service descriptor %s", configPath)
	} else {
		VerboseLog("No service descriptor found, running descriptor-independent rules only")
	}

	// Step 2: Run the linter.
	findings, err := buildfile.LintFile(fs, path, spec)
	if err != nil {
		return err
	}

	// Step 3: Report findings and exit non-zero if any are errors.
	printLintResult(path, findings)
	if buildfile.HasErrors(findings) {
		return model.NewCLIError(model.ExitLintFailed,
			fmt.Sprintf("%s has lint errors", path))
	}
	return nil
}

// printLintResult outputs lint findings in text or JSON format.
func printLintResult(path string, findings []buildfile.Finding) {
	if IsJSONOutput() {
		type findingJSON struct {
			Line     int    `json:"line"`
			Rule     string `json:"rule"`
			Severity string `json:"severity"`
			Message  string `json:"message"`
		}
		out := struct {
			File     string        `json:"file"`
			Findings []findingJSON `json:"findings"`
		}{
			File: path,
			// Empty slice instead of nil so a clean file renders as []
			// rather than null.
			Findings: make([]findingJSON, 0, len(findings)),
		}
		for _, f := range findings {
			out.Findings = append(out.Findings, findingJSON{
				Line:     f.Line,
				Rule:     f.Rule,
				Severity: string(f.Severity),
				Message:  f.Message,
			})
		}
		printJSON(out)
		return
	}

	if len(findings) == 0 {
		fmt.Printf("%s: no issues found.\n", path)
		return
	}
	for _, f := range findings {
		fmt.Printf("%s:%s\n", path, f.String())
	}
}
