// lint.go checks existing Dockerfiles for the misconfiguration classes
// that break containerized ASGI services at runtime or defeat build
// caching. The two error-severity rules correspond to failures that are
// invisible until the container actually starts (or rebuilds).
package buildfile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// Severity classifies a lint finding.
type Severity string

const (
	// SeverityError marks findings that will make the container fail at
	// runtime or never start.
	SeverityError Severity = "error"

	// SeverityWarning marks findings that degrade builds (cache misses,
	// irreproducible installs) without breaking startup.
	SeverityWarning Severity = "warning"
)

// Finding is a single lint result.
type Finding struct {
	// Line is the 1-based line number of the offending instruction
	// (the first physical line, for instructions using continuations).
	Line int `json:"line"`

	// Rule is the stable identifier of the violated rule.
	Rule string `json:"rule"`

	// Severity is error or warning.
	Severity Severity `json:"severity"`

	// Message describes the problem and how to fix it.
	Message string `json:"message"`
}

// String renders the finding in the familiar compiler format.
func (f Finding) String() string {
	return fmt.Sprintf("%d: %s: %s (%s)", f.Line, f.Severity, f.Message, f.Rule)
}

// Rule identifiers. Stable strings so scripts can filter on them.
const (
	// RuleUnexpandedPlaceholder fires when an exec-form CMD/ENTRYPOINT
	// array element contains a $ placeholder. Exec form passes arguments
	// directly to the process with no shell in between, so the literal
	// placeholder text reaches the server as its port argument and the
	// bind fails when the container starts.
	RuleUnexpandedPlaceholder = "unexpanded-placeholder"

	// RuleNoStartCommand fires when the Dockerfile has neither CMD nor
	// ENTRYPOINT.
	RuleNoStartCommand = "no-start-command"

	// RuleSourceBeforeDeps fires when the whole build context is copied
	// before dependencies are installed. Every source edit then
	// invalidates the dependency layer and re-runs the install.
	RuleSourceBeforeDeps = "source-before-deps"

	// RuleMissingLockFile fires when the service declares a lock file
	// but the dependency layer does not copy it.
	RuleMissingLockFile = "missing-lock-file"

	// RuleExposeMismatch fires when EXPOSE disagrees with the service's
	// default port.
	RuleExposeMismatch = "expose-mismatch"

	// RuleNoPortDefault fires when a shell-form start command references
	// the port variable without a ${VAR:-default} fallback. With the
	// variable unset, the reference expands to nothing and the server
	// sees a dangling --port flag.
	RuleNoPortDefault = "no-port-default"
)

// instruction is one logical Dockerfile instruction after joining
// continuation lines.
type instruction struct {
	// line is the 1-based number of the first physical line.
	line int

	// verb is the upper-cased instruction keyword (FROM, COPY, ...).
	verb string

	// args is the remainder of the instruction with continuations
	// joined by single spaces.
	args string
}

// parseInstructions splits Dockerfile content into logical instructions.
// Comments and blank lines are dropped; backslash continuations are
// joined. This is a line-oriented reading, which is sufficient for the
// rule set here — heredocs and parser directives pass through unflagged.
func parseInstructions(content string) []instruction {
	var out []instruction
	lines := strings.Split(content, "\n")

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		start := i + 1
		logical := trimmed
		for strings.HasSuffix(logical, "\\") && i+1 < len(lines) {
			i++
			logical = strings.TrimSuffix(logical, "\\") + " " + strings.TrimSpace(lines[i])
		}

		verb := logical
		args := ""
		if sp := strings.IndexAny(logical, " \t"); sp >= 0 {
			verb = logical[:sp]
			args = strings.TrimSpace(logical[sp+1:])
		}

		out = append(out, instruction{
			line: start,
			verb: strings.ToUpper(verb),
			args: args,
		})
	}
	return out
}

// Lint checks Dockerfile content against the rule set. The service
// descriptor may be nil, in which case descriptor-aware rules (lock file, EXPOSE
// mismatch) are skipped.
func Lint(content string, spec *model.ServiceSpec) []Finding {
	var findings []Finding
	instrs := parseInstructions(content)

	var (
		sawStartCommand bool
		installLine     int // first dependency-install RUN, 0 if none
		depCopyArgs     []string
		broadCopyLines  []int
	)

	for _, ins := range instrs {
		switch ins.verb {
		case "CMD", "ENTRYPOINT":
			sawStartCommand = true
			findings = append(findings, lintStartCommand(ins, spec)...)

		case "RUN":
			if installLine == 0 && isDependencyInstall(ins.args) {
				installLine = ins.line
			}

		case "COPY", "ADD":
			srcs := copySources(ins.args)
			if isBroadCopy(srcs) {
				broadCopyLines = append(broadCopyLines, ins.line)
			} else if installLine == 0 {
				// Narrow copies before the install step form the
				// dependency layer.
				depCopyArgs = append(depCopyArgs, srcs...)
			}

		case "EXPOSE":
			if spec != nil {
				findings = append(findings, lintExpose(ins, spec)...)
			}
		}
	}

	if !sawStartCommand {
		findings = append(findings, Finding{
			Line:     1,
			Rule:     RuleNoStartCommand,
			Severity: SeverityError,
			Message:  "no CMD or ENTRYPOINT instruction: the image cannot start a server",
		})
	}

	// Cache ordering: a broad copy is only a problem when it precedes
	// the dependency install.
	if installLine > 0 {
		for _, line := range broadCopyLines {
			if line < installLine {
				findings = append(findings, Finding{
					Line:     line,
					Rule:     RuleSourceBeforeDeps,
					Severity: SeverityWarning,
					Message:  "application source is copied before dependencies are installed; every source change will re-run the install — copy the dependency manifests first",
				})
			}
		}
	}

	// Lock file presence in the dependency layer.
	if spec != nil && spec.LockFile != "" && installLine > 0 {
		found := false
		for _, src := range depCopyArgs {
			if src == spec.LockFile {
				found = true
				break
			}
		}
		if !found {
			findings = append(findings, Finding{
				Line:     installLine,
				Rule:     RuleMissingLockFile,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("dependency layer does not copy the lock file %q; installs will not be reproducible", spec.LockFile),
			})
		}
	}

	return findings
}

// lintStartCommand checks a CMD or ENTRYPOINT instruction for the
// exec-form placeholder defect and, in shell form, for a missing port
// default.
func lintStartCommand(ins instruction, spec *model.ServiceSpec) []Finding {
	var findings []Finding

	if strings.HasPrefix(ins.args, "[") {
		// Exec form: the argument is a JSON array handed to the process
		// verbatim. Nothing between the array and the process performs
		// variable expansion.
		var elems []string
		if err := json.Unmarshal([]byte(ins.args), &elems); err != nil {
			findings = append(findings, Finding{
				Line:     ins.line,
				Rule:     RuleUnexpandedPlaceholder,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%s looks like exec form but is not a valid JSON array", ins.verb),
			})
			return findings
		}

		for _, e := range elems {
			if strings.Contains(e, "$") {
				findings = append(findings, Finding{
					Line:     ins.line,
					Rule:     RuleUnexpandedPlaceholder,
					Severity: SeverityError,
					Message: fmt.Sprintf("exec-form %s passes %q to the process without shell expansion; the literal text reaches the server and startup fails — use shell form, or an entrypoint that reads the environment itself", ins.verb, e),
				})
			}
		}
		return findings
	}

	// Shell form: expansion works, but a bare ${VAR} still collapses to
	// an empty string when the variable is unset.
	portEnv := "PORT"
	if spec != nil && spec.PortEnv != "" {
		portEnv = spec.PortEnv
	}
	bare := "${" + portEnv + "}"
	if strings.Contains(ins.args, bare) || containsBareVar(ins.args, portEnv) {
		findings = append(findings, Finding{
			Line:     ins.line,
			Rule:     RuleNoPortDefault,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("shell-form %s references %s without a default; use ${%s:-8000} so an unset variable still yields a port", ins.verb, portEnv, portEnv),
		})
	}

	return findings
}

// containsBareVar reports whether args references $NAME (no braces) as a
// whole variable name. Braced forms like ${NAME} or ${NAME:-x} contain
// no "$NAME" substring, so they never match here.
func containsBareVar(args, name string) bool {
	idx := 0
	for {
		i := strings.Index(args[idx:], "$"+name)
		if i < 0 {
			return false
		}
		pos := idx + i + 1 + len(name)
		// Reject matches where the variable name continues ($PORTX).
		if pos >= len(args) || !isVarNameChar(args[pos]) {
			return true
		}
		idx += i + 1
	}
}

func isVarNameChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// lintExpose compares EXPOSE ports against the service's default port.
func lintExpose(ins instruction, spec *model.ServiceSpec) []Finding {
	var findings []Finding
	for _, field := range strings.Fields(ins.args) {
		portPart := field
		if i := strings.Index(field, "/"); i >= 0 {
			portPart = field[:i]
		}
		port, err := strconv.Atoi(portPart)
		if err != nil {
			continue
		}
		if port != spec.DefaultPort {
			findings = append(findings, Finding{
				Line:     ins.line,
				Rule:     RuleExposeMismatch,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("EXPOSE %d does not match the service default port %d", port, spec.DefaultPort),
			})
		}
	}
	return findings
}

// isDependencyInstall reports whether a RUN instruction installs Python
// dependencies.
func isDependencyInstall(args string) bool {
	for _, marker := range []string{"pip install", "pip3 install", "poetry install", "uv pip install", "uv sync", "pipenv install"} {
		if strings.Contains(args, marker) {
			return true
		}
	}
	return false
}

// copySources extracts the source operands of a COPY/ADD instruction
// (all fields but the last, skipping --flags).
func copySources(args string) []string {
	fields := strings.Fields(args)
	var operands []string
	for _, f := range fields {
		if strings.HasPrefix(f, "--") {
			continue
		}
		operands = append(operands, f)
	}
	if len(operands) < 2 {
		return nil
	}
	return operands[:len(operands)-1]
}

// isBroadCopy reports whether a COPY's sources sweep in the whole build
// context (and with it, the application source).
func isBroadCopy(srcs []string) bool {
	for _, s := range srcs {
		if s == "." || s == "./" || s == "*" || s == "./*" {
			return true
		}
	}
	return false
}

// HasErrors reports whether any finding has error severity. The lint
// command uses this to pick its exit code.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// LintFile reads a Dockerfile through the given filesystem and lints it.
func LintFile(fs afero.Fs, path string, spec *model.ServiceSpec) ([]Finding, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Lint(string(data), spec), nil
}
