package buildfile

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findingsByRule indexes findings by rule identifier.
func findingsByRule(findings []Finding) map[string][]Finding {
	m := make(map[string][]Finding)
	for _, f := range findings {
		m[f.Rule] = append(m[f.Rule], f)
	}
	return m
}

// TestLint_ExecFormPlaceholder covers the defining defect class: an
// exec-form CMD carrying a ${PORT} placeholder. uvicorn receives the
// literal text as its port argument and fails to bind at container start.
func TestLint_ExecFormPlaceholder(t *testing.T) {
	content := `FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
CMD ["uvicorn", "main:app", "--host", "0.0.0.0", "--port", "${PORT}"]
`
	findings := Lint(content, nil)
	byRule := findingsByRule(findings)

	require.Len(t, byRule[RuleUnexpandedPlaceholder], 1)
	f := byRule[RuleUnexpandedPlaceholder][0]
	assert.Equal(t, SeverityError, f.Severity)
	assert.Equal(t, 6, f.Line)
	assert.Contains(t, f.Message, "${PORT}")

	assert.True(t, HasErrors(findings))
}

// TestLint_ExecFormEntrypointPlaceholder verifies the same rule fires
// for ENTRYPOINT.
func TestLint_ExecFormEntrypointPlaceholder(t *testing.T) {
	content := `FROM python:3.12-slim
ENTRYPOINT ["uvicorn", "main:app", "--port", "$PORT"]
`
	findings := Lint(content, nil)
	byRule := findingsByRule(findings)
	require.Len(t, byRule[RuleUnexpandedPlaceholder], 1)
	assert.Equal(t, SeverityError, byRule[RuleUnexpandedPlaceholder][0].Severity)
}

// TestLint_ShellFormIsClean verifies the working shell-form variant
// passes: the shell expands the defaulted variable at container start.
func TestLint_ShellFormIsClean(t *testing.T) {
	content := `FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
CMD uvicorn main:app --host 0.0.0.0 --port ${PORT:-8000}
`
	findings := Lint(content, nil)
	assert.Empty(t, findings, "working shell-form variant should lint clean, got: %v", findings)
}

// TestLint_ShellFormWithoutDefault verifies the softer shell-form
// defect: ${PORT} with no fallback collapses to nothing when unset.
func TestLint_ShellFormWithoutDefault(t *testing.T) {
	for _, cmd := range []string{
		"CMD uvicorn main:app --host 0.0.0.0 --port ${PORT}",
		"CMD uvicorn main:app --host 0.0.0.0 --port $PORT",
	} {
		content := "FROM python:3.12-slim\n" + cmd + "\n"
		findings := Lint(content, nil)
		byRule := findingsByRule(findings)

		require.Len(t, byRule[RuleNoPortDefault], 1, "expected finding for %q", cmd)
		assert.Equal(t, SeverityWarning, byRule[RuleNoPortDefault][0].Severity)
		assert.False(t, HasErrors(findings), "missing default is a warning, not an error")
	}
}

// TestLint_SourceBeforeDeps verifies the cache-layer rule: copying the
// whole context before installing dependencies re-runs the install on
// every source change.
func TestLint_SourceBeforeDeps(t *testing.T) {
	content := `FROM python:3.12-slim
WORKDIR /app
COPY . .
RUN pip install --no-cache-dir -r requirements.txt
CMD uvicorn main:app --host 0.0.0.0 --port ${PORT:-8000}
`
	findings := Lint(content, nil)
	byRule := findingsByRule(findings)

	require.Len(t, byRule[RuleSourceBeforeDeps], 1)
	assert.Equal(t, 3, byRule[RuleSourceBeforeDeps][0].Line)
}

// TestLint_BroadCopyAfterInstallIsFine verifies the rule only fires when
// the broad copy precedes the install.
func TestLint_BroadCopyAfterInstallIsFine(t *testing.T) {
	content := `FROM python:3.12-slim
COPY requirements.txt ./
RUN pip install -r requirements.txt
COPY . .
CMD uvicorn main:app --port ${PORT:-8000}
`
	findings := Lint(content, nil)
	assert.NotContains(t, findingsByRule(findings), RuleSourceBeforeDeps)
}

// TestLint_MissingLockFile verifies the lock file rule is driven by the
// service descriptor.
func TestLint_MissingLockFile(t *testing.T) {
	spec := testSpec() // declares requirements.lock

	content := `FROM python:3.12-slim
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
CMD uvicorn main:app --host 0.0.0.0 --port ${PORT:-8000}
`
	findings := Lint(content, spec)
	byRule := findingsByRule(findings)

	require.Len(t, byRule[RuleMissingLockFile], 1)
	assert.Contains(t, byRule[RuleMissingLockFile][0].Message, "requirements.lock")

	// Copying the lock file silences the rule.
	fixed := `FROM python:3.12-slim
COPY requirements.txt requirements.lock ./
RUN pip install --no-cache-dir -r requirements.lock
COPY . .
CMD uvicorn main:app --host 0.0.0.0 --port ${PORT:-8000}
`
	findings = Lint(fixed, spec)
	assert.NotContains(t, findingsByRule(findings), RuleMissingLockFile)
}

// TestLint_ExposeMismatch verifies EXPOSE is compared against the
// descriptor's default port.
func TestLint_ExposeMismatch(t *testing.T) {
	spec := testSpec() // default port 8000

	content := `FROM python:3.12-slim
COPY requirements.txt requirements.lock ./
RUN pip install -r requirements.lock
COPY . .
EXPOSE 5000
CMD uvicorn main:app --host 0.0.0.0 --port ${PORT:-8000}
`
	findings := Lint(content, spec)
	byRule := findingsByRule(findings)

	require.Len(t, byRule[RuleExposeMismatch], 1)
	assert.Equal(t, 5, byRule[RuleExposeMismatch][0].Line)
}

// TestLint_NoStartCommand verifies a Dockerfile without CMD/ENTRYPOINT
// is an error.
func TestLint_NoStartCommand(t *testing.T) {
	content := `FROM python:3.12-slim
COPY requirements.txt ./
RUN pip install -r requirements.txt
COPY . .
`
	findings := Lint(content, nil)
	byRule := findingsByRule(findings)

	require.Len(t, byRule[RuleNoStartCommand], 1)
	assert.True(t, HasErrors(findings))
}

// TestLint_Continuations verifies that backslash continuations are
// joined and findings point at the first physical line.
func TestLint_Continuations(t *testing.T) {
	content := `FROM python:3.12-slim
COPY . .
RUN pip install \
    --no-cache-dir \
    -r requirements.txt
CMD ["uvicorn", "main:app", \
     "--port", "${PORT}"]
`
	findings := Lint(content, nil)
	byRule := findingsByRule(findings)

	require.Len(t, byRule[RuleSourceBeforeDeps], 1, "continued RUN should still count as the install step")
	require.Len(t, byRule[RuleUnexpandedPlaceholder], 1)
	assert.Equal(t, 6, byRule[RuleUnexpandedPlaceholder][0].Line,
		"finding should point at the first line of the continued instruction")
}

// TestLint_CommentsIgnored verifies commented-out instructions are not
// linted.
func TestLint_CommentsIgnored(t *testing.T) {
	content := `FROM python:3.12-slim
# CMD ["uvicorn", "main:app", "--port", "${PORT}"]
COPY requirements.txt ./
RUN pip install -r requirements.txt
COPY . .
CMD uvicorn main:app --port ${PORT:-8000}
`
	findings := Lint(content, nil)
	assert.Empty(t, findings)
}

// TestLintFile verifies reading through afero.
func TestLintFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "FROM python:3.12-slim\nCMD [\"uvicorn\", \"main:app\", \"--port\", \"${PORT}\"]\n"
	require.NoError(t, afero.WriteFile(fs, "/proj/Dockerfile", []byte(content), 0o644))

	findings, err := LintFile(fs, "/proj/Dockerfile", nil)
	require.NoError(t, err)
	assert.True(t, HasErrors(findings))

	_, err = LintFile(fs, "/proj/missing", nil)
	assert.Error(t, err)
}

// TestLint_MalformedExecForm verifies a broken JSON array is reported as
// a warning rather than skipped.
func TestLint_MalformedExecForm(t *testing.T) {
	content := `FROM python:3.12-slim
CMD ["uvicorn", "main:app",]
`
	findings := Lint(content, nil)
	byRule := findingsByRule(findings)

	require.Len(t, byRule[RuleUnexpandedPlaceholder], 1)
	assert.Equal(t, SeverityWarning, byRule[RuleUnexpandedPlaceholder][0].Severity)
}
