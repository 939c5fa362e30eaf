package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/uvboot/internal/model"
)

// TestResolvePort_Valid verifies that any valid integer port value is
// used exactly as given.
func TestResolvePort_Valid(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"3000", 3000},
		{"1", 1},
		{"65535", 65535},
		{"8000", 8000},
		{" 8080 ", 8080}, // surrounding whitespace is tolerated
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ResolvePort(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestResolvePort_EmptyFallsBack verifies that an unset or empty variable
// yields the default port rather than an error.
func TestResolvePort_EmptyFallsBack(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t"} {
		got, err := ResolvePort(raw)
		require.NoError(t, err)
		assert.Equal(t, DefaultPort, got, "empty value %q should fall back to default", raw)
	}
}

// TestResolvePort_Invalid verifies that malformed values fail fast with
// ExitInvalidPort before any server process could be started.
func TestResolvePort_Invalid(t *testing.T) {
	invalid := []string{"abc", "80a", "0", "-1", "65536", "70000", "8000.5", "${PORT}"}

	for _, raw := range invalid {
		t.Run(raw, func(t *testing.T) {
			_, err := ResolvePort(raw)
			require.Error(t, err, "value %q should be rejected", raw)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr), "error should carry an exit code")
			assert.Equal(t, model.ExitInvalidPort, cliErr.Code)
		})
	}
}

// TestResolvePortFromEnv exercises the three environment states the
// contract distinguishes: set to a value, set to empty, and unset.
func TestResolvePortFromEnv(t *testing.T) {
	const envName = "UVBOOT_TEST_PORT"

	t.Run("set", func(t *testing.T) {
		t.Setenv(envName, "3000")
		got, err := ResolvePortFromEnv(envName)
		require.NoError(t, err)
		assert.Equal(t, 3000, got)
	})

	t.Run("empty", func(t *testing.T) {
		t.Setenv(envName, "")
		got, err := ResolvePortFromEnv(envName)
		require.NoError(t, err)
		assert.Equal(t, DefaultPort, got, "empty variable should behave like unset")
	})

	t.Run("unset", func(t *testing.T) {
		// t.Setenv cannot unset, so use a name that is never set.
		got, err := ResolvePortFromEnv("UVBOOT_TEST_PORT_NEVER_SET")
		require.NoError(t, err)
		assert.Equal(t, DefaultPort, got)
	})

	t.Run("non-numeric", func(t *testing.T) {
		t.Setenv(envName, "abc")
		_, err := ResolvePortFromEnv(envName)
		assert.Error(t, err)
	})

	t.Run("default env name", func(t *testing.T) {
		t.Setenv(DefaultPortEnv, "9100")
		got, err := ResolvePortFromEnv("")
		require.NoError(t, err)
		assert.Equal(t, 9100, got, "empty env name should fall back to PORT")
	})
}

// TestLoadSettings verifies the UVBOOT_* settings layer together with
// port resolution.
func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("PORT", "")
		settings, err := LoadSettings()
		require.NoError(t, err)

		assert.Equal(t, DefaultApp, settings.App)
		assert.Equal(t, DefaultHost, settings.Host)
		assert.Equal(t, DefaultDataDir, settings.DataDir)
		assert.Equal(t, DefaultPortEnv, settings.PortEnv)
		assert.Equal(t, DefaultPort, settings.Port)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("UVBOOT_APP", "server:application")
		t.Setenv("UVBOOT_DATA_DIR", "/var/lib/appdata")
		t.Setenv("PORT", "3000")

		settings, err := LoadSettings()
		require.NoError(t, err)

		assert.Equal(t, "server:application", settings.App)
		assert.Equal(t, "/var/lib/appdata", settings.DataDir)
		assert.Equal(t, 3000, settings.Port)
	})

	t.Run("custom port variable", func(t *testing.T) {
		t.Setenv("UVBOOT_PORT_ENV", "HTTP_PORT")
		t.Setenv("HTTP_PORT", "8123")

		settings, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, "HTTP_PORT", settings.PortEnv)
		assert.Equal(t, 8123, settings.Port)
	})

	t.Run("invalid port is fatal", func(t *testing.T) {
		t.Setenv("PORT", "abc")
		_, err := LoadSettings()
		require.Error(t, err)

		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitInvalidPort, cliErr.Code)
	})

	t.Run("invalid app reference", func(t *testing.T) {
		t.Setenv("UVBOOT_APP", "not a module")
		t.Setenv("PORT", "")
		_, err := LoadSettings()
		assert.Error(t, err)
	})
}

// TestEnsureDataDir verifies directory creation, idempotency, and nested
// parent creation.
func TestEnsureDataDir(t *testing.T) {
	base := t.TempDir()

	dir := filepath.Join(base, "data")
	require.NoError(t, EnsureDataDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Second call on an existing directory must succeed unchanged.
	require.NoError(t, EnsureDataDir(dir))

	// Nested parents are created in one call.
	nested := filepath.Join(base, "a", "b", "data")
	require.NoError(t, EnsureDataDir(nested))
	info, err = os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// TestEnsureDataDir_FileCollision verifies that a regular file occupying
// the data path is reported as an error rather than silently accepted.
func TestEnsureDataDir_FileCollision(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "data")
	require.NoError(t, os.WriteFile(path, []byte("not a directory"), 0o644))

	err := EnsureDataDir(path)
	assert.Error(t, err)
}
