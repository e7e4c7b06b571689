package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		BackendURL: "http://localhost:8089",
		Username:   "admin",
		Password:   "admin",
		LogLevel:   "info",
		Timeout:    time.Minute,
		PageMode:   "paged",
		BatchSize:  50,
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.False(t, cfg.Commit)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "paged", cfg.PageMode)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Zero(t, cfg.SweepDelay)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(`
backend_url: http://from-file:8089
username: file-user
password: file-pass
brbl_code: BRBL
sweep_delay: 30s
`), 0644))

	t.Setenv("ACCFIX_USERNAME", "env-user")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("password", "p", "", "")
	fs.Float64("rps", 0, "")
	fs.Bool("quiet", false, "")
	require.NoError(t, fs.Parse([]string{"-p", "flag-pass", "--rps", "2.5"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:8089", cfg.BackendURL)
	assert.Equal(t, "env-user", cfg.Username)
	assert.Equal(t, "flag-pass", cfg.Password)
	assert.Equal(t, "BRBL", cfg.BRBLCode)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, 30*time.Second, cfg.SweepDelay)
}

func TestLoad_ExplicitConfigMustExist(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("missing.yaml", nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.BackendURL = ""
		cfg.Password = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "please specify a backend_url")
		assert.Contains(t, err.Error(), "please specify a password")
	})

	t.Run("repository code required when variant selected", func(t *testing.T) {
		cfg := validConfig()
		cfg.BRBL = true

		err := cfg.Validate()
		var verr ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "brbl_code", verr.Field)
		assert.Equal(t, "please specify a brbl_code", verr.Message)

		cfg.BRBLCode = "BRBL"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown page mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.PageMode = "all"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page_mode must be one of: paged bulk")
	})
}

func TestLoadEnvFiles_DoesNotOverrideExistingEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("ACCFIX_USERNAME=from_file\n"), 0644))
	t.Setenv("ACCFIX_USERNAME", "from_env")

	LoadEnvFiles()

	assert.Equal(t, "from_env", os.Getenv("ACCFIX_USERNAME"))
}

func TestLoad_EnvOnly(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ACCFIX_BACKEND_URL", "http://env:8089")
	t.Setenv("ACCFIX_MSSA", "true")
	t.Setenv("ACCFIX_BATCH_SIZE", "25")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://env:8089", cfg.BackendURL)
	assert.True(t, cfg.MSSA)
	assert.Equal(t, 25, cfg.BatchSize)
}
