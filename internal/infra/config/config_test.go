// No t.Parallel(): environment variables are process-global.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := InitViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	want := Defaults()
	assert.Equal(t, want, *cfg)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, 24*time.Hour, cfg.Auth.Expiry())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := []byte(`
server:
  port: 9090
llm:
  provider: OpenAI
  model: gpt-4o-mini
agent:
  max_tool_rounds: 3
  parallel_tools: true
auth:
  jwt_secret: file-secret-long-enough
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unroll.yaml"), yaml, 0o600))

	t.Setenv("UNROLL_LLM_MODEL", "gpt-4.1")
	t.Setenv("UNROLL_DATABASE_DRIVER", "postgres")
	t.Setenv("UNROLL_DATABASE_DSN", "postgres://localhost/unroll")

	v, err := InitViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model, "env must override file")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/unroll", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Agent.MaxToolRounds)
	assert.True(t, cfg.Agent.ParallelTools)
	assert.Equal(t, "file-secret-long-enough", cfg.Auth.JWTSecret)
}

func TestInitViper_ExplicitPathMustExist(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := InitViper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInitViper_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unroll.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := InitViper("")
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "port", env: map[string]string{"UNROLL_SERVER_PORT": "70000"}},
		{name: "driver", env: map[string]string{"UNROLL_DATABASE_DRIVER": "mysql"}},
		{name: "provider", env: map[string]string{"UNROLL_LLM_PROVIDER": "bard"}},
		{name: "temperature", env: map[string]string{"UNROLL_LLM_TEMPERATURE": "3.5"}},
		{name: "negative rounds", env: map[string]string{"UNROLL_AGENT_MAX_TOOL_ROUNDS": "-1"}},
		{name: "expiry", env: map[string]string{"UNROLL_AUTH_JWT_EXPIRY_HOURS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			v, err := InitViper("")
			require.NoError(t, err)
			_, err = Load(v)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestBindFlags_FlagWinsOverEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("UNROLL_SERVER_PORT", "7000")
	t.Setenv("UNROLL_LLM_MODEL", "from-env")

	cmd := &cobra.Command{Use: "serve"}
	AddFlags(cmd, FlagPort, FlagModel, FlagLogJSON, "unknown")
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9999", "--log-json"}))

	v, err := InitViper("")
	require.NoError(t, err)
	BindFlags(v, cmd)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "from-env", cfg.LLM.Model, "an unset flag must not shadow env")
	assert.Nil(t, cmd.Flags().Lookup("unknown"))
	assert.Equal(t, "8080", cmd.Flags().Lookup("port").DefValue)
}
