package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturesPath = "../../pkg/storage/testdata/fixtures.yaml"

// isolateEnv registers cleanup for the variables the flags are applied through.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONTENTAPI_BACKEND", "CONTENTAPI_FIXTURES", "CONTENTAPI_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestResolveCommandComposesDocument(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "resolve", "100", "--env-file", "", "--backend", "memory", "--fixtures", fixturesPath, "--log-level", "error")
	require.NoError(t, err)

	var result struct {
		Status int    `json:"status"`
		Kind   string `json:"kind"`
		Body   struct {
			Editorial struct {
				ID string `json:"id"`
			} `json:"editorial"`
			Tags         []map[string]any `json:"tags"`
			CommentCount *int             `json:"commentCount"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, "content", result.Kind)
	assert.Equal(t, "100", result.Body.Editorial.ID)
	assert.Len(t, result.Body.Tags, 2)
	require.NotNil(t, result.Body.CommentCount)
	assert.Equal(t, 17, *result.Body.CommentCount)
}

func TestResolveCommandLegacyRedirect(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "resolve", "200", "--env-file", "", "--backend", "memory", "--fixtures", fixturesPath, "--log-level", "error")
	require.NoError(t, err)

	var result struct {
		Status  int                 `json:"status"`
		Headers map[string][]string `json:"headers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 307, result.Status)
	assert.Equal(t, []string{"https://archive.example.com/200"}, result.Headers["Location"])
}

func TestResolveCommandUnknownContent(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "resolve", "missing", "--env-file", "", "--backend", "memory", "--fixtures", fixturesPath, "--log-level", "error")
	assert.Error(t, err)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	isolateEnv(t)
	t.Cleanup(func() { _ = os.Unsetenv("CONTENTAPI_DATA_ADDR") })

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CONTENTAPI_DATA_ADDR=:9999\n"), 0o600))

	cfg, err := loadConfig(&CLIConfig{EnvFile: envFile, Backend: "memory", Fixtures: fixturesPath})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.DataAddress)
	assert.Equal(t, "memory", cfg.Backend)
}

func TestLoadConfigMissingExplicitEnvFile(t *testing.T) {
	isolateEnv(t)

	_, err := loadConfig(&CLIConfig{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	assert.Error(t, err)
}
