package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pluginhost dev")
}

func TestCheckCmd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fmt.lua", `
plugin = { name = "shfmt", version = "1.2.0", dependencies = { { name = "core", required = false } } }
function is_available() return true end
`)
	writeFile(t, dir, "lint.lua", `
plugin = { name = "shellcheck", version = "0.9.0" }
function is_available() return false end
`)
	cfgPath := writeFile(t, dir, "pluginhost.yaml", `
logging:
  level: error
plugins:
  enabled: [shfmt]
  scripts: [fmt.lua, lint.lua]
`)

	out, err := execute(t, "check", "--config", cfgPath, "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "PLUGIN")
	assert.Regexp(t, `shfmt\s+1\.2\.0\s+yes\s+yes\s+core \(optional\)`, out)
	assert.Regexp(t, `shellcheck\s+0\.9\.0\s+no\s+no\s+-`, out)
}

func TestCheckCmd_ReportsProblems(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lint.lua", `
plugin = { name = "shellcheck" }
function is_available() return false end
`)
	cfgPath := writeFile(t, dir, "pluginhost.toml", `
[logging]
level = "error"

[plugins]
enabled = ["shellcheck", "ghost"]
scripts = ["lint.lua"]
`)

	_, err := execute(t, "check", "-c", cfgPath, "--env-file", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 enabled plugins cannot be activated")
	assert.Contains(t, err.Error(), "shellcheck (unavailable)")
	assert.Contains(t, err.Error(), "ghost (not registered)")
}

func TestCheckCmd_InvalidLogLevelFlag(t *testing.T) {
	_, err := execute(t, "check", "--log-level", "loud", "--env-file", "")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, loadEnvFile(missing, false))
	assert.Error(t, loadEnvFile(missing, true))
	assert.NoError(t, loadEnvFile("", true))

	path := writeFile(t, t.TempDir(), ".env", "PLUGINHOST_TEST_DOTENV=loaded\n")
	t.Setenv("PLUGINHOST_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("PLUGINHOST_TEST_DOTENV"))
	require.NoError(t, loadEnvFile(path, true))
	assert.Equal(t, "loaded", os.Getenv("PLUGINHOST_TEST_DOTENV"))
}
