package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/initiative/internal/config"
)

// cliRun executes the root command with args against the config file in
// dir, writing a default one (SQLite database inside dir) if none exists.
func cliRun(t *testing.T, dir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvRemoteURL, "")
	t.Setenv(config.EnvRemoteToken, "")

	cfgPath := filepath.Join(dir, "config.yaml")
	if _, statErr := os.Stat(cfgPath); errors.Is(statErr, fs.ErrNotExist) {
		writeConfig(t, dir, "")
	}

	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeConfig writes dir/config.yaml with the database inside dir plus any
// extra YAML appended.
func writeConfig(t *testing.T, dir, extra string) {
	t.Helper()
	cfg := "storage:\n  path: " + filepath.Join(dir, "initiative.db") + "\n" + extra
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0644))
}

// decodeResponse parses a JSON CLIResponse, keeping Data raw.
func decodeResponse(t *testing.T, out string) (string, json.RawMessage, *CLIError) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp.Status, resp.Data, resp.Error
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "initiative", cmd.Use)
	assert.Contains(t, cmd.Long, "offline-first")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"entity", "save"},
		{"entity", "get"},
		{"entity", "list"},
		{"entity", "delete"},
		{"entity", "quarantined"},
		{"queue", "enqueue"},
		{"queue", "list"},
		{"queue", "show"},
		{"queue", "clear"},
		{"queue", "drain"},
		{"migrate"},
		{"status"},
		{"run"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	logFormatFlag := cmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, logFormatFlag)
	assert.Equal(t, "text", logFormatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestEntitySaveCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	saveCmd, _, err := cmd.Find([]string{"entity", "save"})
	require.NoError(t, err)

	require.NotNil(t, saveCmd.Flags().Lookup("data"))
	expectFlag := saveCmd.Flags().Lookup("expect-version")
	require.NotNil(t, expectFlag)
	assert.Equal(t, "-1", expectFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	require.NotNil(t, runCmd.Flags().Lookup("remote"))
	require.NotNil(t, runCmd.Flags().Lookup("metrics-addr"))
}

func TestFormatValidationIntegration(t *testing.T) {
	dir := t.TempDir()
	_, _, err := cliRun(t, dir, "--format", "invalid", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = cliRun(t, dir, "--log-format", "xml", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestDatabaseFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "other.db")

	_, _, err := cliRun(t, dir, "--db", dbPath, "entity", "save", "parties", "p-1", "--data", `{"userId":"u1"}`)
	require.NoError(t, err)

	_, statErr := os.Stat(dbPath)
	assert.NoError(t, statErr, "database should be created at the --db path")

	// The configured database never saw the write.
	_, _, err = cliRun(t, dir, "entity", "get", "parties", "p-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "bogus: true\n")

	out, _, err := cliRun(t, dir, "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [CONFIG]")
}

func TestMissingExplicitConfig(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "read config")
}
