package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/config"
)

// Scripts shared by the command tests.
var (
	shortScript   = filepath.Join("..", "script", "testdata", "short.yaml")
	shortGolden   = filepath.Join("..", "script", "testdata", "golden", "short.golden")
	exampleScript = filepath.Join("..", "..", "examples", "sr-demo.yaml")
)

// writeConfig writes a config file with the given YAML body and returns
// root options pointing at it. The environment cannot switch the cache.
func writeConfig(t *testing.T, format, body string) *RootOptions {
	t.Helper()
	t.Setenv(config.EnvRedisURL, "")
	t.Setenv(config.EnvAPIKey, "")

	path := filepath.Join(t.TempDir(), "narrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return &RootOptions{Format: format, Config: path}
}

// fastConfig runs every delay in a millisecond, without narration.
const fastConfig = `timing:
  settle: 1ms
  narration: 1ms
  fallback: 1ms
narration:
  provider: none
`

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "narrator", cmd.Use)
	assert.Contains(t, cmd.Long, "one item at a time")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"play", "validate", "trace", "replay", "serve", "say"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestPlayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	playCmd, _, err := cmd.Find([]string{"play"})
	require.NoError(t, err)

	for _, name := range []string{"no-audio", "provider", "width", "trace"} {
		assert.NotNil(t, playCmd.Flags().Lookup(name), name)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	maxRuns := serveCmd.Flags().Lookup("max-runs")
	require.NotNil(t, maxRuns)
	assert.Equal(t, "32", maxRuns.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("addr"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--format", "xml", "validate", shortScript})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootRunsSubcommand(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--format", "json", "validate", shortScript})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"status":"ok"`)
}
