package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quickScript plays in a few milliseconds with fastConfig.
const quickScript = `name: quick
steps:
  - say: "Here is the week"
  - show: line
    title: Weekly SR
    x: week
    y: sr
    data:
      - {week: W1, sr: 40, audio: "forty"}
      - {week: W2, sr: 55}
    wait_complete: true
  - caption: "SR is up"
    wait: 5ms
`

func runPlayCmd(t *testing.T, rootOpts *RootOptions, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buf := &bytes.Buffer{}
	cmd := NewPlayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(ctx)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPlay_Text(t *testing.T) {
	rootOpts := writeConfig(t, "text", fastConfig)
	path := writeScript(t, quickScript)

	out, err := runPlayCmd(t, rootOpts, "--width", "60", path)
	require.NoError(t, err)

	assert.Contains(t, out, "> Here is the week")
	assert.Contains(t, out, "Weekly SR")
	assert.Contains(t, out, "W2")
	assert.Contains(t, out, "SR is up")
}

func TestPlay_JSONWithTrace(t *testing.T) {
	rootOpts := writeConfig(t, "json", fastConfig)
	path := writeScript(t, quickScript)
	tracePath := filepath.Join(t.TempDir(), "quick.json")

	out, err := runPlayCmd(t, rootOpts, "--trace", tracePath, path)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   PlayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "quick", resp.Data.Script)
	assert.Equal(t, 3, resp.Data.Steps)
	assert.Equal(t, "none", resp.Data.Provider)
	assert.Equal(t, tracePath, resp.Data.Trace)

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"complete"`)
	assert.Contains(t, string(data), `"skip":"unsupported"`)
}

func TestPlay_MissingScript(t *testing.T) {
	rootOpts := writeConfig(t, "text", fastConfig)

	_, err := runPlayCmd(t, rootOpts, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPlay_UnknownProvider(t *testing.T) {
	rootOpts := writeConfig(t, "text", fastConfig)
	path := writeScript(t, quickScript)

	_, err := runPlayCmd(t, rootOpts, "--provider", "robot", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --provider")
}

func TestPlay_Interrupted(t *testing.T) {
	rootOpts := writeConfig(t, "text", fastConfig)
	path := writeScript(t, "name: long\nsteps:\n  - caption: wait\n    wait: 1h\n")

	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewPlayCommand(rootOpts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("play did not stop")
	}
}
