package cloud

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Player plays one encoded audio clip and blocks until it ends or ctx is
// done.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// DiscardPlayer drops audio, for headless runs.
type DiscardPlayer struct{}

func (DiscardPlayer) Play(ctx context.Context, _ []byte) error { return ctx.Err() }

// ExecPlayer writes the clip to a temporary file and plays it with a local
// binary. The file path is appended to Args.
type ExecPlayer struct {
	Command string
	Args    []string
}

// playerCandidates lists binaries that can play an mp3 file, best first.
func playerCandidates(goos string) []ExecPlayer {
	players := []ExecPlayer{
		{Command: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
		{Command: "mpg123", Args: []string{"-q"}},
	}
	if goos == "darwin" {
		players = append([]ExecPlayer{{Command: "afplay"}}, players...)
	}
	return players
}

// FindPlayer returns the first installed player, or false if none is.
func FindPlayer(lookPath func(string) (string, error)) (ExecPlayer, bool) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, p := range playerCandidates(runtime.GOOS) {
		if _, err := lookPath(p.Command); err == nil {
			return p, true
		}
	}
	return ExecPlayer{}, false
}

func (p ExecPlayer) Play(ctx context.Context, audio []byte) error {
	f, err := os.CreateTemp("", "narrator-*.mp3")
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}

	args := append(append([]string(nil), p.Args...), f.Name())
	out, err := exec.CommandContext(ctx, p.Command, args...).CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", p.Command, err, out)
		}
		return fmt.Errorf("%s: %w", p.Command, err)
	}
	return nil
}
