// Package playback plays audio files through the platform's command line
// player and optionally deletes them afterwards.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/metrics"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/proc"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/security"
)

// DefaultTimeout bounds a single playback.
const DefaultTimeout = 2 * time.Minute

// Result reports playback and deletion as independent outcomes.
type Result struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	Player            string `json:"player,omitempty"`
	FileDeleted       bool   `json:"fileDeleted"`
	DeletionMessage   string `json:"deletionMessage,omitempty"`
	DeletionRequested bool   `json:"-"`
}

// Player runs an external audio player.
type Player struct {
	Timeout time.Duration

	goos     string
	lookPath LookPathFunc
}

// New creates a player for the current platform.
func New(timeout time.Duration) *Player {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Player{Timeout: timeout, goos: runtime.GOOS, lookPath: exec.LookPath}
}

// Play validates path, plays it and waits for the player to exit. When
// deleteAfter is set the file is removed afterwards whatever the playback
// outcome, including a timeout. A path that fails validation is never
// deleted.
func (p *Player) Play(ctx context.Context, path string, volume *float64, deleteAfter bool) Result {
	res := Result{DeletionRequested: deleteAfter}

	vp, err := security.ValidateOpenPath(path)
	if err != nil {
		log.Warn("Playback rejected", "path", path, "error", err)
		res.Message = "invalid audio file: " + reason(err)
		if deleteAfter {
			res.DeletionMessage = "file was not deleted because it failed validation"
		}
		metrics.RecordPlayback("", false)
		return res
	}

	p.play(ctx, vp.Path, volume, &res)
	metrics.RecordPlayback(res.Player, res.Success)

	if deleteAfter {
		res.FileDeleted, res.DeletionMessage = deleteFile(vp.Path)
	}
	return res
}

func (p *Player) play(ctx context.Context, path string, volume *float64, res *Result) {
	cmd, err := CommandFor(p.goos, path, volume, p.lookPath)
	if err != nil {
		res.Message = err.Error()
		return
	}
	res.Player = cmd.Player

	log.Debug("Playing audio", "player", cmd.Player, "path", path)
	out, err := proc.Run(ctx, proc.Command{
		Path:    cmd.Path,
		Args:    cmd.Args,
		Env:     cmd.Env,
		Timeout: p.Timeout,
	})

	var exitErr *proc.ExitError
	switch {
	case err == nil:
		res.Success = true
		res.Message = "Audio played successfully"
		if cmd.VolumeIgnored {
			res.Message += fmt.Sprintf(" (%s does not support volume control)", cmd.Player)
		}
	case errors.Is(err, proc.ErrTimeout):
		res.Message = fmt.Sprintf("playback timed out after %s", p.Timeout)
	case errors.Is(err, proc.ErrSpawn):
		res.Message = fmt.Sprintf("failed to start %s", cmd.Player)
	case errors.As(err, &exitErr):
		res.Message = fmt.Sprintf("%s exited with code %d", cmd.Player, exitErr.Code)
		if tail := out.Tail(1); tail != "" {
			res.Message += ": " + tail
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Message = "playback canceled"
	default:
		res.Message = fmt.Sprintf("playback failed: %v", err)
	}

	if !res.Success {
		log.Warn("Playback failed", "player", cmd.Player, "message", res.Message)
	}
}

func deleteFile(path string) (bool, string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		log.Debug("Deleted audio file after playback", "path", path)
		return true, "Audio file deleted"
	case errors.Is(err, os.ErrNotExist):
		return false, "Audio file was already removed"
	default:
		log.Warn("Failed to delete audio file", "path", path, "error", err)
		return false, "Failed to delete audio file: " + reason(err)
	}
}

// reason strips the path from filesystem errors.
func reason(err error) string {
	var pathErr *security.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	var fsErr *os.PathError
	if errors.As(err, &fsErr) {
		return fsErr.Err.Error()
	}
	return err.Error()
}
