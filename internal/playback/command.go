package playback

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Player names.
const (
	PlayerAfplay     = "afplay"
	PlayerPaplay     = "paplay"
	PlayerFfplay     = "ffplay"
	PlayerAplay      = "aplay"
	PlayerPowerShell = "powershell"
)

// FileEnv carries the audio path to the Windows player so the path never
// becomes part of a command string.
const FileEnv = "LVM_PLAYBACK_FILE"

const windowsScript = "(New-Object Media.SoundPlayer $env:" + FileEnv + ").PlaySync()"

// Volume bounds. 1.0 is the file's own level.
const (
	MinVolume = 0.0
	MaxVolume = 2.0
)

var (
	// ErrNoPlayer is returned when no supported player is installed.
	ErrNoPlayer = errors.New("no supported audio player found")

	// ErrInvalidVolume is returned for a volume outside [MinVolume, MaxVolume].
	ErrInvalidVolume = errors.New("volume must be between 0 and 2")
)

// linuxPlayers is the preference order on Linux.
var linuxPlayers = []string{PlayerPaplay, PlayerFfplay, PlayerAplay}

// LookPathFunc resolves a program name to an executable path.
type LookPathFunc func(file string) (string, error)

// Command is a resolved player invocation.
type Command struct {
	Player string
	Path   string
	Args   []string
	Env    []string
	// VolumeIgnored is set when a volume was requested but the player has
	// no way to apply it.
	VolumeIgnored bool
}

// FindPlayer returns the name of the player CommandFor would pick.
func FindPlayer(goos string, lookPath LookPathFunc) (string, error) {
	var candidates []string
	switch goos {
	case "darwin":
		candidates = []string{PlayerAfplay}
	case "windows":
		candidates = []string{PlayerPowerShell}
	default:
		candidates = linuxPlayers
	}
	for _, name := range candidates {
		if _, err := lookPath(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w (tried %v)", ErrNoPlayer, candidates)
}

// CommandFor builds the player invocation for goos. The audio path is always
// a discrete argument or, on Windows, an environment variable.
func CommandFor(goos, path string, volume *float64, lookPath LookPathFunc) (Command, error) {
	if volume != nil && !validVolume(*volume) {
		return Command{}, ErrInvalidVolume
	}

	name, err := FindPlayer(goos, lookPath)
	if err != nil {
		return Command{}, err
	}
	bin, err := lookPath(name)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Player: name, Path: bin}
	switch name {
	case PlayerAfplay:
		if volume != nil {
			cmd.Args = append(cmd.Args, "-v", formatFloat(*volume))
		}
		cmd.Args = append(cmd.Args, path)
	case PlayerPaplay:
		if volume != nil {
			// 65536 is 100% for PulseAudio.
			cmd.Args = append(cmd.Args, "--volume="+strconv.Itoa(int(math.Round(*volume*65536))))
		}
		cmd.Args = append(cmd.Args, path)
	case PlayerFfplay:
		cmd.Args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
		if volume != nil {
			// ffplay cannot amplify; its scale tops out at 100.
			v := int(math.Round(math.Min(*volume, 1) * 100))
			cmd.Args = append(cmd.Args, "-volume", strconv.Itoa(v))
		}
		cmd.Args = append(cmd.Args, path)
	case PlayerAplay:
		cmd.Args = []string{"-q", path}
		cmd.VolumeIgnored = volume != nil
	case PlayerPowerShell:
		cmd.Args = []string{"-NoProfile", "-NonInteractive", "-Command", windowsScript}
		cmd.Env = []string{FileEnv + "=" + path}
		cmd.VolumeIgnored = volume != nil
	}
	return cmd, nil
}

// ValidateVolume checks an optional volume. Nil means the file's own level.
func ValidateVolume(volume *float64) error {
	if volume != nil && !validVolume(*volume) {
		return fmt.Errorf("%w (got %s)", ErrInvalidVolume, formatFloat(*volume))
	}
	return nil
}

func validVolume(v float64) bool {
	return !math.IsNaN(v) && v >= MinVolume && v <= MaxVolume
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
