package playback

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
)

// Platform represents the current operating system platform
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

// AudioSubsystem represents the available audio subsystem
type AudioSubsystem string

const (
	AudioSubsystemALSA       AudioSubsystem = "alsa"
	AudioSubsystemPulseAudio AudioSubsystem = "pulseaudio"
	AudioSubsystemCoreAudio  AudioSubsystem = "coreaudio"
	AudioSubsystemWASAPI     AudioSubsystem = "wasapi"
	AudioSubsystemNone       AudioSubsystem = "none"
)

// PlatformInfo describes the host's audio capabilities and the player that
// Play would use.
type PlatformInfo struct {
	OS             Platform       `json:"os"`
	Arch           string         `json:"arch"`
	AudioSubsystem AudioSubsystem `json:"audioSubsystem"`
	HasAudioDevice bool           `json:"hasAudioDevice"`
	IsCI           bool           `json:"isCI"`
	Player         string         `json:"player,omitempty"`
}

// Detect probes the current platform. It runs a few short commands and is
// meant for status reports, not for the playback hot path.
func Detect() *PlatformInfo {
	info := &PlatformInfo{
		OS:   platformOf(runtime.GOOS),
		Arch: runtime.GOARCH,
		IsCI: isCI(),
	}

	switch info.OS {
	case PlatformLinux:
		info.AudioSubsystem = detectLinuxAudio()
		info.HasAudioDevice = checkLinuxAudioDevices()
	case PlatformDarwin:
		info.AudioSubsystem = AudioSubsystemCoreAudio
		info.HasAudioDevice = true
	case PlatformWindows:
		info.AudioSubsystem = AudioSubsystemWASAPI
		info.HasAudioDevice = checkWindowsAudioService()
	default:
		info.AudioSubsystem = AudioSubsystemNone
	}

	if name, err := FindPlayer(runtime.GOOS, exec.LookPath); err == nil {
		info.Player = name
	}

	log.Debug("Platform detected",
		"os", info.OS,
		"audio", info.AudioSubsystem,
		"has_device", info.HasAudioDevice,
		"player", info.Player,
		"is_ci", info.IsCI)

	return info
}

func (p *PlatformInfo) String() string {
	return fmt.Sprintf("%s/%s (%s)", p.OS, p.Arch, p.AudioSubsystem)
}

func platformOf(goos string) Platform {
	switch goos {
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformUnknown
	}
}

// detectLinuxAudio prefers PulseAudio (or PipeWire's pulse shim) over ALSA.
func detectLinuxAudio() AudioSubsystem {
	if isCommandAvailable("pactl") {
		if output, err := exec.Command("pactl", "info").Output(); err == nil {
			if strings.Contains(string(output), "Server Name") {
				return AudioSubsystemPulseAudio
			}
		}
	}
	if _, err := os.Stat("/proc/asound"); err == nil {
		return AudioSubsystemALSA
	}
	if isCommandAvailable("aplay") {
		return AudioSubsystemALSA
	}
	return AudioSubsystemNone
}

func checkLinuxAudioDevices() bool {
	if entries, err := os.ReadDir("/dev/snd"); err == nil {
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), "pcm") {
				return true
			}
		}
	}
	if content, err := os.ReadFile("/proc/asound/cards"); err == nil {
		if len(content) > 0 && !strings.Contains(string(content), "no soundcards") {
			return true
		}
	}
	if isCommandAvailable("pactl") {
		if output, err := exec.Command("pactl", "list", "short", "sinks").Output(); err == nil && len(output) > 0 {
			return true
		}
	}
	return false
}

func checkWindowsAudioService() bool {
	if isCommandAvailable("sc") {
		if output, err := exec.Command("sc", "query", "AudioSrv").Output(); err == nil {
			return strings.Contains(string(output), "RUNNING")
		}
	}
	// Assume audio is available on Windows
	return true
}

func isCI() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE", "JENKINS_URL"} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

func isCommandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
