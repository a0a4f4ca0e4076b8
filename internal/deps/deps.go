// Package deps checks the host for what the selected engine needs: a Python
// interpreter, its packages, model assets and an audio player.
package deps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/playback"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/proc"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts/engines"
)

const (
	versionTimeout = 10 * time.Second
	importTimeout  = 2 * time.Minute
)

var defaultLookPath playback.LookPathFunc = exec.LookPath

// ErrMissing is returned by Check when a required dependency is absent.
var ErrMissing = errors.New("missing required dependencies")

// Status represents the status of one dependency.
type Status struct {
	Name         string `json:"name"`
	Required     bool   `json:"required"`
	Installed    bool   `json:"installed"`
	Version      string `json:"version,omitempty"`
	Path         string `json:"path,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Checker checks a single dependency.
type Checker interface {
	Check(ctx context.Context) Status
}

// Report holds the results of every checker, in order.
type Report struct {
	Engine  string
	Results []Status
}

// OK reports whether every required dependency is installed.
func (r *Report) OK() bool {
	for _, s := range r.Results {
		if s.Required && !s.Installed {
			return false
		}
	}
	return true
}

// Run executes checkers in order.
func Run(ctx context.Context, engine string, checkers ...Checker) (*Report, error) {
	r := &Report{Engine: engine}
	for _, c := range checkers {
		s := c.Check(ctx)
		r.Results = append(r.Results, s)
		if s.Required && !s.Installed {
			log.Debug("Missing required dependency", "name", s.Name)
		} else if s.Installed {
			log.Debug("Dependency found", "name", s.Name, "version", s.Version, "path", s.Path)
		}
	}
	if !r.OK() {
		return r, ErrMissing
	}
	return r, nil
}

// Check runs every check for an engine's requirements.
func Check(ctx context.Context, req engines.Requirements) (*Report, error) {
	python := &PythonChecker{Configured: req.Python}
	checkers := []Checker{python}
	for _, m := range req.Modules {
		checkers = append(checkers, &ModuleChecker{Python: python, Module: m, Packages: req.Packages})
	}
	for _, a := range req.Assets {
		checkers = append(checkers, &AssetChecker{Path: a})
	}
	checkers = append(checkers, &PlayerChecker{GOOS: runtime.GOOS})
	return Run(ctx, string(req.Engine), checkers...)
}

// PythonChecker locates the interpreter. Later checkers reuse its result.
type PythonChecker struct {
	Configured string
	path       string
}

// Check implements Checker.
func (c *PythonChecker) Check(ctx context.Context) Status {
	s := Status{Name: "python", Required: true}
	path, err := engines.FindPython(c.Configured)
	if err != nil {
		s.Instructions = pythonInstructions(runtime.GOOS)
		return s
	}
	c.path = path
	s.Installed = true
	s.Path = path

	res, err := proc.Run(ctx, proc.Command{Path: path, Args: []string{"--version"}, Timeout: versionTimeout})
	if err == nil {
		// Python 2 printed the version on stderr.
		s.Version = strings.TrimPrefix(strings.TrimSpace(res.Stdout+res.Stderr), "Python ")
	}
	return s
}

// ModuleChecker verifies that one Python module imports.
type ModuleChecker struct {
	Python   *PythonChecker
	Module   string
	Packages []string
}

// Check implements Checker.
func (c *ModuleChecker) Check(ctx context.Context) Status {
	s := Status{Name: c.Module, Required: true}
	if c.Python == nil || c.Python.path == "" {
		s.Instructions = "requires a Python interpreter"
		return s
	}
	_, err := proc.Run(ctx, proc.Command{
		Path:    c.Python.path,
		Args:    []string{"-c", "import " + c.Module},
		Timeout: importTimeout,
	})
	if err != nil {
		s.Instructions = fmt.Sprintf("Install with: %s -m pip install %s\n    Or enable auto_install and let the server install it", c.Python.path, strings.Join(c.Packages, " "))
		return s
	}
	s.Installed = true
	return s
}

// AssetChecker checks that a model file is present. Missing assets are
// downloaded by the engine bootstrap, so they are optional.
type AssetChecker struct {
	Path string
}

// Check implements Checker.
func (c *AssetChecker) Check(context.Context) Status {
	s := Status{Name: filepath.Base(c.Path), Path: c.Path}
	info, err := os.Stat(c.Path)
	if err != nil || !info.Mode().IsRegular() {
		s.Instructions = "Downloaded automatically on first synthesis"
		return s
	}
	s.Installed = true
	s.Version = fmt.Sprintf("%d bytes", info.Size())
	return s
}

// PlayerChecker looks for an audio player. Synthesis works without one.
type PlayerChecker struct {
	GOOS     string
	LookPath playback.LookPathFunc
}

// Check implements Checker.
func (c *PlayerChecker) Check(context.Context) Status {
	s := Status{Name: "audio player"}
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = defaultLookPath
	}
	name, err := playback.FindPlayer(c.GOOS, lookPath)
	if err != nil {
		s.Instructions = playerInstructions(c.GOOS)
		return s
	}
	s.Installed = true
	s.Version = name
	if p, err := lookPath(name); err == nil {
		s.Path = p
	}
	return s
}

func pythonInstructions(goos string) string {
	switch goos {
	case "darwin":
		return "Install with: brew install python@3.11"
	case "linux":
		return "Install with your package manager: python3 python3-pip"
	case "windows":
		return "Download from: https://www.python.org/downloads/\n    Enable \"Add python.exe to PATH\""
	default:
		return "Install Python 3.10 or newer"
	}
}

func playerInstructions(goos string) string {
	switch goos {
	case "linux":
		distro := detectLinuxDistro()
		switch {
		case strings.Contains(distro, "debian"), strings.Contains(distro, "ubuntu"):
			return "Install with: sudo apt-get install pulseaudio-utils (or ffmpeg, alsa-utils)"
		case strings.Contains(distro, "fedora"), strings.Contains(distro, "rhel"), strings.Contains(distro, "centos"):
			return "Install with: sudo dnf install pulseaudio-utils (or ffmpeg, alsa-utils)"
		case strings.Contains(distro, "arch"):
			return "Install with: sudo pacman -S libpulse (or ffmpeg, alsa-utils)"
		}
		return "Install paplay, ffplay or aplay with your package manager"
	case "darwin":
		return "afplay ships with macOS; check your PATH"
	case "windows":
		return "PowerShell is required for playback"
	default:
		return "No supported audio player for this platform"
	}
}

// detectLinuxDistro attempts to detect the Linux distribution
func detectLinuxDistro() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "unknown"
	}
	content := strings.ToLower(string(data))
	for _, d := range []string{"ubuntu", "debian", "fedora", "arch", "rhel", "centos"} {
		if strings.Contains(content, d) {
			return d
		}
	}
	return "unknown"
}

