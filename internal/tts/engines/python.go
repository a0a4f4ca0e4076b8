package engines

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/download"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/proc"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/security"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
	"github.com/CodeCraftersLLC/local-voice-mcp/scripts"
	"github.com/charmbracelet/log"
)

const (
	// importCheckTimeout covers slow first imports such as torch.
	importCheckTimeout = 3 * time.Minute

	// pipInstallTimeout bounds an automatic package installation.
	pipInstallTimeout = 30 * time.Minute

	// tailLines is how much interpreter output goes into an error message.
	tailLines = 8
)

var (
	// ErrPythonNotFound is returned when no interpreter can be located.
	ErrPythonNotFound = errors.New("python interpreter not found")

	// ErrMissingPackages is returned when required modules cannot be imported.
	ErrMissingPackages = errors.New("required Python packages are not installed")
)

// asset is a model file the runner needs on disk.
type asset struct {
	name string
	url  string
}

// profile describes what distinguishes one engine from another.
type profile struct {
	engineType   tts.EngineType
	name         string
	script       string
	modules      []string
	packages     []string
	capabilities []string
	maxChars     int
	assets       []asset
}

// pythonEngine implements the parts of tts.Engine shared by every runner:
// the readiness bootstrap, the interpreter invocation and status reporting.
type pythonEngine struct {
	profile
	cfg       Config
	readiness *tts.Readiness

	mu         sync.RWMutex
	python     string
	scriptPath string
	version    string
}

func newPythonEngine(p profile, cfg Config) (*pythonEngine, error) {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, errors.New("output directory is required")
	}
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return nil, errors.New("cache directory is required")
	}
	out, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}
	cfg.OutputDir = out
	if cfg.Downloader == nil {
		cfg.Downloader = &download.Client{}
	}
	if p.maxChars <= 0 {
		p.maxChars = security.DefaultMaxTextLen
	}

	e := &pythonEngine{profile: p, cfg: cfg}
	e.readiness = tts.NewReadiness(p.name, e.bootstrap, cfg.Observers...)
	return e, nil
}

// EnsureReady runs the bootstrap once; see tts.Readiness.
func (e *pythonEngine) EnsureReady(ctx context.Context) error {
	return e.readiness.EnsureReady(ctx)
}

// Shutdown resets readiness so the next request bootstraps again.
func (e *pythonEngine) Shutdown(ctx context.Context) error {
	e.readiness.Reset()
	log.Debug("Engine shut down", "engine", e.name)
	return nil
}

func (e *pythonEngine) Type() tts.EngineType { return e.engineType }
func (e *pythonEngine) Name() string         { return e.name }
func (e *pythonEngine) MaxCharacters() int   { return e.maxChars }

// Status reports readiness without triggering a bootstrap.
func (e *pythonEngine) Status(ctx context.Context) tts.EngineStatus {
	state := e.readiness.State()

	e.mu.RLock()
	version := e.version
	e.mu.RUnlock()

	st := tts.EngineStatus{
		Ready:         state == tts.StateReady,
		State:         state.String(),
		EngineType:    e.engineType,
		EngineName:    e.name,
		Version:       version,
		Capabilities:  append([]string(nil), e.capabilities...),
		MaxCharacters: e.maxChars,
		Attempts:      e.readiness.Attempts(),
	}
	if err := e.readiness.LastError(); err != nil {
		st.LastError = tts.PublicMessage(err, e.cfg.OutputDir)
	}
	return st
}

// assetPath is where a downloaded model file lives.
func (e *pythonEngine) assetPath(name string) string {
	return filepath.Join(e.cfg.CacheDir, "models", string(e.engineType), name)
}

// bootstrap locates the interpreter, installs the runner script, verifies the
// Python packages and fetches missing model assets.
func (e *pythonEngine) bootstrap(ctx context.Context) error {
	python, err := findPython(e.cfg.Python)
	if err != nil {
		return err
	}

	script, err := e.installScript()
	if err != nil {
		return err
	}

	version, err := e.checkModules(ctx, python)
	if err != nil {
		if !e.cfg.AutoInstall {
			return err
		}
		log.Warn("Python packages missing, installing", "engine", e.name, "packages", e.packages)
		if err := e.pipInstall(ctx, python); err != nil {
			return err
		}
		if version, err = e.checkModules(ctx, python); err != nil {
			return err
		}
	}

	for _, a := range e.assets {
		if err := e.cfg.Downloader.File(ctx, a.url, e.assetPath(a.name)); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", a.name, err)
		}
	}

	e.mu.Lock()
	e.python, e.scriptPath, e.version = python, script, version
	e.mu.Unlock()
	log.Debug("Engine environment verified", "engine", e.name, "python", python, "version", version)
	return nil
}

// findPython resolves the configured interpreter, or python3 then python.
func findPython(configured string) (string, error) {
	configured = strings.TrimSpace(configured)
	if configured != "" && configured != "auto" {
		path, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrPythonNotFound, configured, err)
		}
		return path, nil
	}
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: install Python 3 or set the python option", ErrPythonNotFound)
}

func (e *pythonEngine) installScript() (string, error) {
	if e.cfg.ScriptDir != "" {
		path := filepath.Join(e.cfg.ScriptDir, e.script)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("runner script not found: %w", err)
		}
		return path, nil
	}
	return scripts.Materialize(filepath.Join(e.cfg.CacheDir, "scripts"), e.script)
}

// checkModules imports the engine's modules and returns the interpreter
// version.
func (e *pythonEngine) checkModules(ctx context.Context, python string) (string, error) {
	code := "import sys"
	if len(e.modules) > 0 {
		code = "import " + strings.Join(e.modules, ", ") + "; " + code
	}
	code += "; print('%d.%d.%d' % sys.version_info[:3])"

	res, err := proc.Run(ctx, proc.Command{
		Path:    python,
		Args:    []string{"-c", code},
		Timeout: importCheckTimeout,
	})
	if err != nil {
		if errors.Is(err, proc.ErrSpawn) {
			return "", fmt.Errorf("%w: %w", ErrPythonNotFound, err)
		}
		return "", fmt.Errorf("%w (%s): %s", ErrMissingPackages, strings.Join(e.packages, ", "), res.Tail(1))
	}
	return lastLine(res.Stdout), nil
}

func (e *pythonEngine) pipInstall(ctx context.Context, python string) error {
	args := append([]string{"-m", "pip", "install", "--disable-pip-version-check"}, e.packages...)
	res, err := proc.Run(ctx, proc.Command{
		Path:    python,
		Args:    args,
		Timeout: pipInstallTimeout,
	})
	if err != nil {
		return fmt.Errorf("pip install %s failed: %s: %w", strings.Join(e.packages, " "), res.Tail(tailLines), err)
	}
	log.Info("Installed Python packages", "engine", e.name, "packages", e.packages)
	return nil
}

// run spawns one runner process for text and returns the generated file.
// Success requires both a zero exit status and an existing output file.
func (e *pythonEngine) run(ctx context.Context, text string, extra []string) (*tts.Synthesis, error) {
	if err := e.EnsureReady(ctx); err != nil {
		return nil, err
	}

	sanitized, err := security.SanitizeTextArg(text, e.maxChars)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "invalid text", err)
	}

	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeInternal, "failed to create output directory", err)
	}
	out := filepath.Join(e.cfg.OutputDir, tts.ArtifactName(e.engineType))

	e.mu.RLock()
	python, script := e.python, e.scriptPath
	e.mu.RUnlock()

	args := append([]string{script, "--text=" + sanitized, "--output=" + out}, extra...)
	res, err := proc.Run(ctx, proc.Command{
		Path:    python,
		Args:    args,
		Dir:     filepath.Dir(script),
		Env:     []string{"PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8"},
		Timeout: e.cfg.Timeout,
	})
	if err != nil {
		_ = os.Remove(out)
		return nil, e.classify(err, res)
	}

	info, err := os.Stat(out)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		_ = os.Remove(out)
		detail := "no audio file was produced"
		if tail := res.Tail(tailLines); tail != "" {
			detail += ": " + tail
		}
		return nil, tts.SynthesisFailedError(detail, nil)
	}

	log.Debug("Synthesis complete", "engine", e.name, "duration", res.Duration, "bytes", info.Size())
	return &tts.Synthesis{
		Path:     out,
		Engine:   e.engineType,
		Duration: res.Duration,
	}, nil
}

func (e *pythonEngine) classify(err error, res *proc.Result) error {
	switch {
	case errors.Is(err, proc.ErrSpawn):
		return tts.NewTTSError(tts.ErrorCodeSpawnFailed, "failed to start the "+e.name+" interpreter", err)
	case errors.Is(err, proc.ErrTimeout):
		return tts.NewTTSError(tts.ErrorCodeTimeout, "synthesis timed out", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return tts.SynthesisFailedError(res.Tail(tailLines), err)
	}
}

// resolveReference picks the reference voice for a cloning engine. An
// unusable caller path falls back to the configured default, and an unusable
// default falls back to the model's built-in voice (empty result).
func resolveReference(requested, configured string) (string, []string) {
	var warnings []string

	if requested != "" {
		v, err := security.ValidateOpenPath(requested)
		if err == nil {
			return v.Path, nil
		}
		log.Warn("Reference audio rejected, using default voice", "error", err)
		warnings = append(warnings, fmt.Sprintf("reference audio ignored (%s); the default voice was used", reason(err)))
	}

	if configured != "" {
		v, err := security.ValidateOpenPath(configured)
		if err == nil {
			return v.Path, warnings
		}
		log.Warn("Configured reference audio is unusable, using built-in voice", "error", err)
	}
	return "", warnings
}

// reason strips the path from a validation error.
func reason(err error) string {
	var pe *security.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return "invalid path"
}

// ignoredOptions lists warnings for set options the engine does not honor.
func ignoredOptions(engine string, o tts.Options, supported ...string) []string {
	set := map[string]bool{
		"referenceAudio": o.ReferenceAudio != "",
		"speed":          o.Speed != nil,
		"language":       o.Language != "",
		"voice":          o.Voice != "",
		"exaggeration":   o.Exaggeration != nil,
		"cfgWeight":      o.CFGWeight != nil,
		"model":          o.Model != "",
	}
	for _, name := range supported {
		delete(set, name)
	}

	var warnings []string
	for _, name := range []string{"referenceAudio", "speed", "language", "voice", "exaggeration", "cfgWeight", "model"} {
		if set[name] {
			warnings = append(warnings, fmt.Sprintf("%s is not supported by %s and was ignored", name, engine))
		}
	}
	return warnings
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
