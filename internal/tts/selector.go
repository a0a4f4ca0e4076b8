package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// engineAliases maps accepted spellings to engine kinds.
var engineAliases = map[string]EngineType{
	"chatterbox":     EngineChatterbox,
	"chatter":        EngineChatterbox,
	"chatterbox-tts": EngineChatterbox,
	"kokoro":         EngineKokoro,
	"kokoro-onnx":    EngineKokoro,
	"coqui":          EngineCoqui,
	"coqui-tts":      EngineCoqui,
	"xtts":           EngineCoqui,
}

// ParseEngineType normalizes an engine name. Names are case-insensitive and
// surrounding whitespace is ignored.
func ParseEngineType(name string) (EngineType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return EngineNone, fmt.Errorf("%w: no engine name given", ErrUnknownEngine)
	}
	if t, ok := engineAliases[key]; ok {
		return t, nil
	}
	return EngineNone, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownEngine, name, supportedEngines())
}

func supportedEngines() string {
	names := make([]string, len(KnownEngines))
	for i, t := range KnownEngines {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Selector owns the single engine instance of the process. Every transport
// shares it, so there is exactly one bootstrap per process.
type Selector struct {
	engine    Engine
	requested string
	fellBack  bool

	prewarm sync.Once
}

// NewSelector resolves name to an engine and constructs it. An empty or
// unrecognized name selects fallback; the unrecognized case is logged as a
// warning. Construction does no bootstrap work.
func NewSelector(name string, factories map[EngineType]Factory, fallback EngineType) (*Selector, error) {
	t, err := ParseEngineType(name)
	fellBack := false
	if err != nil {
		if strings.TrimSpace(name) != "" {
			log.Warn("Unknown TTS engine, falling back", "requested", name, "engine", fallback)
			fellBack = true
		} else {
			log.Debug("No TTS engine configured, using default", "engine", fallback)
		}
		t = fallback
	}

	factory, ok := factories[t]
	if !ok || factory == nil {
		return nil, fmt.Errorf("%w: %s has no registered implementation", ErrUnknownEngine, t)
	}

	engine, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", t, err)
	}

	log.Debug("TTS engine selected", "engine", engine.Name(), "type", engine.Type())
	return &Selector{
		engine:    engine,
		requested: name,
		fellBack:  fellBack,
	}, nil
}

// Synthesize validates the text and options, waits for the engine to become
// ready and delegates. Invalid input is rejected before any bootstrap or
// subprocess work starts.
func (s *Selector) Synthesize(ctx context.Context, text string, opts Options) (*Synthesis, error) {
	if err := ValidateText(text, s.engine.MaxCharacters()); err != nil {
		return nil, err
	}
	if err := s.engine.ValidateOptions(opts); err != nil {
		return nil, err
	}
	if err := s.engine.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return s.engine.Synthesize(ctx, text, opts)
}

// EnsureReady waits for the shared bootstrap.
func (s *Selector) EnsureReady(ctx context.Context) error {
	return s.engine.EnsureReady(ctx)
}

// Prewarm starts the bootstrap in the background. Only the first call has an
// effect; failures are logged and retried by the next request.
func (s *Selector) Prewarm(ctx context.Context) {
	s.prewarm.Do(func() {
		go func() {
			if err := s.engine.EnsureReady(ctx); err != nil {
				log.Warn("Engine prewarm failed, will retry on first request", "engine", s.engine.Name(), "error", err)
			}
		}()
	})
}

// Status reports the engine status.
func (s *Selector) Status(ctx context.Context) EngineStatus {
	return s.engine.Status(ctx)
}

// ValidateOptions runs the engine's option checks.
func (s *Selector) ValidateOptions(opts Options) error {
	return s.engine.ValidateOptions(opts)
}

// CacheKey returns the engine's key for the resolved options.
func (s *Selector) CacheKey(opts Options) (string, bool) {
	return s.engine.CacheKey(opts)
}

// Engine returns the selected engine.
func (s *Selector) Engine() Engine { return s.engine }

// EngineType returns the selected engine kind.
func (s *Selector) EngineType() EngineType { return s.engine.Type() }

// EngineName returns the selected engine's display name.
func (s *Selector) EngineName() string { return s.engine.Name() }

// MaxCharacters returns the selected engine's text ceiling.
func (s *Selector) MaxCharacters() int { return s.engine.MaxCharacters() }

// FellBack reports whether the configured name was unrecognized.
func (s *Selector) FellBack() bool { return s.fellBack }

// Shutdown resets the engine's readiness.
func (s *Selector) Shutdown(ctx context.Context) error {
	return s.engine.Shutdown(ctx)
}
