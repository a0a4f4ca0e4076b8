package engines

import (
	"context"
	"strings"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/security"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
	"github.com/charmbracelet/log"
)

// Kokoro model files.
const (
	kokoroModel  = "kokoro-v1.0.onnx"
	kokoroVoices = "voices-v1.0.bin"
)

// KokoroEngine is a small multilingual ONNX model with a fixed voice set.
type KokoroEngine struct {
	*pythonEngine
	defaults KokoroDefaults
}

var _ tts.Engine = (*KokoroEngine)(nil)

// NewKokoro creates a kokoro engine. The model files are downloaded into the
// cache directory on first use.
func NewKokoro(cfg Config) (*KokoroEngine, error) {
	d := cfg.Defaults.Kokoro
	if d.Speed != nil && !tts.SpeedRange.Contains(*d.Speed) {
		log.Warn("Ignoring out of range KOKORO_SPEED", "value", *d.Speed, "range", tts.SpeedRange)
		d.Speed = nil
	}
	if _, err := security.SanitizeArg(d.Language, security.ArgOptions{AllowEmpty: true}); err != nil {
		log.Warn("Ignoring invalid KOKORO_LANGUAGE", "error", err)
		d.Language = ""
	}
	if _, err := security.SanitizeArg(d.Voice, security.ArgOptions{AllowEmpty: true}); err != nil {
		log.Warn("Ignoring invalid KOKORO_VOICE", "error", err)
		d.Voice = ""
	}

	base := d.AssetBaseURL
	if base == "" {
		base = BuiltinDefaults().Kokoro.AssetBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	engine, err := newPythonEngine(profile{
		engineType: tts.EngineKokoro,
		name:       "Kokoro TTS",
		script:     "kokoro_runner.py",
		modules:    []string{"kokoro_onnx", "soundfile", "numpy"},
		packages:   []string{"kokoro-onnx", "soundfile", "numpy"},
		capabilities: []string{
			tts.CapabilitySpeed,
			tts.CapabilityLanguage,
			tts.CapabilityVoiceSelect,
			tts.CapabilityOffline,
		},
		maxChars: d.MaxCharacters,
		assets: []asset{
			{name: kokoroModel, url: base + kokoroModel},
			{name: kokoroVoices, url: base + kokoroVoices},
		},
	}, cfg)
	if err != nil {
		return nil, err
	}
	return &KokoroEngine{pythonEngine: engine, defaults: d}, nil
}

// ValidateOptions checks speed and the language and voice identifiers.
func (e *KokoroEngine) ValidateOptions(opts tts.Options) error {
	if err := tts.CheckSpeed(opts.Speed); err != nil {
		return err
	}
	if _, err := security.SanitizeArg(opts.Language, security.ArgOptions{AllowEmpty: true, MaxLen: 16}); err != nil {
		return tts.InvalidOptionError("invalid language: %v", err)
	}
	if _, err := security.SanitizeArg(opts.Voice, security.ArgOptions{AllowEmpty: true, MaxLen: 64}); err != nil {
		return tts.InvalidOptionError("invalid voice: %v", err)
	}
	return nil
}

// Synthesize renders text with the selected voice.
func (e *KokoroEngine) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	// Checked again for callers that drive the engine without a Selector.
	if err := tts.ValidateText(text, e.maxChars); err != nil {
		return nil, err
	}
	if err := e.ValidateOptions(opts); err != nil {
		return nil, err
	}

	r := e.resolve(opts)
	args := []string{
		"--speed=" + formatFloat(*r.Speed),
		"--lang=" + r.Language,
		"--voice=" + r.Voice,
		"--model=" + e.assetPath(kokoroModel),
		"--voices=" + e.assetPath(kokoroVoices),
	}

	res, err := e.run(ctx, text, args)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, ignoredOptions(e.name, opts, "speed", "language", "voice")...)
	return res, nil
}

// CacheKey keys the resolved speed, language and voice.
func (e *KokoroEngine) CacheKey(opts tts.Options) (string, bool) {
	return e.resolve(opts).Key(), true
}

func (e *KokoroEngine) resolve(opts tts.Options) tts.Options {
	builtin := BuiltinDefaults().Kokoro
	return tts.Options{
		Speed:    tts.Float(tts.ResolveFloat(opts.Speed, e.defaults.Speed, builtinSpeed)),
		Language: strings.ToLower(tts.ResolveString(opts.Language, e.defaults.Language, builtin.Language)),
		Voice:    tts.ResolveString(opts.Voice, e.defaults.Voice, builtin.Voice),
	}
}
