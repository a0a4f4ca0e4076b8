package engines

import (
	"context"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/security"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
	"github.com/charmbracelet/log"
)

var modelArg = security.ArgOptions{AllowEmpty: true, AllowSlash: true, MaxLen: 128}

// CoquiEngine runs any model from the Coqui TTS catalog.
type CoquiEngine struct {
	*pythonEngine
	defaults CoquiDefaults
}

var _ tts.Engine = (*CoquiEngine)(nil)

// NewCoqui creates a coqui engine.
func NewCoqui(cfg Config) (*CoquiEngine, error) {
	d := cfg.Defaults.Coqui
	if d.Speed != nil && !tts.SpeedRange.Contains(*d.Speed) {
		log.Warn("Ignoring out of range COQUI_SPEED", "value", *d.Speed, "range", tts.SpeedRange)
		d.Speed = nil
	}
	if _, err := security.SanitizeArg(d.Model, modelArg); err != nil {
		log.Warn("Ignoring invalid COQUI_MODEL", "error", err)
		d.Model = ""
	}

	base, err := newPythonEngine(profile{
		engineType: tts.EngineCoqui,
		name:       "Coqui TTS",
		script:     "coqui_runner.py",
		modules:    []string{"TTS"},
		packages:   []string{"coqui-tts"},
		capabilities: []string{
			tts.CapabilitySpeed,
			tts.CapabilityModelSelect,
			tts.CapabilityOffline,
		},
		maxChars: d.MaxCharacters,
	}, cfg)
	if err != nil {
		return nil, err
	}
	return &CoquiEngine{pythonEngine: base, defaults: d}, nil
}

// ValidateOptions checks speed and the model name.
func (e *CoquiEngine) ValidateOptions(opts tts.Options) error {
	if err := tts.CheckSpeed(opts.Speed); err != nil {
		return err
	}
	if _, err := security.SanitizeArg(opts.Model, modelArg); err != nil {
		return tts.InvalidOptionError("invalid model: %v", err)
	}
	return nil
}

// Synthesize renders text with the selected model.
func (e *CoquiEngine) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	// Checked again for callers that drive the engine without a Selector.
	if err := tts.ValidateText(text, e.maxChars); err != nil {
		return nil, err
	}
	if err := e.ValidateOptions(opts); err != nil {
		return nil, err
	}

	r := e.resolve(opts)
	args := []string{
		"--model=" + r.Model,
		"--speed=" + formatFloat(*r.Speed),
	}

	res, err := e.run(ctx, text, args)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, ignoredOptions(e.name, opts, "model", "speed")...)
	return res, nil
}

// CacheKey keys the resolved model and speed.
func (e *CoquiEngine) CacheKey(opts tts.Options) (string, bool) {
	return e.resolve(opts).Key(), true
}

func (e *CoquiEngine) resolve(opts tts.Options) tts.Options {
	return tts.Options{
		Model: tts.ResolveString(opts.Model, e.defaults.Model, BuiltinDefaults().Coqui.Model),
		Speed: tts.Float(tts.ResolveFloat(opts.Speed, e.defaults.Speed, builtinSpeed)),
	}
}
