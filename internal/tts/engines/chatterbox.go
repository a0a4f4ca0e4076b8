package engines

import (
	"context"
	"strings"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
	"github.com/charmbracelet/log"
)

var (
	exaggerationRange = tts.Range{Min: 0, Max: 2}
	cfgWeightRange    = tts.Range{Min: 0, Max: 1}
)

// ChatterboxEngine clones a voice from a reference recording. Without one it
// speaks with the model's built-in voice.
type ChatterboxEngine struct {
	*pythonEngine
	defaults ChatterboxDefaults
}

var _ tts.Engine = (*ChatterboxEngine)(nil)

// NewChatterbox creates a chatterbox engine. No bootstrap work is done.
func NewChatterbox(cfg Config) (*ChatterboxEngine, error) {
	d := cfg.Defaults.Chatterbox
	if d.Exaggeration != nil && !exaggerationRange.Contains(*d.Exaggeration) {
		log.Warn("Ignoring out of range CHATTERBOX_EXAGGERATION", "value", *d.Exaggeration, "range", exaggerationRange)
		d.Exaggeration = nil
	}
	if d.CFGWeight != nil && !cfgWeightRange.Contains(*d.CFGWeight) {
		log.Warn("Ignoring out of range CHATTERBOX_CFG_WEIGHT", "value", *d.CFGWeight, "range", cfgWeightRange)
		d.CFGWeight = nil
	}

	base, err := newPythonEngine(profile{
		engineType: tts.EngineChatterbox,
		name:       "Chatterbox TTS",
		script:     "chatterbox_runner.py",
		modules:    []string{"chatterbox", "torchaudio"},
		packages:   []string{"chatterbox-tts", "torchaudio"},
		capabilities: []string{
			tts.CapabilityVoiceCloning,
			tts.CapabilityEmotion,
			tts.CapabilityOffline,
		},
		maxChars: d.MaxCharacters,
	}, cfg)
	if err != nil {
		return nil, err
	}
	return &ChatterboxEngine{pythonEngine: base, defaults: d}, nil
}

// ValidateOptions checks the emotion and pacing controls.
func (e *ChatterboxEngine) ValidateOptions(opts tts.Options) error {
	if err := tts.CheckRange("exaggeration", opts.Exaggeration, exaggerationRange); err != nil {
		return err
	}
	return tts.CheckRange("cfgWeight", opts.CFGWeight, cfgWeightRange)
}

// Synthesize renders text. An unusable reference recording is not an error:
// the default voice is used and a warning is attached to the result.
func (e *ChatterboxEngine) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	// Checked again for callers that drive the engine without a Selector.
	if err := tts.ValidateText(text, e.maxChars); err != nil {
		return nil, err
	}
	if err := e.ValidateOptions(opts); err != nil {
		return nil, err
	}

	ref, warnings := resolveReference(opts.ReferenceAudio, e.defaults.ReferenceAudio)
	warnings = append(warnings, ignoredOptions(e.name, opts, "referenceAudio", "exaggeration", "cfgWeight")...)

	r := e.resolve(opts)
	args := []string{
		"--exaggeration=" + formatFloat(*r.Exaggeration),
		"--cfg-weight=" + formatFloat(*r.CFGWeight),
	}
	if ref != "" {
		args = append(args, "--reference-audio="+ref)
	}

	res, err := e.run(ctx, text, args)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, warnings...)
	return res, nil
}

// CacheKey keys the resolved emotion controls. Any reference recording, from
// the call or CHATTERBOX_REFERENCE_AUDIO, makes the result uncacheable
// because the file behind the path can change.
func (e *ChatterboxEngine) CacheKey(opts tts.Options) (string, bool) {
	if strings.TrimSpace(opts.ReferenceAudio) != "" || strings.TrimSpace(e.defaults.ReferenceAudio) != "" {
		return "", false
	}
	return e.resolve(opts).Key(), true
}

func (e *ChatterboxEngine) resolve(opts tts.Options) tts.Options {
	return tts.Options{
		Exaggeration: tts.Float(tts.ResolveFloat(opts.Exaggeration, e.defaults.Exaggeration, builtinExaggeration)),
		CFGWeight:    tts.Float(tts.ResolveFloat(opts.CFGWeight, e.defaults.CFGWeight, builtinCFGWeight)),
	}
}
