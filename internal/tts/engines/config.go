package engines

import (
	"fmt"
	"time"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/download"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
	env "github.com/caarlos0/env/v11"
)

// Config holds the settings shared by every engine.
type Config struct {
	// Python is the interpreter to use. Empty or "auto" searches PATH.
	Python string

	// OutputDir receives generated audio files.
	OutputDir string

	// CacheDir stores runner scripts and downloaded model assets.
	CacheDir string

	// ScriptDir overrides the embedded runner scripts when set.
	ScriptDir string

	// AutoInstall runs pip for missing Python packages during bootstrap.
	AutoInstall bool

	// Timeout bounds one synthesis process. Zero means no limit.
	Timeout time.Duration

	// Defaults are the environment-level option defaults.
	Defaults Defaults

	// Downloader fetches model assets.
	Downloader *download.Client

	// Observers are told about every bootstrap attempt.
	Observers []tts.BootstrapObserver
}

// Defaults are per-engine option defaults read from the environment.
type Defaults struct {
	Chatterbox ChatterboxDefaults `envPrefix:"CHATTERBOX_"`
	Kokoro     KokoroDefaults     `envPrefix:"KOKORO_"`
	Coqui      CoquiDefaults      `envPrefix:"COQUI_"`
}

// Built-in values for the float options. The environment fields are
// pointers so that an explicit zero is told apart from an unset variable.
const (
	builtinExaggeration = 0.2
	builtinCFGWeight    = 1.0
	builtinSpeed        = 1.0
)

// ChatterboxDefaults configures the chatterbox engine.
type ChatterboxDefaults struct {
	ReferenceAudio string   `env:"REFERENCE_AUDIO"`
	Exaggeration   *float64 `env:"EXAGGERATION"`
	CFGWeight      *float64 `env:"CFG_WEIGHT"`
	MaxCharacters  int      `env:"MAX_CHARACTERS" envDefault:"2000"`
}

// KokoroDefaults configures the kokoro engine.
type KokoroDefaults struct {
	Speed         *float64 `env:"SPEED"`
	Language      string   `env:"LANGUAGE" envDefault:"en-us"`
	Voice         string   `env:"VOICE" envDefault:"af_sarah"`
	MaxCharacters int      `env:"MAX_CHARACTERS" envDefault:"2000"`
	AssetBaseURL  string   `env:"ASSET_BASE_URL" envDefault:"https://github.com/nazdridoy/kokoro-tts/releases/download/v1.0.0/"`
}

// CoquiDefaults configures the coqui engine.
type CoquiDefaults struct {
	Model         string   `env:"MODEL" envDefault:"tts_models/en/ljspeech/tacotron2-DDC"`
	Speed         *float64 `env:"SPEED"`
	MaxCharacters int      `env:"MAX_CHARACTERS" envDefault:"2000"`
}

// LoadDefaults parses engine defaults from the environment.
func LoadDefaults() (Defaults, error) {
	d, err := env.ParseAs[Defaults]()
	if err != nil {
		return Defaults{}, fmt.Errorf("failed to parse engine defaults: %w", err)
	}
	return d, nil
}

// BuiltinDefaults returns the defaults used when nothing is set in the
// environment.
func BuiltinDefaults() Defaults {
	return Defaults{
		Chatterbox: ChatterboxDefaults{
			Exaggeration:  tts.Float(builtinExaggeration),
			CFGWeight:     tts.Float(builtinCFGWeight),
			MaxCharacters: 2000,
		},
		Kokoro: KokoroDefaults{
			Speed:         tts.Float(builtinSpeed),
			Language:      "en-us",
			Voice:         "af_sarah",
			MaxCharacters: 2000,
			AssetBaseURL:  "https://github.com/nazdridoy/kokoro-tts/releases/download/v1.0.0/",
		},
		Coqui: CoquiDefaults{
			Model:         "tts_models/en/ljspeech/tacotron2-DDC",
			Speed:         tts.Float(builtinSpeed),
			MaxCharacters: 2000,
		},
	}
}
