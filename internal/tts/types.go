package tts

import (
	"time"
)

// EngineType represents the TTS engine selection
type EngineType string

const (
	// EngineChatterbox is the Chatterbox voice-cloning engine
	EngineChatterbox EngineType = "chatterbox"

	// EngineKokoro is the Kokoro ONNX engine
	EngineKokoro EngineType = "kokoro"

	// EngineCoqui is the Coqui TTS engine
	EngineCoqui EngineType = "coqui"

	// EngineNone represents no engine selected
	EngineNone EngineType = ""
)

// DefaultEngine is used when the configured engine name is not recognized.
const DefaultEngine = EngineChatterbox

// KnownEngines lists every engine kind in a stable order.
var KnownEngines = []EngineType{EngineChatterbox, EngineKokoro, EngineCoqui}

// ReadinessState is the bootstrap state of an engine
type ReadinessState int

const (
	// StateUninitialized means no bootstrap has been attempted yet
	StateUninitialized ReadinessState = iota

	// StateInitializing means a bootstrap is in flight
	StateInitializing

	// StateReady means the engine can synthesize
	StateReady

	// StateFailed means the last bootstrap failed; the next call retries
	StateFailed
)

// String returns the string representation of the state
func (s ReadinessState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Capability tags advertised in EngineStatus.
const (
	CapabilityVoiceCloning = "voice-cloning"
	CapabilitySpeed        = "speed"
	CapabilityLanguage     = "language"
	CapabilityVoiceSelect  = "voice-selection"
	CapabilityEmotion      = "emotion-control"
	CapabilityModelSelect  = "model-selection"
	CapabilityOffline      = "offline"
)

// Options is the union of per-request options accepted by every transport.
// Each engine reads the fields it understands and rejects out-of-range values
// in ValidateOptions. Nil pointers and empty strings mean "not set".
type Options struct {
	// ReferenceAudio is a voice sample for cloning engines
	ReferenceAudio string `json:"referenceAudio,omitempty"`

	// Speed is a speech rate multiplier
	Speed *float64 `json:"speed,omitempty"`

	// Language is a language code such as "en-us"
	Language string `json:"language,omitempty"`

	// Voice is an engine-specific voice id
	Voice string `json:"voice,omitempty"`

	// Exaggeration controls emotional intensity
	Exaggeration *float64 `json:"exaggeration,omitempty"`

	// CFGWeight controls pacing and adherence to the reference voice
	CFGWeight *float64 `json:"cfgWeight,omitempty"`

	// Model selects a model for engines that host several
	Model string `json:"model,omitempty"`

	// StripMarkdown converts markdown input to plain speech text
	StripMarkdown *bool `json:"stripMarkdown,omitempty"`
}

// Synthesis describes a successful synthesis call.
type Synthesis struct {
	// Path is the absolute path of the generated artifact
	Path string

	// Engine that produced the artifact
	Engine EngineType

	// Warnings lists non-fatal problems, such as a rejected reference voice
	Warnings []string

	// Duration is the wall time spent in the engine
	Duration time.Duration

	// Cached is true when the audio came from the synthesis cache
	Cached bool
}

// EngineStatus is produced on demand and never persisted.
type EngineStatus struct {
	Ready         bool       `json:"ready"`
	State         string     `json:"state"`
	EngineType    EngineType `json:"engineType"`
	EngineName    string     `json:"engineName"`
	Version       string     `json:"version,omitempty"`
	Capabilities  []string   `json:"capabilities"`
	MaxCharacters int        `json:"maxCharacters"`
	Attempts      int        `json:"bootstrapAttempts"`
	LastError     string     `json:"lastError,omitempty"`
}
