package tts

import (
	"context"
)

// Engine defines the contract for a synthesis backend that drives one
// external interpreter script.
type Engine interface {
	// EnsureReady runs the one-time bootstrap. It is idempotent and safe for
	// concurrent use; a failed bootstrap is retried by the next call.
	EnsureReady(ctx context.Context) error

	// Synthesize writes a new audio file into the engine's output directory
	// and returns its absolute path.
	Synthesize(ctx context.Context, text string, opts Options) (*Synthesis, error)

	// Status reports readiness and capabilities.
	Status(ctx context.Context) EngineStatus

	// CacheKey renders opts after applying the environment and built-in
	// defaults. It reports false when the result must not be cached.
	CacheKey(opts Options) (string, bool)

	// ValidateOptions rejects out-of-range or malformed options before any
	// process is spawned.
	ValidateOptions(opts Options) error

	// Shutdown resets readiness so the next call bootstraps again.
	Shutdown(ctx context.Context) error

	Type() EngineType
	Name() string
	MaxCharacters() int
}

// Factory builds an engine. It must not perform any bootstrap work.
type Factory func() (Engine, error)
