// Package orchestrator runs one synthesis request end to end: validate the
// input, synthesize, confine the artifact, hand it to the transport and
// remove it afterwards.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/cache"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/metrics"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/security"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/textprep"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

// Defaults for Config.
const (
	DefaultTimeout       = 5 * time.Minute
	DefaultMaxConcurrent = 2
)

// Synthesizer is the engine side of the pipeline. *tts.Selector satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error)
	CacheKey(opts tts.Options) (string, bool)
	MaxCharacters() int
	EngineType() tts.EngineType
}

// Config holds orchestrator settings.
type Config struct {
	// OutputDir is the only directory artifacts may live in.
	OutputDir string

	// Timeout bounds the synthesis step, including time spent waiting for a
	// worker and for the engine bootstrap.
	Timeout time.Duration

	// MaxConcurrent bounds simultaneous synthesis subprocesses.
	MaxConcurrent int

	// StripMarkdown is the default for requests that do not say.
	StripMarkdown bool

	// Cache is optional.
	Cache *cache.AudioCache
}

// Request is one synthesis request from a transport.
type Request struct {
	ID      string
	Text    string
	Options tts.Options

	// KeepArtifact leaves the file in place after a successful delivery.
	KeepArtifact bool
}

// Artifact is a confined, validated audio file handed to Deliver.
type Artifact struct {
	Path     string
	Size     int64
	Engine   tts.EngineType
	Warnings []string
	Cached   bool
	Duration time.Duration
}

// Deliver hands the artifact to the caller. The file is removed once it
// returns, unless the request keeps it.
type Deliver func(ctx context.Context, a Artifact) error

// Outcome describes a finished request. It is returned on failure too.
type Outcome struct {
	RequestID  string
	State      RequestState
	TextLength int
	Artifact   Artifact
	// Retained is true when the artifact was kept on disk.
	Retained bool
}

// Service is the request orchestrator shared by every transport.
type Service struct {
	synth     Synthesizer
	cfg       Config
	outputDir string
	pool      *ants.Pool
	stripper  *textprep.Stripper
}

// New creates a Service and its worker pool.
func New(synth Synthesizer, cfg Config) (*Service, error) {
	if synth == nil {
		return nil, errors.New("orchestrator: no synthesizer")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("orchestrator: output directory is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	pool, err := ants.NewPool(cfg.MaxConcurrent, ants.WithPanicHandler(func(p any) {
		log.Error("Panic in synthesis worker", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Service{
		synth:     synth,
		cfg:       cfg,
		outputDir: outputDir,
		pool:      pool,
		stripper:  textprep.New(),
	}, nil
}

// OutputDir returns the absolute artifact directory.
func (s *Service) OutputDir() string { return s.outputDir }

// PublicMessage renders err for a caller.
func (s *Service) PublicMessage(err error) string {
	return tts.PublicMessage(err, s.outputDir)
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// Handle runs the pipeline for req. Steps run strictly in order and the
// artifact, once validated, is removed after delivery whatever the outcome.
func (s *Service) Handle(ctx context.Context, req Request, deliver Deliver) (out *Outcome, err error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	out = &Outcome{
		RequestID:  req.ID,
		State:      StateReceived,
		TextLength: utf8.RuneCountInString(req.Text),
	}
	logger := log.With("request", req.ID)
	logger.Debug("Request received", "state", out.State, "chars", out.TextLength)

	defer func() {
		if err != nil {
			out.State = StateFailed
			logger.Debug("Request failed", "state", out.State, "code", tts.CodeOf(err), "error", err)
		}
	}()

	text, err := s.validate(req)
	if err != nil {
		return out, err
	}
	s.advance(out, StateValidated, logger)

	s.advance(out, StateSynthesizing, logger)
	res, cacheKey, err := s.synthesize(ctx, req, text)
	if err != nil {
		return out, err
	}

	vp, err := security.ValidateConfinedPath(res.Path, s.outputDir)
	if err != nil {
		// Never delete or read a path that escaped the output directory.
		logger.Error("Engine returned an artifact outside the output directory", "path", res.Path, "error", err)
		return out, tts.InvalidArtifactError(err)
	}
	out.Artifact = Artifact{
		Path:     vp.Path,
		Size:     vp.Size,
		Engine:   res.Engine,
		Warnings: res.Warnings,
		Cached:   res.Cached,
		Duration: res.Duration,
	}
	s.advance(out, StateArtifactValidated, logger)

	defer func() {
		if req.KeepArtifact && err == nil {
			out.Retained = true
			logger.Debug("Artifact retained", "path", vp.Path)
			return
		}
		s.cleanup(vp.Path, logger)
		if err == nil {
			s.advance(out, StateCleanedUp, logger)
		}
	}()

	if cacheKey != "" && !res.Cached {
		if cerr := s.cfg.Cache.Store(cacheKey, vp.Path); cerr != nil {
			logger.Warn("Failed to cache synthesized audio", "error", cerr)
		}
	}

	if deliver != nil {
		if derr := deliver(ctx, out.Artifact); derr != nil {
			logger.Warn("Delivery failed", "error", derr)
			return out, tts.NewTTSError(tts.ErrorCodeDeliveryFailed, "failed to deliver audio", derr)
		}
	}
	s.advance(out, StateDelivered, logger)

	return out, nil
}

func (s *Service) advance(out *Outcome, to RequestState, logger *log.Logger) {
	logger.Debug("Request state", "from", out.State, "to", to)
	out.State = to
}

// validate checks the text against the engine ceiling and applies markdown
// stripping. It never touches the engine.
func (s *Service) validate(req Request) (string, error) {
	if err := tts.ValidateText(req.Text, s.synth.MaxCharacters()); err != nil {
		return "", err
	}

	strip := s.cfg.StripMarkdown
	if req.Options.StripMarkdown != nil {
		strip = *req.Options.StripMarkdown
	}
	if !strip {
		return req.Text, nil
	}

	text := s.stripper.Strip(req.Text)
	if err := tts.ValidateText(text, 0); err != nil {
		return "", err
	}
	return text, nil
}

type result struct {
	synthesis *tts.Synthesis
	err       error
}

// synthesize serves the request from the cache or runs the engine on the
// worker pool under the configured timeout. It returns the cache key when
// the result should be stored.
func (s *Service) synthesize(ctx context.Context, req Request, text string) (*tts.Synthesis, string, error) {
	engine := s.synth.EngineType()

	key := ""
	if s.cfg.Cache != nil {
		if optsKey, ok := s.synth.CacheKey(req.Options); ok {
			key = cache.Key(string(engine), text, optsKey)
			if hit := s.fromCache(key, engine); hit != nil {
				return hit, "", nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := metrics.SynthesisStarted(string(engine))
	results := make(chan result, 1)
	task := func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error("Synthesis panicked", "request", req.ID, "panic", p)
				results <- result{err: tts.NewTTSError(tts.ErrorCodeInternal, "internal error during synthesis", fmt.Errorf("panic: %v", p))}
			}
		}()
		if err := ctx.Err(); err != nil {
			results <- result{err: err}
			return
		}
		res, err := s.synth.Synthesize(ctx, text, req.Options)
		results <- result{synthesis: res, err: err}
	}

	// Submit blocks while every worker is busy, so it runs outside the
	// select that honors the deadline.
	go func() {
		if err := s.pool.Submit(task); err != nil {
			results <- result{err: tts.NewTTSError(tts.ErrorCodeInternal, "synthesis worker unavailable", err)}
		}
	}()

	var r result
	select {
	case r = <-results:
		if r.err == nil && r.synthesis == nil {
			r.err = tts.NewTTSError(tts.ErrorCodeInternal, "engine returned no result", nil)
		}
	case <-ctx.Done():
		go s.discard(results)
		r.err = ctx.Err()
	}
	if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
		r.err = tts.NewTTSError(tts.ErrorCodeTimeout, fmt.Sprintf("synthesis timed out after %s", s.cfg.Timeout), r.err)
	}
	done(string(tts.CodeOf(r.err)))
	if r.err != nil {
		return nil, "", r.err
	}
	return r.synthesis, key, nil
}

// discard removes the artifact of a synthesis whose caller gave up.
func (s *Service) discard(results <-chan result) {
	r := <-results
	if r.err != nil || r.synthesis == nil {
		return
	}
	if _, err := security.ValidateConfinedPath(r.synthesis.Path, s.outputDir); err != nil {
		return
	}
	if err := os.Remove(r.synthesis.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove abandoned artifact", "error", err)
		metrics.RecordCleanupFailure()
	}
}

func (s *Service) fromCache(key string, engine tts.EngineType) *tts.Synthesis {
	dst := filepath.Join(s.outputDir, tts.ArtifactName(engine))
	hit, err := s.cfg.Cache.Lookup(key, dst)
	if err != nil {
		log.Warn("Synthesis cache lookup failed", "error", err)
		_ = os.Remove(dst)
	}
	metrics.RecordCacheLookup(hit)
	if !hit {
		return nil
	}
	log.Debug("Synthesis cache hit", "engine", engine)
	return &tts.Synthesis{Path: dst, Engine: engine, Cached: true}
}

// cleanup re-checks confinement and removes the artifact. Failures are
// logged and counted, never returned.
func (s *Service) cleanup(path string, logger *log.Logger) {
	if _, err := security.ValidateConfinedPath(path, s.outputDir); err != nil {
		if errors.Is(err, security.ErrNotFound) {
			return
		}
		logger.Error("Refusing to delete artifact", "path", path, "error", err)
		metrics.RecordCleanupFailure()
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove artifact", "path", path, "error", err)
		metrics.RecordCleanupFailure()
		return
	}
	logger.Debug("Artifact removed", "path", path)
}
