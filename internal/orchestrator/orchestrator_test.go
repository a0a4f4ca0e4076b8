package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/cache"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

// fakeSynth writes a small wav into dir, or wherever writeTo points.
type fakeSynth struct {
	dir      string
	writeTo  string
	maxChars int
	err      error
	block    bool
	panics   bool
	delay    time.Duration
	warnings []string
	voice    string

	calls    atomic.Int32
	running  atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	lastText string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	n := f.running.Add(1)
	f.calls.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()

	if f.panics {
		panic("engine bug")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}

	dir := f.dir
	if f.writeTo != "" {
		dir = f.writeTo
	}
	path := filepath.Join(dir, tts.ArtifactName(tts.EngineKokoro))
	if err := os.WriteFile(path, []byte("RIFF0000WAVE:"+text), 0o644); err != nil {
		return nil, err
	}
	return &tts.Synthesis{Path: path, Engine: tts.EngineKokoro, Warnings: f.warnings}, nil
}

// CacheKey resolves the voice against the fake's default the way engines
// resolve against their environment defaults.
func (f *fakeSynth) CacheKey(opts tts.Options) (string, bool) {
	if opts.ReferenceAudio != "" {
		return "", false
	}
	resolved := opts
	resolved.Voice = tts.ResolveString(opts.Voice, f.voice, "af_sarah")
	return resolved.Key(), true
}

func (f *fakeSynth) MaxCharacters() int {
	if f.maxChars == 0 {
		return 2000
	}
	return f.maxChars
}

func (f *fakeSynth) EngineType() tts.EngineType { return tts.EngineKokoro }

func (f *fakeSynth) text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}

func newService(t *testing.T, f *fakeSynth, mutate ...func(*Config)) *Service {
	t.Helper()
	cfg := Config{OutputDir: t.TempDir(), Timeout: 5 * time.Second, MaxConcurrent: 2}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := New(f, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	f.dir = s.OutputDir()
	return s
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestHandleSuccess(t *testing.T) {
	f := &fakeSynth{warnings: []string{"reference audio ignored"}}
	s := newService(t, f)

	var delivered Artifact
	var existedDuringDelivery bool
	out, err := s.Handle(context.Background(), Request{ID: "req-1", Text: "Hello"}, func(ctx context.Context, a Artifact) error {
		delivered = a
		_, statErr := os.Stat(a.Path)
		existedDuringDelivery = statErr == nil
		return nil
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if out.RequestID != "req-1" || out.State != StateCleanedUp || out.TextLength != 5 {
		t.Errorf("Outcome = %+v", out)
	}
	if !existedDuringDelivery {
		t.Error("artifact missing during delivery")
	}
	if delivered.Size == 0 || delivered.Engine != tts.EngineKokoro || len(delivered.Warnings) != 1 {
		t.Errorf("delivered = %+v", delivered)
	}
	if _, err := os.Stat(delivered.Path); !os.IsNotExist(err) {
		t.Error("artifact not removed after delivery")
	}
	if out.Retained {
		t.Error("Retained = true")
	}
}

func TestHandleKeepArtifact(t *testing.T) {
	f := &fakeSynth{}
	s := newService(t, f)

	out, err := s.Handle(context.Background(), Request{Text: "Keep me", KeepArtifact: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Retained || out.State != StateDelivered {
		t.Errorf("Outcome = %+v", out)
	}
	if out.RequestID == "" {
		t.Error("no request id assigned")
	}
	if _, err := os.Stat(out.Artifact.Path); err != nil {
		t.Errorf("retained artifact missing: %v", err)
	}

	// Opting out of cleanup does not survive a failed delivery.
	out, err = s.Handle(context.Background(), Request{Text: "Keep me", KeepArtifact: true}, func(context.Context, Artifact) error {
		return errors.New("client went away")
	})
	if err == nil || out.Retained {
		t.Fatalf("Handle() = %+v, %v", out, err)
	}
	if _, err := os.Stat(out.Artifact.Path); !os.IsNotExist(err) {
		t.Error("artifact kept after failed delivery")
	}
}

func TestHandleRejectsInput(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
		wantMsg string
	}{
		{name: "empty", text: "", wantErr: tts.ErrEmptyText, wantMsg: "text is required and cannot be empty"},
		{name: "whitespace", text: " \n ", wantErr: tts.ErrEmptyText},
		{
			name:    "over limit",
			text:    strings.Repeat("a", 2001),
			wantErr: tts.ErrTextTooLong,
			wantMsg: "text exceeds maximum length of 2000 characters (got 2001)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSynth{}
			s := newService(t, f)
			out, err := s.Handle(context.Background(), Request{Text: tt.text}, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Handle() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && s.PublicMessage(err) != tt.wantMsg {
				t.Errorf("message = %q, want %q", s.PublicMessage(err), tt.wantMsg)
			}
			if out.State != StateFailed {
				t.Errorf("State = %s", out.State)
			}
			if f.calls.Load() != 0 {
				t.Error("rejected input reached the engine")
			}
		})
	}

	f := &fakeSynth{}
	s := newService(t, f)
	if _, err := s.Handle(context.Background(), Request{Text: strings.Repeat("a", 2000)}, nil); err != nil {
		t.Errorf("text at the limit rejected: %v", err)
	}
}

func TestHandleArtifactOutsideOutputDir(t *testing.T) {
	outside := t.TempDir()
	f := &fakeSynth{writeTo: outside}
	s := newService(t, f)

	delivered := false
	out, err := s.Handle(context.Background(), Request{Text: "Hello"}, func(context.Context, Artifact) error {
		delivered = true
		return nil
	})
	if !errors.Is(err, tts.ErrInvalidArtifact) {
		t.Fatalf("Handle() error = %v, want ErrInvalidArtifact", err)
	}
	if msg := s.PublicMessage(err); msg != "invalid audio path generated" {
		t.Errorf("message = %q", msg)
	}
	if delivered {
		t.Error("escaped artifact was delivered")
	}
	if out.State != StateFailed {
		t.Errorf("State = %s", out.State)
	}
	// The escaped file is left alone rather than deleted.
	if files := leftovers(t, outside); len(files) != 1 {
		t.Errorf("outside dir = %v", files)
	}
}

func TestHandleFailuresCleanUp(t *testing.T) {
	tests := []struct {
		name     string
		synth    *fakeSynth
		deliver  Deliver
		timeout  time.Duration
		wantCode tts.ErrorCode
	}{
		{
			name:     "engine failure",
			synth:    &fakeSynth{err: tts.SynthesisFailedError("RuntimeError: boom", nil)},
			wantCode: tts.ErrorCodeSynthesisFailed,
		},
		{
			name:  "delivery failure",
			synth: &fakeSynth{},
			deliver: func(context.Context, Artifact) error {
				return errors.New("broken pipe")
			},
			wantCode: tts.ErrorCodeDeliveryFailed,
		},
		{
			name:     "timeout",
			synth:    &fakeSynth{block: true},
			timeout:  100 * time.Millisecond,
			wantCode: tts.ErrorCodeTimeout,
		},
		{
			name:     "panic",
			synth:    &fakeSynth{panics: true},
			wantCode: tts.ErrorCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, tt.synth, func(c *Config) {
				if tt.timeout > 0 {
					c.Timeout = tt.timeout
				}
			})
			out, err := s.Handle(context.Background(), Request{Text: "Hello"}, tt.deliver)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := tts.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", got, tt.wantCode, err)
			}
			if out.State != StateFailed {
				t.Errorf("State = %s", out.State)
			}
			if files := leftovers(t, s.OutputDir()); len(files) != 0 {
				t.Errorf("artifacts left behind: %v", files)
			}
		})
	}
}

func TestHandleAbandonedSynthesisIsDiscarded(t *testing.T) {
	f := &fakeSynth{delay: 300 * time.Millisecond}
	s := newService(t, f, func(c *Config) { c.Timeout = 50 * time.Millisecond })

	_, err := s.Handle(context.Background(), Request{Text: "slow"}, nil)
	if tts.CodeOf(err) != tts.ErrorCodeTimeout {
		t.Fatalf("Handle() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.calls.Load() == 1 && f.running.Load() == 0 && len(leftovers(t, s.OutputDir())) == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("abandoned artifact not removed: %v", leftovers(t, s.OutputDir()))
}

func TestHandleConcurrencyLimit(t *testing.T) {
	f := &fakeSynth{delay: 50 * time.Millisecond}
	s := newService(t, f, func(c *Config) { c.MaxConcurrent = 1 })

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Handle(context.Background(), Request{Text: "Hi"}, nil); err != nil {
				t.Errorf("Handle() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.peak.Load(); got != 1 {
		t.Errorf("peak concurrent syntheses = %d, want 1", got)
	}
	if got := f.calls.Load(); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
}

func TestHandleCache(t *testing.T) {
	c, err := cache.NewAudioCache(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	f := &fakeSynth{}
	s := newService(t, f, func(cfg *Config) { cfg.Cache = c })

	var bodies []string
	deliver := func(ctx context.Context, a Artifact) error {
		data, err := os.ReadFile(a.Path)
		bodies = append(bodies, string(data))
		return err
	}

	first, err := s.Handle(context.Background(), Request{Text: "Cached words"}, deliver)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Handle(context.Background(), Request{Text: "Cached words"}, deliver)
	if err != nil {
		t.Fatal(err)
	}

	if f.calls.Load() != 1 {
		t.Errorf("engine calls = %d, want 1", f.calls.Load())
	}
	if first.Artifact.Cached || !second.Artifact.Cached {
		t.Errorf("cached flags = %v, %v", first.Artifact.Cached, second.Artifact.Cached)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] {
		t.Errorf("delivered bodies differ: %q", bodies)
	}
	if files := leftovers(t, s.OutputDir()); len(files) != 0 {
		t.Errorf("cache hit left files behind: %v", files)
	}

	// Options are part of the key.
	if _, err := s.Handle(context.Background(), Request{Text: "Cached words", Options: tts.Options{Speed: tts.Float(1.5)}}, nil); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("engine calls = %d, want 2", f.calls.Load())
	}
}

func TestHandleCacheUsesResolvedOptions(t *testing.T) {
	c, err := cache.NewAudioCache(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	tests := []struct {
		name      string
		voice     string
		opts      tts.Options
		wantCalls int32
	}{
		{name: "first default voice", voice: "af_sarah", wantCalls: 1},
		{name: "same default voice hits", voice: "af_sarah", wantCalls: 0},
		{name: "different default voice misses", voice: "bf_emma", wantCalls: 1},
		{name: "explicit voice matching the default hits", voice: "bf_emma", opts: tts.Options{Voice: "bf_emma"}, wantCalls: 0},
		{name: "reference audio is never cached", voice: "bf_emma", opts: tts.Options{ReferenceAudio: "/voices/me.wav"}, wantCalls: 1},
		{name: "reference audio again", voice: "bf_emma", opts: tts.Options{ReferenceAudio: "/voices/me.wav"}, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSynth{voice: tt.voice}
			s := newService(t, f, func(cfg *Config) { cfg.Cache = c })
			res, err := s.Handle(context.Background(), Request{Text: "Shared words", Options: tt.opts}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := f.calls.Load(); got != tt.wantCalls {
				t.Errorf("engine calls = %d, want %d", got, tt.wantCalls)
			}
			if res.Artifact.Cached != (tt.wantCalls == 0) {
				t.Errorf("Cached = %v", res.Artifact.Cached)
			}
		})
	}
}

func TestHandleStripMarkdown(t *testing.T) {
	f := &fakeSynth{}
	s := newService(t, f)

	if _, err := s.Handle(context.Background(), Request{
		Text:    "# Title\n\nSome *bold* text.",
		Options: tts.Options{StripMarkdown: tts.Bool(true)},
	}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.text(); got != "Title. Some bold text." {
		t.Errorf("engine text = %q", got)
	}

	if _, err := s.Handle(context.Background(), Request{
		Text:    "```\ncode only\n```",
		Options: tts.Options{StripMarkdown: tts.Bool(true)},
	}, nil); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("markdown with nothing to say: error = %v", err)
	}

	if _, err := s.Handle(context.Background(), Request{Text: "*raw*"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.text(); got != "*raw*" {
		t.Errorf("engine text = %q, want markdown untouched", got)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(nil, Config{OutputDir: t.TempDir()}); err == nil {
		t.Error("expected error without synthesizer")
	}
	if _, err := New(&fakeSynth{}, Config{}); err == nil {
		t.Error("expected error without output dir")
	}

	dir := filepath.Join(t.TempDir(), "nested", "out")
	s, err := New(&fakeSynth{}, Config{OutputDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output dir not created: %v", err)
	}
	if s.cfg.Timeout != DefaultTimeout || s.cfg.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("defaults not applied: %+v", s.cfg)
	}
}

func TestRequestStateString(t *testing.T) {
	tests := map[RequestState]string{
		StateReceived:          "RECEIVED",
		StateValidated:         "VALIDATED",
		StateSynthesizing:      "SYNTHESIZING",
		StateArtifactValidated: "ARTIFACT_VALIDATED",
		StateDelivered:         "DELIVERED",
		StateCleanedUp:         "CLEANED_UP",
		StateFailed:            "FAILED",
		RequestState(42):       "UNKNOWN",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
