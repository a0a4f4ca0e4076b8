package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeEngine records calls and lets tests script bootstrap and synthesis.
type fakeEngine struct {
	typ       EngineType
	maxChars  int
	readiness *Readiness

	bootstraps atomic.Int32
	syntheses  atomic.Int32
	bootErr    error
	optionsErr error
	shutdowns  int
	mu         sync.Mutex
}

func newFakeEngine(typ EngineType) *fakeEngine {
	e := &fakeEngine{typ: typ, maxChars: 20}
	e.readiness = NewReadiness(string(typ), func(ctx context.Context) error {
		e.bootstraps.Add(1)
		return e.bootErr
	})
	return e
}

func (e *fakeEngine) EnsureReady(ctx context.Context) error { return e.readiness.EnsureReady(ctx) }

func (e *fakeEngine) Synthesize(ctx context.Context, text string, opts Options) (*Synthesis, error) {
	e.syntheses.Add(1)
	return &Synthesis{Path: "/tmp/out.wav", Engine: e.typ}, nil
}

func (e *fakeEngine) Status(ctx context.Context) EngineStatus {
	st := e.readiness.State()
	return EngineStatus{Ready: st == StateReady, State: st.String(), EngineType: e.typ, EngineName: "fake"}
}

func (e *fakeEngine) ValidateOptions(opts Options) error { return e.optionsErr }

func (e *fakeEngine) CacheKey(opts Options) (string, bool) { return string(e.typ) + ":" + opts.Key(), true }

func (e *fakeEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shutdowns++
	e.mu.Unlock()
	e.readiness.Reset()
	return nil
}

func (e *fakeEngine) Type() EngineType   { return e.typ }
func (e *fakeEngine) Name() string       { return "fake " + string(e.typ) }
func (e *fakeEngine) MaxCharacters() int { return e.maxChars }

var _ Engine = (*fakeEngine)(nil)

func fakeFactories(built map[EngineType]*fakeEngine) map[EngineType]Factory {
	factories := make(map[EngineType]Factory)
	for _, typ := range KnownEngines {
		typ := typ
		factories[typ] = func() (Engine, error) {
			e := newFakeEngine(typ)
			built[typ] = e
			return e, nil
		}
	}
	return factories
}

func TestParseEngineType(t *testing.T) {
	tests := []struct {
		name    string
		want    EngineType
		wantErr bool
	}{
		{name: "chatterbox", want: EngineChatterbox},
		{name: "  Kokoro ", want: EngineKokoro},
		{name: "COQUI", want: EngineCoqui},
		{name: "kokoro-onnx", want: EngineKokoro},
		{name: "xtts", want: EngineCoqui},
		{name: "chatter", want: EngineChatterbox},
		{name: "piper", wantErr: true},
		{name: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEngineType(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownEngine) {
					t.Errorf("ParseEngineType() error = %v, want ErrUnknownEngine", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseEngineType() = %s, %v, want %s", got, err, tt.want)
			}
		})
	}
}

func TestNewSelector(t *testing.T) {
	tests := []struct {
		name         string
		config       string
		want         EngineType
		wantFellBack bool
	}{
		{name: "known", config: "kokoro", want: EngineKokoro},
		{name: "mixed case", config: "Coqui", want: EngineCoqui},
		{name: "unknown falls back", config: "espeak", want: DefaultEngine, wantFellBack: true},
		{name: "empty uses default", config: "", want: DefaultEngine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			built := map[EngineType]*fakeEngine{}
			s, err := NewSelector(tt.config, fakeFactories(built), DefaultEngine)
			if err != nil {
				t.Fatalf("NewSelector() error = %v", err)
			}
			if s.EngineType() != tt.want {
				t.Errorf("EngineType() = %s, want %s", s.EngineType(), tt.want)
			}
			if s.FellBack() != tt.wantFellBack {
				t.Errorf("FellBack() = %v, want %v", s.FellBack(), tt.wantFellBack)
			}
			if len(built) != 1 {
				t.Errorf("selector built %d engines, want exactly 1", len(built))
			}
			if built[tt.want].bootstraps.Load() != 0 {
				t.Error("construction must not bootstrap")
			}
		})
	}

	if _, err := NewSelector("kokoro", map[EngineType]Factory{}, DefaultEngine); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("missing factory error = %v", err)
	}
	failing := map[EngineType]Factory{EngineKokoro: func() (Engine, error) { return nil, errors.New("bad config") }}
	if _, err := NewSelector("kokoro", failing, DefaultEngine); err == nil {
		t.Error("expected factory error")
	}
}

func TestSelectorSynthesize(t *testing.T) {
	built := map[EngineType]*fakeEngine{}
	s, err := NewSelector("kokoro", fakeFactories(built), DefaultEngine)
	if err != nil {
		t.Fatal(err)
	}
	engine := built[EngineKokoro]
	ctx := context.Background()

	// Invalid input never reaches the engine or its bootstrap.
	if _, err := s.Synthesize(ctx, "", Options{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty text error = %v", err)
	}
	if _, err := s.Synthesize(ctx, "this text is definitely too long", Options{}); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("long text error = %v", err)
	}
	engine.optionsErr = InvalidOptionError("speed out of range")
	if _, err := s.Synthesize(ctx, "hello", Options{}); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("bad option error = %v", err)
	}
	if engine.bootstraps.Load() != 0 || engine.syntheses.Load() != 0 {
		t.Fatalf("rejected requests reached the engine: bootstraps=%d syntheses=%d",
			engine.bootstraps.Load(), engine.syntheses.Load())
	}
	engine.optionsErr = nil

	// Concurrent requests share one bootstrap.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Synthesize(ctx, "hello", Options{}); err != nil {
				t.Errorf("Synthesize() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if got := engine.bootstraps.Load(); got != 1 {
		t.Errorf("bootstraps = %d, want 1", got)
	}
	if got := engine.syntheses.Load(); got != 10 {
		t.Errorf("syntheses = %d, want 10", got)
	}
	if !s.Status(ctx).Ready {
		t.Error("Status().Ready = false after synthesis")
	}
}

func TestSelectorCacheKey(t *testing.T) {
	built := map[EngineType]*fakeEngine{}
	s, err := NewSelector("coqui", fakeFactories(built), DefaultEngine)
	if err != nil {
		t.Fatal(err)
	}
	key, ok := s.CacheKey(Options{Speed: Float(1.5)})
	if !ok || key != "coqui:speed=1.5" {
		t.Errorf("CacheKey() = %q, %v", key, ok)
	}
	if built[EngineCoqui].bootstraps.Load() != 0 {
		t.Error("CacheKey() triggered a bootstrap")
	}
}

func TestSelectorBootstrapFailure(t *testing.T) {
	built := map[EngineType]*fakeEngine{}
	s, err := NewSelector("chatterbox", fakeFactories(built), DefaultEngine)
	if err != nil {
		t.Fatal(err)
	}
	engine := built[EngineChatterbox]
	engine.bootErr = errors.New("torch missing")

	_, err = s.Synthesize(context.Background(), "hello", Options{})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("error = %v, want ErrNotReady", err)
	}
	if engine.syntheses.Load() != 0 {
		t.Error("synthesis ran without a ready engine")
	}

	engine.bootErr = nil
	if _, err := s.Synthesize(context.Background(), "hello", Options{}); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if got := engine.bootstraps.Load(); got != 2 {
		t.Errorf("bootstraps = %d, want 2", got)
	}
}

func TestSelectorShutdown(t *testing.T) {
	built := map[EngineType]*fakeEngine{}
	s, err := NewSelector("coqui", fakeFactories(built), DefaultEngine)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Status(context.Background()).Ready {
		t.Error("engine still ready after Shutdown")
	}
	if built[EngineCoqui].shutdowns != 1 {
		t.Errorf("shutdowns = %d", built[EngineCoqui].shutdowns)
	}
	if s.EngineName() != "fake coqui" || s.MaxCharacters() != 20 {
		t.Errorf("EngineName() = %q, MaxCharacters() = %d", s.EngineName(), s.MaxCharacters())
	}
}
