package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/orchestrator"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/playback"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

type fakeEngine struct {
	dir string
	err error
}

func (f *fakeEngine) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, tts.ArtifactName(tts.EngineKokoro))
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o644); err != nil {
		return nil, err
	}
	return &tts.Synthesis{Path: path, Engine: tts.EngineKokoro, Warnings: []string{"voice fell back"}}, nil
}

func (f *fakeEngine) CacheKey(opts tts.Options) (string, bool) { return opts.Key(), true }

func (f *fakeEngine) MaxCharacters() int { return 50 }
func (f *fakeEngine) EngineType() tts.EngineType { return tts.EngineKokoro }
func (f *fakeEngine) Status(context.Context) tts.EngineStatus {
	return tts.EngineStatus{Ready: true, State: "ready", EngineType: tts.EngineKokoro, EngineName: "Kokoro"}
}

type fakePlayer struct {
	mu      sync.Mutex
	paths   []string
	deletes []bool
	existed []bool
	fail    bool
}

func (p *fakePlayer) Play(ctx context.Context, path string, volume *float64, deleteAfter bool) playback.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := os.Stat(path)
	p.paths = append(p.paths, path)
	p.deletes = append(p.deletes, deleteAfter)
	p.existed = append(p.existed, err == nil)
	if p.fail {
		return playback.Result{Message: "paplay exited with code 1", Player: "paplay"}
	}
	return playback.Result{Success: true, Message: "Audio played successfully", Player: "paplay"}
}

func newServer(t *testing.T, engine *fakeEngine, player *fakePlayer) *Server {
	t.Helper()
	engine.dir = t.TempDir()
	svc, err := orchestrator.New(engine, orchestrator.Config{OutputDir: engine.dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)
	return New(Config{
		Version: "test",
		Service: svc,
		Engine:  engine,
		Player:  player,
		Detect: func() *playback.PlatformInfo {
			return &playback.PlatformInfo{OS: playback.PlatformLinux, Player: "paplay"}
		},
	})
}

func decode(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", text.Text, err)
	}
}

func artifacts(t *testing.T, dir string) []string {
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

func TestSynthesizeAndPlay(t *testing.T) {
	engine := &fakeEngine{}
	player := &fakePlayer{}
	s := newServer(t, engine, player)

	res, _, err := s.synthesize(context.Background(), nil, SynthesizeInput{Text: "hello there"})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("IsError = true")
	}

	var out SynthesizeResult
	decode(t, res, &out)
	if !out.Success || !out.Played || out.FileRetained || out.FilePath != "" {
		t.Errorf("result = %+v", out)
	}
	if out.Engine != "kokoro" || out.Format != "wav" || out.TextLength != 11 {
		t.Errorf("result = %+v", out)
	}
	if out.FileSize != 16 || out.FileSizeHuman != "16 B" {
		t.Errorf("size = %d %q", out.FileSize, out.FileSizeHuman)
	}
	if len(out.Warnings) != 1 {
		t.Errorf("warnings = %v", out.Warnings)
	}

	if len(player.paths) != 1 || player.deletes[0] || !player.existed[0] {
		t.Errorf("player calls: paths=%v deletes=%v existed=%v", player.paths, player.deletes, player.existed)
	}
	if left := artifacts(t, engine.dir); len(left) != 0 {
		t.Errorf("artifacts left behind: %v", left)
	}
}

func TestSynthesizeKeepFile(t *testing.T) {
	tests := []struct {
		name     string
		in       SynthesizeInput
		wantKeep bool
		wantPlay bool
	}{
		{name: "keep while playing", in: SynthesizeInput{KeepFile: tts.Bool(true)}, wantKeep: true, wantPlay: true},
		{name: "no playback keeps by default", in: SynthesizeInput{PlayAudio: tts.Bool(false)}, wantKeep: true},
		{name: "no playback and no keep", in: SynthesizeInput{PlayAudio: tts.Bool(false), KeepFile: tts.Bool(false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			player := &fakePlayer{}
			s := newServer(t, engine, player)

			tt.in.Text = "hello"
			res, _, _ := s.synthesize(context.Background(), nil, tt.in)
			var out SynthesizeResult
			decode(t, res, &out)

			if out.FileRetained != tt.wantKeep {
				t.Errorf("FileRetained = %v, want %v", out.FileRetained, tt.wantKeep)
			}
			if got := len(player.paths) == 1; got != tt.wantPlay {
				t.Errorf("played = %v, want %v", got, tt.wantPlay)
			}
			left := artifacts(t, engine.dir)
			if tt.wantKeep {
				if len(left) != 1 || out.FilePath != filepath.Join(engine.dir, left[0]) {
					t.Errorf("FilePath = %q, dir holds %v", out.FilePath, left)
				}
			} else if len(left) != 0 {
				t.Errorf("artifacts left behind: %v", left)
			}
		})
	}
}

func TestSynthesizeKeepFileMessage(t *testing.T) {
	tests := []struct {
		name    string
		maxAge  time.Duration
		keep    bool
		want    string
		without string
	}{
		{name: "kept with sweep", maxAge: 30 * time.Minute, keep: true, want: "(deleted automatically after 30m)"},
		{name: "kept with hourly sweep", maxAge: 90 * time.Minute, keep: true, want: "after 1h30m)"},
		{name: "kept without sweep", keep: true, want: "file kept at", without: "deleted automatically"},
		{name: "not kept", maxAge: 30 * time.Minute, without: "file kept at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			s := newServer(t, engine, &fakePlayer{})
			s.maxAge = tt.maxAge

			res, _, _ := s.synthesize(context.Background(), nil, SynthesizeInput{Text: "hello", KeepFile: tts.Bool(tt.keep)})
			var out SynthesizeResult
			decode(t, res, &out)
			if tt.want != "" && !strings.Contains(out.Message, tt.want) {
				t.Errorf("Message = %q, want %q", out.Message, tt.want)
			}
			if tt.without != "" && strings.Contains(out.Message, tt.without) {
				t.Errorf("Message = %q, should not contain %q", out.Message, tt.without)
			}
		})
	}
}

func TestShortDuration(t *testing.T) {
	tests := map[time.Duration]string{
		30 * time.Minute: "30m",
		time.Hour:        "1h",
		90 * time.Minute: "1h30m",
		45 * time.Second: "45s",
	}
	for d, want := range tests {
		if got := shortDuration(d); got != want {
			t.Errorf("shortDuration(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestSynthesizePlaybackFailure(t *testing.T) {
	engine := &fakeEngine{}
	s := newServer(t, engine, &fakePlayer{fail: true})

	res, _, _ := s.synthesize(context.Background(), nil, SynthesizeInput{Text: "hello"})
	if res.IsError {
		t.Error("a playback failure should not fail the synthesis")
	}
	var out SynthesizeResult
	decode(t, res, &out)
	if out.Played || out.Playback == nil || out.Playback.Success {
		t.Errorf("result = %+v", out)
	}
	if !strings.Contains(out.Message, "playback failed") {
		t.Errorf("Message = %q", out.Message)
	}
	if left := artifacts(t, engine.dir); len(left) != 0 {
		t.Errorf("artifacts left behind: %v", left)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name      string
		in        SynthesizeInput
		engineErr error
		wantCode  string
		wantMsg   string
	}{
		{name: "empty", in: SynthesizeInput{Text: "   "}, wantCode: "INVALID_INPUT", wantMsg: "text is required and cannot be empty"},
		{name: "too long", in: SynthesizeInput{Text: strings.Repeat("a", 51)}, wantCode: "TEXT_TOO_LONG", wantMsg: "text exceeds maximum length of 50 characters (got 51)"},
		{name: "bad volume", in: SynthesizeInput{Text: "hi", Volume: tts.Float(3)}, wantCode: "INVALID_OPTION", wantMsg: "volume must be between 0 and 2"},
		{
			name:      "engine failure",
			in:        SynthesizeInput{Text: "hi"},
			engineErr: tts.SynthesisFailedError("RuntimeError: boom", errors.New("exit status 1")),
			wantCode:  "SYNTHESIS_FAILED",
			wantMsg:   "synthesis failed: RuntimeError: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{err: tt.engineErr}
			player := &fakePlayer{}
			s := newServer(t, engine, player)

			res, _, err := s.synthesize(context.Background(), nil, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Error("IsError = false")
			}
			var out failure
			decode(t, res, &out)
			if out.Success || out.Code != tt.wantCode || !strings.Contains(out.Message, tt.wantMsg) {
				t.Errorf("failure = %+v", out)
			}
			if len(player.paths) != 0 {
				t.Error("player called after a failure")
			}
		})
	}
}

func TestPlayAudio(t *testing.T) {
	player := &fakePlayer{}
	s := newServer(t, &fakeEngine{}, player)

	res, _, _ := s.play(context.Background(), nil, PlayInput{AudioFile: "/tmp/a.wav"})
	var out playback.Result
	decode(t, res, &out)
	if res.IsError || !out.Success {
		t.Errorf("result = %+v", out)
	}
	if !player.deletes[0] {
		t.Error("deleteAfterPlay should default to true")
	}

	_, _, _ = s.play(context.Background(), nil, PlayInput{AudioFile: "/tmp/a.wav", DeleteAfterPlay: tts.Bool(false)})
	if player.deletes[1] {
		t.Error("deleteAfterPlay=false not honored")
	}

	for _, in := range []PlayInput{{}, {AudioFile: "/tmp/a.wav", Volume: tts.Float(-1)}} {
		res, _, _ := s.play(context.Background(), nil, in)
		if !res.IsError {
			t.Errorf("play(%+v) IsError = false", in)
		}
	}
	if len(player.paths) != 2 {
		t.Errorf("player called %d times, want 2", len(player.paths))
	}
}

func TestPlayAudioFailure(t *testing.T) {
	s := newServer(t, &fakeEngine{}, &fakePlayer{fail: true})
	res, _, _ := s.play(context.Background(), nil, PlayInput{AudioFile: "/tmp/a.wav"})
	if !res.IsError {
		t.Error("IsError = false")
	}
}

func TestStatus(t *testing.T) {
	engine := &fakeEngine{}
	s := newServer(t, engine, &fakePlayer{})

	res, _, err := s.status(context.Background(), nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	decode(t, res, &out)

	if out["ready"] != true || out["engineType"] != "kokoro" || out["player"] != "paplay" {
		t.Errorf("status = %v", out)
	}
	if out["outputDir"] != engine.dir {
		t.Errorf("outputDir = %v, want %s", out["outputDir"], engine.dir)
	}
	if _, ok := out["platform"].(map[string]any); !ok {
		t.Errorf("platform = %v", out["platform"])
	}
}

func TestMCPRegistersTools(t *testing.T) {
	s := newServer(t, &fakeEngine{}, &fakePlayer{})
	if s.MCP() == nil {
		t.Fatal("MCP() = nil")
	}
}
