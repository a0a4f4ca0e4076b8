// Package mcpserver exposes synthesis, playback and status as MCP tools over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/orchestrator"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/playback"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

// Name is the MCP implementation name.
const Name = "local-voice-mcp"

// StatusReporter reports engine readiness. *tts.Selector satisfies it.
type StatusReporter interface {
	Status(ctx context.Context) tts.EngineStatus
}

// AudioPlayer plays a local file. *playback.Player satisfies it.
type AudioPlayer interface {
	Play(ctx context.Context, path string, volume *float64, deleteAfter bool) playback.Result
}

// Config wires the server to the shared services.
type Config struct {
	Version string
	Service *orchestrator.Service
	Engine  StatusReporter
	Player  AudioPlayer

	// RetainedMaxAge is how long the janitor leaves a kept file in the
	// output directory. Zero means no sweep is running.
	RetainedMaxAge time.Duration

	// Detect overrides platform detection.
	Detect func() *playback.PlatformInfo
}

// Server holds the tool handlers.
type Server struct {
	version  string
	svc      *orchestrator.Service
	engine   StatusReporter
	player   AudioPlayer
	maxAge   time.Duration
	platform func() *playback.PlatformInfo
}

// New creates a Server.
func New(cfg Config) *Server {
	detect := cfg.Detect
	if detect == nil {
		detect = playback.Detect
	}
	return &Server{
		version:  cfg.Version,
		svc:      cfg.Service,
		engine:   cfg.Engine,
		player:   cfg.Player,
		maxAge:   cfg.RetainedMaxAge,
		platform: sync.OnceValue(detect),
	}
}

// MCP builds the MCP server with every tool registered.
func (s *Server) MCP() *mcp.Server {
	impl := &mcp.Implementation{
		Name:    Name,
		Title:   "Local Voice",
		Version: s.version,
	}
	srv := mcp.NewServer(impl, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "synthesize_text",
		Title:       "Synthesize Text",
		Description: "Converts text to speech with the local TTS engine and optionally plays it",
		Annotations: &mcp.ToolAnnotations{
			Title:          "Local Text-to-Speech",
			IdempotentHint: false,
		},
	}, s.synthesize)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "play_audio",
		Title:       "Play Audio",
		Description: "Plays a local audio file (wav, mp3, flac, ogg, m4a, aac) and optionally deletes it afterwards",
	}, s.play)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "tts_status",
		Title:       "TTS Status",
		Description: "Reports the TTS engine readiness, capabilities and audio player",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, s.status)

	return srv
}

// Run serves MCP over stdin and stdout until ctx ends or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	log.Info("Starting MCP server", "name", Name, "version", s.version)
	if err := s.MCP().Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("failed to serve MCP: %w", err)
	}
	return nil
}

// jsonResult wraps v as the tool's text content.
func jsonResult(v any, isError bool) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to encode tool result", "error", err)
		b = []byte(`{"success":false,"message":"internal error"}`)
		isError = true
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
		IsError: isError,
	}
}

type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func errorResult(message string, code tts.ErrorCode) *mcp.CallToolResult {
	return jsonResult(failure{Message: message, Code: string(code)}, true)
}
