package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/orchestrator"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/playback"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

// SynthesizeInput is the synthesize_text argument object.
type SynthesizeInput struct {
	Text           string   `json:"text" jsonschema:"The text to convert to speech"`
	ReferenceAudio string   `json:"referenceAudio,omitempty" jsonschema:"Path to a voice sample to clone (chatterbox)"`
	Exaggeration   *float64 `json:"exaggeration,omitempty" jsonschema:"Emotional intensity between 0 and 2 (chatterbox)"`
	CFGWeight      *float64 `json:"cfgWeight,omitempty" jsonschema:"Pacing weight between 0 and 1 (chatterbox)"`
	Speed          *float64 `json:"speed,omitempty" jsonschema:"Speech rate between 0.5 and 2 (kokoro, coqui)"`
	Language       string   `json:"language,omitempty" jsonschema:"Language code such as en-us (kokoro)"`
	Voice          string   `json:"voice,omitempty" jsonschema:"Voice id such as af_sarah (kokoro)"`
	Model          string   `json:"model,omitempty" jsonschema:"Model name (coqui)"`
	StripMarkdown  *bool    `json:"stripMarkdown,omitempty" jsonschema:"Convert markdown to plain speech text first"`
	PlayAudio      *bool    `json:"playAudio,omitempty" jsonschema:"Play the audio after synthesis (default true)"`
	KeepFile       *bool    `json:"keepFile,omitempty" jsonschema:"Keep the audio file after the call (default false when playing, true otherwise). Kept files are deleted by a periodic cleanup once older than the configured max age (default 30m)"`
	Volume         *float64 `json:"volume,omitempty" jsonschema:"Playback volume between 0 and 2 where 1 is unchanged"`
}

func (in SynthesizeInput) options() tts.Options {
	return tts.Options{
		ReferenceAudio: in.ReferenceAudio,
		Speed:          in.Speed,
		Language:       in.Language,
		Voice:          in.Voice,
		Exaggeration:   in.Exaggeration,
		CFGWeight:      in.CFGWeight,
		Model:          in.Model,
		StripMarkdown:  in.StripMarkdown,
	}
}

// SynthesizeResult is the synthesize_text success payload.
type SynthesizeResult struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	FilePath      string           `json:"filePath,omitempty"`
	Format        string           `json:"format"`
	Engine        string           `json:"engine"`
	TextLength    int              `json:"textLength"`
	FileSize      int64            `json:"fileSize"`
	FileSizeHuman string           `json:"fileSizeHuman"`
	DurationMs    int64            `json:"durationMs"`
	Cached        bool             `json:"cached,omitempty"`
	Played        bool             `json:"played"`
	Playback      *playback.Result `json:"playback,omitempty"`
	FileRetained  bool             `json:"fileRetained"`
	Warnings      []string         `json:"warnings,omitempty"`
}

func (s *Server) synthesize(ctx context.Context, _ *mcp.CallToolRequest, in SynthesizeInput) (*mcp.CallToolResult, any, error) {
	play := in.PlayAudio == nil || *in.PlayAudio
	keep := !play
	if in.KeepFile != nil {
		keep = *in.KeepFile
	}
	if play {
		if err := playback.ValidateVolume(in.Volume); err != nil {
			return errorResult(err.Error(), tts.ErrorCodeInvalidOption), nil, nil
		}
	}

	log.Debug("synthesize_text called", "length", len(in.Text), "play", play, "keep", keep)

	var played *playback.Result
	deliver := func(ctx context.Context, a orchestrator.Artifact) error {
		if !play {
			return nil
		}
		// The orchestrator owns the file, so the player never deletes it.
		res := s.player.Play(ctx, a.Path, in.Volume, false)
		played = &res
		return nil
	}

	out, err := s.svc.Handle(ctx, orchestrator.Request{
		Text:         in.Text,
		Options:      in.options(),
		KeepArtifact: keep,
	}, deliver)
	if err != nil {
		log.Warn("Synthesis failed", "request", out.RequestID, "state", out.State, "error", err)
		return errorResult(s.svc.PublicMessage(err), tts.CodeOf(err)), nil, nil
	}

	a := out.Artifact
	res := SynthesizeResult{
		Success:       true,
		Format:        "wav",
		Engine:        string(a.Engine),
		TextLength:    out.TextLength,
		FileSize:      a.Size,
		FileSizeHuman: humanize.Bytes(uint64(a.Size)), //nolint:gosec
		DurationMs:    a.Duration.Milliseconds(),
		Cached:        a.Cached,
		Playback:      played,
		FileRetained:  out.Retained,
		Warnings:      a.Warnings,
	}
	if out.Retained {
		res.FilePath = a.Path
	}

	var msg strings.Builder
	msg.WriteString("Speech synthesized successfully")
	switch {
	case played == nil:
	case played.Success:
		res.Played = true
		msg.WriteString(" and played")
	default:
		msg.WriteString("; playback failed: " + played.Message)
	}
	if out.Retained {
		msg.WriteString("; file kept at " + a.Path)
		if s.maxAge > 0 {
			msg.WriteString(" (deleted automatically after " + shortDuration(s.maxAge) + ")")
		}
	}
	res.Message = msg.String()

	return jsonResult(res, false), nil, nil
}

// PlayInput is the play_audio argument object.
type PlayInput struct {
	AudioFile       string   `json:"audioFile" jsonschema:"Path of the audio file to play"`
	Volume          *float64 `json:"volume,omitempty" jsonschema:"Playback volume between 0 and 2 where 1 is unchanged"`
	DeleteAfterPlay *bool    `json:"deleteAfterPlay,omitempty" jsonschema:"Delete the file after playing (default true)"`
}

func (s *Server) play(ctx context.Context, _ *mcp.CallToolRequest, in PlayInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.AudioFile) == "" {
		return errorResult("audioFile is required", tts.ErrorCodeInvalidInput), nil, nil
	}
	if err := playback.ValidateVolume(in.Volume); err != nil {
		return errorResult(err.Error(), tts.ErrorCodeInvalidOption), nil, nil
	}
	deleteAfter := in.DeleteAfterPlay == nil || *in.DeleteAfterPlay

	res := s.player.Play(ctx, in.AudioFile, in.Volume, deleteAfter)
	return jsonResult(res, !res.Success), nil, nil
}

// StatusResult is the tts_status payload.
type StatusResult struct {
	tts.EngineStatus
	Success   bool                   `json:"success"`
	OutputDir string                 `json:"outputDir"`
	Platform  *playback.PlatformInfo `json:"platform"`
	Player    string                 `json:"player,omitempty"`
}

func (s *Server) status(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	info := s.platform()
	res := StatusResult{
		EngineStatus: s.engine.Status(ctx),
		Success:      true,
		OutputDir:    s.svc.OutputDir(),
		Platform:     info,
	}
	if info != nil {
		res.Player = info.Player
	}
	return jsonResult(res, false), nil, nil
}

// shortDuration drops trailing zero units, so 30m0s reads as 30m.
func shortDuration(d time.Duration) string {
	s := d.Round(time.Second).String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
