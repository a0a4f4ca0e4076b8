package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/orchestrator"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

// synthesizeRequest is the POST /tts body.
type synthesizeRequest struct {
	Text    string      `json:"text"`
	Options tts.Options `json:"options"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code tts.ErrorCode) int {
	switch code {
	case tts.ErrorCodeInvalidInput, tts.ErrorCodeTextTooLong, tts.ErrorCodeInvalidOption:
		return http.StatusBadRequest
	case tts.ErrorCodeEngineUnavailable:
		return http.StatusServiceUnavailable
	case tts.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	st := s.engine.Status(c.Request.Context())
	code := http.StatusOK
	if !st.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"ready":  st.Ready,
		"state":  st.State,
		"engine": st.EngineType,
	})
}

func (s *Server) synthesize(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)

	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, tts.NewTTSError(tts.ErrorCodeInvalidInput, "invalid request body", err))
		return
	}

	id := c.GetString(ctxRequestID)
	out, err := s.svc.Handle(c.Request.Context(), orchestrator.Request{
		ID:      id,
		Text:    req.Text,
		Options: req.Options,
	}, func(ctx context.Context, a orchestrator.Artifact) error {
		return s.stream(c, a)
	})
	if err != nil {
		log.Warn("Synthesis request failed", "request", id, "state", out.State, "error", err)
		if c.Writer.Written() {
			// Headers are gone; the client sees a truncated body.
			return
		}
		s.fail(c, err)
	}
}

// stream copies the artifact to the response while it still exists.
func (s *Server) stream(c *gin.Context, a orchestrator.Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close() //nolint:errcheck

	h := c.Writer.Header()
	h.Set("Content-Type", "audio/wav")
	h.Set("Content-Length", strconv.FormatInt(a.Size, 10))
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(a.Path)))
	h.Set("X-TTS-Engine", string(a.Engine))
	if a.Cached {
		h.Set("X-TTS-Cache", "hit")
	}
	for _, w := range a.Warnings {
		h.Add("X-TTS-Warning", headerSafe(s.svc.PublicMessage(errors.New(w))))
	}
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, f); err != nil {
		return fmt.Errorf("failed to stream audio: %w", err)
	}
	return nil
}

func (s *Server) fail(c *gin.Context, err error) {
	code := tts.CodeOf(err)
	c.AbortWithStatusJSON(statusFor(code), errorBody{
		Error: s.svc.PublicMessage(err),
		Code:  string(code),
	})
}

// headerSafe keeps a value on one header line.
func headerSafe(v string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, v)
}
