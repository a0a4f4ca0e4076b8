package tts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Common TTS errors
var (
	// ErrEmptyText indicates missing or whitespace-only input text
	ErrEmptyText = errors.New("text is required and cannot be empty")

	// ErrTextTooLong indicates input text over the engine's character ceiling
	ErrTextTooLong = errors.New("text exceeds maximum length")

	// ErrInvalidOption indicates an option outside its valid range or format
	ErrInvalidOption = errors.New("invalid option")

	// ErrInvalidSpeed indicates speed value is out of range
	ErrInvalidSpeed = errors.New("speed must be between 0.5 and 2.0")

	// ErrNotReady indicates the engine bootstrap has not succeeded
	ErrNotReady = errors.New("TTS service not ready")

	// ErrUnknownEngine indicates an unknown engine name
	ErrUnknownEngine = errors.New("unknown TTS engine")

	// ErrInvalidArtifact indicates the engine returned an unusable path
	ErrInvalidArtifact = errors.New("invalid audio path generated")

	// ErrSynthesisFailed indicates the interpreter failed to produce audio
	ErrSynthesisFailed = errors.New("synthesis failed")
)

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Input errors
	ErrorCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorCodeTextTooLong   ErrorCode = "TEXT_TOO_LONG"
	ErrorCodeInvalidOption ErrorCode = "INVALID_OPTION"

	// Engine errors
	ErrorCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorCodeSpawnFailed       ErrorCode = "SPAWN_FAILED"
	ErrorCodeSynthesisFailed   ErrorCode = "SYNTHESIS_FAILED"

	// Request errors
	ErrorCodeSecurityViolation ErrorCode = "SECURITY_VIOLATION"
	ErrorCodeDeliveryFailed    ErrorCode = "DELIVERY_FAILED"

	// System errors
	ErrorCodeTimeout  ErrorCode = "TIMEOUT"
	ErrorCodeCanceled ErrorCode = "CANCELED"
	ErrorCodeInternal ErrorCode = "INTERNAL"
)

// TTSError represents a TTS-specific error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}

	// kind is the sentinel this error matches with errors.Is
	kind error
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel the error was created for. Every option error also
// matches ErrInvalidOption.
func (e *TTSError) Is(target error) bool {
	if e.kind != nil && target == e.kind {
		return true
	}
	return e.Code == ErrorCodeInvalidOption && target == ErrInvalidOption
}

// NewTTSError creates a new TTS error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// newKindError creates a TTS error that also matches the given sentinel.
func newKindError(code ErrorCode, kind error, message string, cause error) *TTSError {
	e := NewTTSError(code, message, cause)
	e.kind = kind
	return e
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	e.Context[key] = value
	return e
}

// IsInput returns true if the caller can fix the error by changing the request
func (e *TTSError) IsInput() bool {
	switch e.Code {
	case ErrorCodeInvalidInput, ErrorCodeTextTooLong, ErrorCodeInvalidOption:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the operation can be retried as-is
func (e *TTSError) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeEngineUnavailable, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// EmptyTextError returns the rejection for missing input text.
func EmptyTextError() *TTSError {
	return newKindError(ErrorCodeInvalidInput, ErrEmptyText, ErrEmptyText.Error(), nil)
}

// TextTooLongError returns the rejection for oversized input text. The message
// states both the limit and the actual length.
func TextTooLongError(limit, length int) *TTSError {
	msg := fmt.Sprintf("text exceeds maximum length of %d characters (got %d)", limit, length)
	return newKindError(ErrorCodeTextTooLong, ErrTextTooLong, msg, nil).
		WithContext("limit", limit).
		WithContext("length", length)
}

// InvalidOptionError reports a rejected option.
func InvalidOptionError(format string, args ...any) *TTSError {
	return newKindError(ErrorCodeInvalidOption, ErrInvalidOption, fmt.Sprintf(format, args...), nil)
}

// NotReadyError wraps a bootstrap failure.
func NotReadyError(cause error) *TTSError {
	return newKindError(ErrorCodeEngineUnavailable, ErrNotReady, ErrNotReady.Error(), cause)
}

// SynthesisFailedError reports a failed interpreter run together with its
// diagnostic output.
func SynthesisFailedError(detail string, cause error) *TTSError {
	msg := ErrSynthesisFailed.Error()
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += ": " + detail
	}
	return newKindError(ErrorCodeSynthesisFailed, ErrSynthesisFailed, msg, cause)
}

// InvalidArtifactError reports a generated path that failed confinement. The
// message never includes the path.
func InvalidArtifactError(cause error) *TTSError {
	return newKindError(ErrorCodeSecurityViolation, ErrInvalidArtifact, ErrInvalidArtifact.Error(), cause)
}

// CodeOf classifies any error into an ErrorCode.
func CodeOf(err error) ErrorCode {
	var ttsErr *TTSError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ttsErr):
		return ttsErr.Code
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCodeCanceled
	default:
		return ErrorCodeInternal
	}
}

var (
	absPathPattern   = regexp.MustCompile(`(^|[\s"'(=\[])((?:/|[A-Za-z]:\\)[^\s"'()<>,;:\]]+)`)
	tracebackPattern = regexp.MustCompile(`(?s)Traceback \(most recent call last\):.*`)
)

// PublicMessage renders err for a caller outside the process. Security
// violations collapse to a generic message, Python tracebacks are reduced to
// their final line and absolute paths outside allowedDir are masked.
func PublicMessage(err error, allowedDir string) string {
	if err == nil {
		return ""
	}

	var ttsErr *TTSError
	if errors.As(err, &ttsErr) && ttsErr.Code == ErrorCodeSecurityViolation {
		return ErrInvalidArtifact.Error()
	}

	msg := tracebackPattern.ReplaceAllStringFunc(err.Error(), lastLine)

	root := ""
	if allowedDir != "" {
		if abs, err := filepath.Abs(allowedDir); err == nil {
			root = abs + string(filepath.Separator)
		}
	}
	msg = absPathPattern.ReplaceAllStringFunc(msg, func(m string) string {
		sub := absPathPattern.FindStringSubmatch(m)
		prefix, p := sub[1], sub[2]
		if root != "" && strings.HasPrefix(p, root) {
			return m
		}
		return prefix + "<path>"
	})
	return strings.TrimSpace(msg)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
