package tts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestTTSError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := SynthesisFailedError("RuntimeError: CUDA out of memory", cause)

	if !errors.Is(err, ErrSynthesisFailed) {
		t.Error("errors.Is(ErrSynthesisFailed) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if want := "synthesis failed: RuntimeError: CUDA out of memory: exit status 1"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("request abc: %w", err)
	var ttsErr *TTSError
	if !errors.As(wrapped, &ttsErr) || ttsErr.Code != ErrorCodeSynthesisFailed {
		t.Errorf("errors.As() = %v", ttsErr)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		input     bool
		retryable bool
	}{
		{name: "empty text", err: EmptyTextError(), code: ErrorCodeInvalidInput, input: true},
		{name: "too long", err: TextTooLongError(10, 11), code: ErrorCodeTextTooLong, input: true},
		{name: "bad option", err: InvalidOptionError("speed must be positive"), code: ErrorCodeInvalidOption, input: true},
		{name: "not ready", err: NotReadyError(errors.New("pip failed")), code: ErrorCodeEngineUnavailable, retryable: true},
		{name: "artifact", err: InvalidArtifactError(errors.New("outside")), code: ErrorCodeSecurityViolation},
		{name: "timeout", err: NewTTSError(ErrorCodeTimeout, "synthesis timed out", nil), code: ErrorCodeTimeout, retryable: true},
		{name: "plain deadline", err: context.DeadlineExceeded, code: ErrorCodeTimeout},
		{name: "plain cancel", err: fmt.Errorf("wrapped: %w", context.Canceled), code: ErrorCodeCanceled},
		{name: "unknown", err: errors.New("disk full"), code: ErrorCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.code {
				t.Errorf("CodeOf() = %s, want %s", got, tt.code)
			}
			var ttsErr *TTSError
			if errors.As(tt.err, &ttsErr) {
				if ttsErr.IsInput() != tt.input {
					t.Errorf("IsInput() = %v, want %v", ttsErr.IsInput(), tt.input)
				}
				if ttsErr.IsRetryable() != tt.retryable {
					t.Errorf("IsRetryable() = %v, want %v", ttsErr.IsRetryable(), tt.retryable)
				}
			}
		})
	}

	if CodeOf(nil) != "" {
		t.Error("CodeOf(nil) should be empty")
	}
}

func TestTextTooLongContext(t *testing.T) {
	err := TextTooLongError(2000, 2001)
	if err.Context["limit"] != 2000 || err.Context["length"] != 2001 {
		t.Errorf("Context = %v", err.Context)
	}
}

func TestPublicMessage(t *testing.T) {
	outDir := t.TempDir()
	inside := filepath.Join(outDir, "chatterbox-1.wav")

	tests := []struct {
		name       string
		err        error
		want       string
		notContain []string
	}{
		{
			name: "security violation is generic",
			err:  InvalidArtifactError(errors.New(`confined "/etc/passwd": outside`)),
			want: "invalid audio path generated",
		},
		{
			name:       "outside path masked",
			err:        errors.New("open /home/alice/.ssh/id_rsa: permission denied"),
			want:       "open <path>: permission denied",
			notContain: []string{"alice"},
		},
		{
			name: "inside path kept",
			err:  fmt.Errorf("failed to write %s", inside),
			want: "failed to write " + inside,
		},
		{
			name: "traceback collapsed",
			err: SynthesisFailedError(strings.Join([]string{
				"Traceback (most recent call last):",
				`  File "/opt/venv/lib/python3.11/site-packages/chatterbox/tts.py", line 10, in generate`,
				"    raise RuntimeError('boom')",
				"RuntimeError: boom",
			}, "\n"), nil),
			want:       "synthesis failed: RuntimeError: boom",
			notContain: []string{"site-packages", "Traceback"},
		},
		{
			name: "urls untouched",
			err:  errors.New("download failed: https://github.com/nazdridoy/kokoro-tts returned 404"),
			want: "download failed: https://github.com/nazdridoy/kokoro-tts returned 404",
		},
		{
			name: "fractions untouched",
			err:  errors.New("speed 3/2 rejected"),
			want: "speed 3/2 rejected",
		},
		{
			name: "windows path masked",
			err:  errors.New(`cannot open C:\Users\bob\voice.wav`),
			want: "cannot open <path>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PublicMessage(tt.err, outDir)
			if got != tt.want {
				t.Errorf("PublicMessage() = %q, want %q", got, tt.want)
			}
			for _, s := range tt.notContain {
				if strings.Contains(got, s) {
					t.Errorf("PublicMessage() = %q leaks %q", got, s)
				}
			}
		})
	}

	if PublicMessage(nil, outDir) != "" {
		t.Error("PublicMessage(nil) should be empty")
	}
}
