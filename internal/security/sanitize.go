package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxArgLen bounds non-text arguments such as voice or language ids.
	DefaultMaxArgLen = 256

	// DefaultMaxTextLen is used by SanitizeTextArg when no limit is given.
	DefaultMaxTextLen = 5000
)

// Argument sanitization failures.
var (
	ErrEmptyArg     = errors.New("value is required and cannot be empty")
	ErrArgTooLong   = errors.New("value is too long")
	ErrDoubleDash   = errors.New("value must not contain '--'")
	ErrSlash        = errors.New("value must not contain path separators")
	ErrInvalidChars = errors.New("value contains invalid characters")
	ErrNotString    = errors.New("value must be a string")
)

var (
	argPattern     = regexp.MustCompile(`^[A-Za-z0-9 _.,:@+=-]+$`)
	pathArgPattern = regexp.MustCompile(`^[A-Za-z0-9 _.,:@+=~/\\-]+$`)
)

// ArgOptions controls SanitizeArg.
type ArgOptions struct {
	AllowEmpty bool
	AllowSlash bool
	// MaxLen defaults to DefaultMaxArgLen when zero.
	MaxLen int
}

// SanitizeArg validates a short, non-free-text value destined for a
// subprocess argument list.
func SanitizeArg(value string, opts ArgOptions) (string, error) {
	if value == "" {
		if opts.AllowEmpty {
			return "", nil
		}
		return "", ErrEmptyArg
	}

	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxArgLen
	}
	if n := utf8.RuneCountInString(value); n > maxLen {
		return "", fmt.Errorf("%w: %d characters (max %d)", ErrArgTooLong, n, maxLen)
	}
	if strings.Contains(value, "--") {
		return "", ErrDoubleDash
	}
	if !opts.AllowSlash && strings.ContainsAny(value, `/\`) {
		return "", ErrSlash
	}

	pattern := argPattern
	if opts.AllowSlash {
		pattern = pathArgPattern
	}
	if !pattern.MatchString(value) {
		return "", ErrInvalidChars
	}
	return value, nil
}

// SanitizeTextArg validates free text for synthesis. Sentence punctuation and
// any printable unicode are allowed, control characters other than newlines
// and tabs are dropped and the text is NFC-normalized. The result must be
// passed as a single argv element.
func SanitizeTextArg(value any, maxLen int) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", ErrNotString
	}
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyArg
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLen
	}

	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\t', r == '\r':
			return r
		case r == utf8.RuneError, unicode.IsControl(r):
			return -1
		}
		return r
	}, s)

	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyArg
	}
	if n := utf8.RuneCountInString(s); n > maxLen {
		return "", fmt.Errorf("%w: %d characters (max %d)", ErrArgTooLong, n, maxLen)
	}
	return s, nil
}
