package tts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Speed bounds shared by every engine that honors a rate multiplier.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// Range is an inclusive numeric bound for a float option.
type Range struct {
	Min, Max float64
}

// Contains reports whether v is a finite value within the range.
func (r Range) Contains(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", formatFloat(r.Min), formatFloat(r.Max))
}

// SpeedRange is the accepted speed multiplier range.
var SpeedRange = Range{Min: MinSpeed, Max: MaxSpeed}

// CheckRange rejects a set option that falls outside r. Unset options pass.
func CheckRange(name string, v *float64, r Range) error {
	if v == nil {
		return nil
	}
	if !r.Contains(*v) {
		return InvalidOptionError("%s must be between %s and %s (got %s)",
			name, formatFloat(r.Min), formatFloat(r.Max), formatFloat(*v))
	}
	return nil
}

// CheckSpeed validates a speed multiplier.
func CheckSpeed(v *float64) error {
	if v == nil || SpeedRange.Contains(*v) {
		return nil
	}
	msg := fmt.Sprintf("%s (got %s)", ErrInvalidSpeed, formatFloat(*v))
	return newKindError(ErrorCodeInvalidOption, ErrInvalidSpeed, msg, nil)
}

// ResolveFloat applies the option precedence: the call-time value, then the
// environment default, then the built-in default. Only nil counts as unset,
// so an explicit zero at either level is kept.
func ResolveFloat(call, env *float64, builtin float64) float64 {
	if call != nil {
		return *call
	}
	if env != nil {
		return *env
	}
	return builtin
}

// ResolveString is the string counterpart of ResolveFloat.
func ResolveString(call, env, builtin string) string {
	if s := strings.TrimSpace(call); s != "" {
		return s
	}
	if s := strings.TrimSpace(env); s != "" {
		return s
	}
	return builtin
}

// ValidateText rejects empty, whitespace-only and oversized text. Length is
// counted in characters and the limit is inclusive.
func ValidateText(text string, maxChars int) error {
	if strings.TrimSpace(text) == "" {
		return EmptyTextError()
	}
	if n := utf8.RuneCountInString(text); maxChars > 0 && n > maxChars {
		return TextTooLongError(maxChars, n)
	}
	return nil
}

// Key returns a stable representation of the set options. Engines call it on
// fully resolved options to build cache keys.
func (o Options) Key() string {
	var b strings.Builder
	add := func(k, v string) {
		if v == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	addf := func(k string, v *float64) {
		if v != nil {
			add(k, formatFloat(*v))
		}
	}

	add("ref", o.ReferenceAudio)
	addf("speed", o.Speed)
	add("lang", strings.ToLower(o.Language))
	add("voice", o.Voice)
	addf("exag", o.Exaggeration)
	addf("cfg", o.CFGWeight)
	add("model", o.Model)
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Float returns a pointer to v, for building Options literals.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
