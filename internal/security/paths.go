// Package security validates filesystem paths and subprocess arguments that
// cross the boundary between callers, engines and the interpreter processes
// they spawn.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Path validation failures.
var (
	ErrEmptyPath            = errors.New("path is empty")
	ErrOutsideConfinement   = errors.New("path is outside the allowed directory")
	ErrTraversal            = errors.New("path contains a parent directory reference")
	ErrNotFound             = errors.New("file does not exist")
	ErrNotAFile             = errors.New("not a regular file")
	ErrUnsupportedExtension = errors.New("unsupported audio file extension")
)

// AudioExtensions lists the file extensions accepted for audio input and output.
var AudioExtensions = []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac"}

// PathError records a failed validation together with the path that caused it.
// The path is meant for server-side logs; callers facing users should report
// the wrapped error only.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// ValidatedPath is an absolute, cleaned, symlink-resolved path to an existing
// regular file with an allowed audio extension.
type ValidatedPath struct {
	Path string
	Size int64
}

func (p ValidatedPath) String() string { return p.Path }

// IsAllowedAudioExt reports whether the file name has an allowed audio extension.
// The comparison is case-insensitive.
func IsAllowedAudioExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AudioExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ValidateConfinedPath checks that path resolves to a file inside dir. It is
// applied to every generated artifact before it is read, streamed or deleted.
func ValidateConfinedPath(path, dir string) (ValidatedPath, error) {
	const op = "confine"

	if strings.TrimSpace(path) == "" {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: ErrEmptyPath}
	}
	if strings.TrimSpace(dir) == "" {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: fmt.Errorf("confinement directory: %w", ErrEmptyPath)}
	}

	rootAbs, err := filepath.Abs(dir)
	if err != nil {
		return ValidatedPath{}, &PathError{Op: op, Path: dir, Err: err}
	}
	rootReal := rootAbs
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootReal = resolved
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: err}
	}
	if !within(abs, rootAbs) && !within(abs, rootReal) {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: ErrOutsideConfinement}
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: statError(err)}
	}
	if !within(real, rootReal) {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: ErrOutsideConfinement}
	}

	return checkFile(op, path, real)
}

// ValidateOpenPath checks a caller-supplied path that may live anywhere the
// process can read. Literal ".." segments are rejected before the path is
// resolved, whether or not the target exists.
func ValidateOpenPath(path string) (ValidatedPath, error) {
	const op = "open"

	if strings.TrimSpace(path) == "" {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: ErrEmptyPath}
	}
	if HasTraversal(path) {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: ErrTraversal}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: err}
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return ValidatedPath{}, &PathError{Op: op, Path: path, Err: statError(err)}
	}

	return checkFile(op, path, real)
}

// HasTraversal reports whether any segment of path is "..". Both slash styles
// are treated as separators regardless of platform.
func HasTraversal(path string) bool {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	for _, s := range segments {
		if s == ".." {
			return true
		}
	}
	return false
}

func checkFile(op, original, real string) (ValidatedPath, error) {
	info, err := os.Stat(real)
	if err != nil {
		return ValidatedPath{}, &PathError{Op: op, Path: original, Err: statError(err)}
	}
	if !info.Mode().IsRegular() {
		return ValidatedPath{}, &PathError{Op: op, Path: original, Err: ErrNotAFile}
	}
	// Content-addressed stores link a named file to an extensionless blob.
	if !IsAllowedAudioExt(original) || (filepath.Ext(real) != "" && !IsAllowedAudioExt(real)) {
		return ValidatedPath{}, &PathError{Op: op, Path: original, Err: ErrUnsupportedExtension}
	}
	return ValidatedPath{Path: real, Size: info.Size()}, nil
}

func statError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// within reports whether p is strictly inside root.
func within(p, root string) bool {
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
