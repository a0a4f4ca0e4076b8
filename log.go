package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/config"
)

func init() {
	// Override the default error level style.
	styles := log.DefaultStyles()
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("204")).
		Foreground(lipgloss.Color("0"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	styles.Values["error"] = lipgloss.NewStyle().Bold(true)
	log.SetStyles(styles)
	log.SetOutput(os.Stderr)
}

// setupLog points the process logger at stderr or cfg.File. Stdout is left
// alone; it carries the MCP protocol.
func setupLog(cfg config.LogConfig, debug bool) (func() error, error) {
	closer := func() error { return nil }
	if err := setLogLevel(cfg.Level, debug); err != nil {
		return closer, err
	}
	tty := term.IsTerminal(int(os.Stderr.Fd()))

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil { //nolint:gosec
			return closer, fmt.Errorf("unable to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
		if err != nil {
			return closer, fmt.Errorf("unable to open log file: %w", err)
		}
		log.SetOutput(f)
		closer = f.Close
		tty = false
	}

	switch cfg.Format {
	case "json":
		log.SetFormatter(log.JSONFormatter)
	case "text":
		log.SetFormatter(log.TextFormatter)
	default:
		if tty {
			log.SetFormatter(log.TextFormatter)
		} else {
			log.SetFormatter(log.JSONFormatter)
		}
	}
	log.SetReportTimestamp(true)
	return closer, nil
}

func setLogLevel(level string, debug bool) error {
	if debug {
		level = "debug"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}
