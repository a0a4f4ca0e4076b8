package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/deps"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/playback"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts/engines"
)

var (
	statusJSON bool

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(16)

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the engine status and check dependencies",
		Long: paragraph(fmt.Sprintf("\nReport the selected engine and check for %s, the engine's Python packages, model files and an audio player. Nothing is installed or downloaded.",
			keyword("Python"))),
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
}

type statusOutput struct {
	tts.EngineStatus
	OutputDir    string        `json:"outputDir"`
	Platform     string        `json:"platform"`
	Dependencies []deps.Status `json:"dependencies"`
	OK           bool          `json:"ok"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	selector, err := newSelector(cfg)
	if err != nil {
		return err
	}

	out := statusOutput{
		EngineStatus: selector.Status(ctx),
		OutputDir:    cfg.OutputDir,
		Platform:     playback.Detect().String(),
		OK:           true,
	}

	var report *deps.Report
	if r, ok := selector.Engine().(interface{ Requirements() engines.Requirements }); ok {
		report, err = deps.Check(ctx, r.Requirements())
		if err != nil && !errors.Is(err, deps.ErrMissing) {
			return err
		}
		out.Dependencies = report.Results
		out.OK = report.OK()
	}

	w := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("unable to encode status: %w", err)
		}
	} else {
		var b strings.Builder
		row := func(label, value string) {
			b.WriteString(labelStyle.Render(label) + value + "\n")
		}
		row("Engine", fmt.Sprintf("%s (%s)", out.EngineName, out.EngineType))
		row("State", out.State)
		row("Capabilities", strings.Join(out.Capabilities, ", "))
		row("Max characters", fmt.Sprint(out.MaxCharacters))
		row("Output dir", out.OutputDir)
		row("Platform", out.Platform)
		if selector.FellBack() {
			row("Note", "configured engine "+keyword(cfg.Engine)+" is unknown")
		}
		b.WriteString("\n")
		if report != nil {
			b.WriteString(report.Render())
		}
		fmt.Fprint(w, b.String())
	}

	if !out.OK {
		return deps.ErrMissing
	}
	return nil
}
