package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/caarlos0/ctrlc"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the Model Context Protocol over stdio",
	Long: paragraph(fmt.Sprintf("\nServe the %s, %s and %s tools over stdio. This is what runs when no command is given.",
		keyword("synthesize_text"), keyword("play_audio"), keyword("tts_status"))),
	Example: paragraph("local-voice-mcp mcp\nLOCAL_VOICE_ENGINE=kokoro local-voice-mcp"),
	Args:    cobra.NoArgs,
	RunE:    runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := startJanitor(cfg)
	if err != nil {
		return err
	}
	defer j.Stop()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a.selector.Prewarm(context.WithoutCancel(ctx))
	srv := newMCPServer(a)

	if err := ctrlc.Default.Run(ctx, func() error {
		return srv.Run(ctx)
	}); err != nil {
		if errors.As(err, &ctrlc.ErrorCtrlC{}) {
			log.Warn("Exiting...")
			return nil
		}
		return fmt.Errorf("failed while serving MCP: %w", err)
	}
	return nil
}

func newMCPServer(a *app) *mcpserver.Server {
	return mcpserver.New(mcpserver.Config{
		Version: Version,
		Service: a.service,
		Engine:  a.selector,
		Player:  a.player,

		RetainedMaxAge: cfg.Janitor.MaxAge,
	})
}
