package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/httpapi"
)

var (
	serveMCP bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: paragraph(fmt.Sprintf("\nRun the HTTP API. Requests to %s must carry the configured %s header.",
			keyword("POST /tts"), keyword("X-API-Key"))),
		Example: paragraph("LOCAL_VOICE_HTTP_API_KEY=secret local-voice-mcp serve\nlocal-voice-mcp serve --mcp --addr 127.0.0.1:8080"),
		Args:    cobra.NoArgs,
		RunE:    runServe,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "also serve MCP over stdio")
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:59125)")
	serveCmd.Flags().String("api-key", "", "API key required in X-API-Key")
	_ = viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("http.api_key", serveCmd.Flags().Lookup("api-key"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	api, err := httpapi.New(httpapi.Config{
		Addr:                 cfg.HTTP.Addr,
		APIKey:               cfg.HTTP.APIKey,
		AllowUnauthenticated: cfg.HTTP.AllowUnauthenticated,
		RateLimit:            cfg.HTTP.RateLimit,
		RateBurst:            cfg.HTTP.RateBurst,
		ShutdownTimeout:      cfg.HTTP.ShutdownTimeout,
		WriteTimeout:         cfg.Synthesis.Timeout + time.Minute,
	}, a.service, a.selector)
	if err != nil {
		return err
	}
	if cfg.HTTP.AllowUnauthenticated && cfg.HTTP.APIKey == "" {
		log.Warn("HTTP API is running without authentication", "addr", api.Addr())
	}

	j, err := startJanitor(cfg)
	if err != nil {
		return err
	}
	defer j.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.selector.Prewarm(context.WithoutCancel(ctx))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Run(ctx)
	})
	if serveMCP {
		g.Go(func() error {
			// The MCP client closing stdin ends the whole process.
			defer stop()
			return newMCPServer(a).Run(ctx)
		})
	}
	return g.Wait()
}
