// Package main provides the entry point for the local-voice-mcp server.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool

	// cfg is filled in by loadConfig before any command runs.
	cfg       config.Config
	logCloser = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "local-voice-mcp",
		Short: "Local text-to-speech for MCP clients and HTTP callers",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text with %s. Serves the Model Context Protocol over stdio by default; run %s for the HTTP API.",
				keyword("local Python TTS engines"), keyword("serve")),
		),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: loadConfig,
		RunE:              runMCP,
	}
)

// loadConfig reads .env, the config file, the environment and flags, in
// increasing precedence, and sets up logging.
func loadConfig(*cobra.Command, []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Warn("Could not load .env", "error", err)
	}

	v := viper.GetViper()
	used, err := config.Setup(v, configFile)
	if err != nil {
		return err
	}

	cfg, err = config.Load(v)
	if err != nil {
		return err
	}

	closer, err := setupLog(cfg.Log, debug)
	if err != nil {
		return err
	}
	logCloser = closer

	if used != "" {
		config.Watch(v, func(c config.Config) {
			if err := setLogLevel(c.Log.Level, debug); err != nil {
				log.Warn("Could not apply log level", "error", err)
			}
		})
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	_ = logCloser()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is "+config.AppName+".yml in the user config dir)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.StringP("engine", "e", "", "TTS engine: chatterbox, kokoro or coqui")
	flags.String("python", "", "Python interpreter (default searches PATH)")
	flags.String("output-dir", "", "directory for generated audio")
	flags.Bool("strip-markdown", false, "convert markdown input to plain text before synthesis")
	flags.String("log-format", "", "log format: auto, text or json")

	// Config bindings
	_ = viper.BindPFlag("engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("python", flags.Lookup("python"))
	_ = viper.BindPFlag("output_dir", flags.Lookup("output-dir"))
	_ = viper.BindPFlag("text.strip_markdown", flags.Lookup("strip-markdown"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(mcpCmd, serveCmd, speakCmd, playCmd, statusCmd, configCmd, manCmd)
}
