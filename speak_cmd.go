package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/orchestrator"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/playback"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

var (
	speakKeep   bool
	speakNoPlay bool
	speakOpts   speakFlags

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT|-]",
		Short: "Synthesize text and play it once",
		Long: paragraph(fmt.Sprintf("\nSynthesize text with the configured engine and play it. Text is read from %s when the argument is %s or stdin is a pipe.",
			keyword("stdin"), keyword("-"))),
		Example: paragraph("local-voice-mcp speak \"Hello there\"\necho \"# Notes\" | local-voice-mcp speak --strip-markdown\nlocal-voice-mcp speak --keep --no-play \"Save this\""),
		Args:    cobra.ArbitraryArgs,
		RunE:    runSpeak,
	}

	playVolume float64
	playDelete bool

	playCmd = &cobra.Command{
		Use:     "play FILE",
		Short:   "Play an audio file with the system player",
		Example: paragraph("local-voice-mcp play out.wav --volume 0.5"),
		Args:    cobra.ExactArgs(1),
		RunE:    runPlay,
	}
)

// speakFlags holds the synthesis option flags. Unchanged flags stay unset so
// the engine defaults apply.
type speakFlags struct {
	voice          string
	language       string
	model          string
	referenceAudio string
	speed          float64
	exaggeration   float64
	cfgWeight      float64
	volume         float64
}

func init() {
	f := speakCmd.Flags()
	f.BoolVar(&speakKeep, "keep", false, "keep the audio file and print its path")
	f.BoolVar(&speakNoPlay, "no-play", false, "synthesize without playing")
	f.StringVar(&speakOpts.voice, "voice", "", "engine voice id")
	f.StringVar(&speakOpts.language, "language", "", "language code, e.g. en-us")
	f.StringVar(&speakOpts.model, "model", "", "model name for engines that host several")
	f.StringVar(&speakOpts.referenceAudio, "reference-audio", "", "voice sample to clone")
	f.Float64Var(&speakOpts.speed, "speed", 1, "speech rate multiplier")
	f.Float64Var(&speakOpts.exaggeration, "exaggeration", 0.2, "emotional intensity")
	f.Float64Var(&speakOpts.cfgWeight, "cfg-weight", 1, "pacing and adherence to the reference voice")
	f.Float64Var(&speakOpts.volume, "volume", 1, "playback volume, 0 to 2")

	playCmd.Flags().Float64Var(&playVolume, "volume", 1, "playback volume, 0 to 2")
	playCmd.Flags().BoolVar(&playDelete, "delete", false, "delete the file after playing")
}

// options builds tts.Options from the flags that were set on cmd.
func (s speakFlags) options(cmd *cobra.Command) tts.Options {
	changed := cmd.Flags().Changed
	opts := tts.Options{
		Voice:          s.voice,
		Language:       s.language,
		Model:          s.model,
		ReferenceAudio: s.referenceAudio,
	}
	if changed("speed") {
		opts.Speed = &s.speed
	}
	if changed("exaggeration") {
		opts.Exaggeration = &s.exaggeration
	}
	if changed("cfg-weight") {
		opts.CFGWeight = &s.cfgWeight
	}
	return opts
}

func volumeFlag(cmd *cobra.Command, v *float64) *float64 {
	if !cmd.Flags().Changed("volume") {
		return nil
	}
	return v
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func readText(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		args = nil
	} else if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	pipe, err := stdinIsPipe()
	if err != nil {
		return "", err
	}
	if !pipe {
		return "", errors.New("no text given; pass it as an argument or pipe it to stdin")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("unable to read from stdin: %w", err)
	}
	return string(b), nil
}

func runSpeak(cmd *cobra.Command, args []string) error {
	text, err := readText(args)
	if err != nil {
		return err
	}
	volume := volumeFlag(cmd, &speakOpts.volume)
	if err := playback.ValidateVolume(volume); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.service.Handle(ctx, orchestrator.Request{
		Text:         text,
		Options:      speakOpts.options(cmd),
		KeepArtifact: speakKeep,
	}, func(ctx context.Context, art orchestrator.Artifact) error {
		for _, w := range art.Warnings {
			log.Warn(w)
		}
		log.Info("Speech synthesized", "engine", art.Engine, "size", humanize.Bytes(uint64(art.Size)), "cached", art.Cached) //nolint:gosec
		if speakNoPlay {
			return nil
		}
		res := a.player.Play(ctx, art.Path, volume, false)
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("speak failed: %s", a.service.PublicMessage(err))
	}
	if out.Retained {
		fmt.Fprintln(cmd.OutOrStdout(), out.Artifact.Path)
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	volume := volumeFlag(cmd, &playVolume)
	if err := playback.ValidateVolume(volume); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := playback.New(cfg.Playback.Timeout).Play(ctx, args[0], volume, playDelete)
	if res.DeletionMessage != "" {
		log.Info(res.DeletionMessage)
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	log.Info(res.Message, "player", res.Player)
	return nil
}
