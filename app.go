package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/cache"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/config"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/download"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/janitor"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/metrics"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/orchestrator"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/playback"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts/engines"
)

const (
	downloadTimeout = 30 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// app is the set of services shared by every transport of one process.
type app struct {
	selector *tts.Selector
	service  *orchestrator.Service
	cache    *cache.AudioCache
	player   *playback.Player
}

// newSelector builds the process engine. Nothing is bootstrapped yet.
func newSelector(c config.Config) (*tts.Selector, error) {
	defaults, err := engines.LoadDefaults()
	if err != nil {
		return nil, err
	}

	factories := engines.Factories(engines.Config{
		Python:      c.Python,
		OutputDir:   c.OutputDir,
		CacheDir:    c.CacheDir,
		AutoInstall: c.AutoInstall,
		Timeout:     c.Synthesis.Timeout,
		Defaults:    defaults,
		Downloader:  &download.Client{Timeout: downloadTimeout},
		Observers:   []tts.BootstrapObserver{metrics.RecordBootstrap},
	})
	return tts.NewSelector(c.Engine, factories, tts.DefaultEngine)
}

func newApp(c config.Config) (*app, error) {
	selector, err := newSelector(c)
	if err != nil {
		return nil, err
	}

	a := &app{selector: selector, player: playback.New(c.Playback.Timeout)}

	if c.Cache.Enabled {
		dir := filepath.Join(c.CacheDir, "audio")
		a.cache, err = cache.NewAudioCache(dir, int64(c.Cache.MaxSizeMB)*1024*1024)
		if err != nil {
			log.Warn("Synthesis cache disabled", "dir", dir, "error", err)
			a.cache = nil
		}
	}

	a.service, err = orchestrator.New(selector, orchestrator.Config{
		OutputDir:     c.OutputDir,
		Timeout:       c.Synthesis.Timeout,
		MaxConcurrent: c.Synthesis.MaxConcurrent,
		StripMarkdown: c.Text.StripMarkdown,
		Cache:         a.cache,
	})
	if err != nil {
		a.closeCache()
		return nil, fmt.Errorf("failed to start orchestrator: %w", err)
	}

	log.Info("TTS engine selected", "engine", selector.EngineName(), "fallback", selector.FellBack())
	return a, nil
}

// startJanitor begins the periodic sweep of the output directory.
func startJanitor(c config.Config) (*janitor.Janitor, error) {
	j := janitor.New(c.OutputDir, c.Janitor.MaxAge)
	if err := j.Start(c.Janitor.Schedule); err != nil {
		return nil, err
	}
	return j, nil
}

func (a *app) Close() {
	a.service.Close()
	a.closeCache()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.selector.Shutdown(ctx); err != nil {
		log.Debug("Engine shutdown", "error", err)
	}
}

func (a *app) closeCache() {
	if a.cache == nil {
		return
	}
	if err := a.cache.Close(); err != nil {
		log.Warn("Could not close synthesis cache", "error", err)
	}
}
