// Package janitor periodically removes stale audio artifacts from the output
// directory: leftovers from crashed processes and files retained on request.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/metrics"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/security"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

// Defaults for the sweep.
const (
	DefaultSchedule = "@every 10m"
	DefaultMaxAge   = 30 * time.Minute
)

// Janitor sweeps one directory on a cron schedule.
type Janitor struct {
	dir    string
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
}

// New creates a janitor for dir. Files older than maxAge are removed.
func New(dir string, maxAge time.Duration) *Janitor {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Janitor{
		dir:    dir,
		maxAge: maxAge,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// Start schedules the sweep and runs one immediately.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	go j.run()
	log.Debug("Artifact janitor started", "dir", j.dir, "schedule", schedule, "max_age", j.maxAge)
	return nil
}

// Stop halts the schedule. The returned context is done once a running
// sweep has finished.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) run() {
	n, err := j.Sweep()
	if err != nil {
		log.Warn("Artifact sweep failed", "dir", j.dir, "error", err)
	}
	if n > 0 {
		log.Info("Removed stale artifacts", "count", n)
	}
}

// Sweep removes artifact files older than the max age and returns how many
// were removed. Only names produced by tts.ArtifactName are considered, and
// each candidate is confined to the directory before removal.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !tts.IsArtifactName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(j.dir, entry.Name())
		vp, err := security.ValidateConfinedPath(path, j.dir)
		if err != nil {
			log.Debug("Skipping artifact", "path", path, "error", err)
			continue
		}
		if err := os.Remove(vp.Path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn("Failed to remove stale artifact", "path", vp.Path, "error", err)
				metrics.RecordCleanupFailure()
			}
			continue
		}
		removed++
	}

	metrics.RecordStaleRemoved(removed)
	return removed, nil
}
