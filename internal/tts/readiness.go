package tts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// BootstrapFunc performs the one-time environment setup of an engine.
type BootstrapFunc func(ctx context.Context) error

// BootstrapObserver is told about every finished bootstrap attempt.
type BootstrapObserver func(engine string, d time.Duration, err error)

// Readiness guards an engine's bootstrap. Concurrent callers share one
// in-flight attempt, success is latched for the life of the process and a
// failure is forgotten so that the next call tries again.
type Readiness struct {
	name      string
	bootstrap BootstrapFunc
	observers []BootstrapObserver

	group singleflight.Group

	mu       sync.Mutex
	state    ReadinessState
	attempts int
	lastErr  error
	gen      uint64
}

// NewReadiness returns a controller in the uninitialized state. No work is
// done until the first EnsureReady call.
func NewReadiness(name string, bootstrap BootstrapFunc, observers ...BootstrapObserver) *Readiness {
	return &Readiness{
		name:      name,
		bootstrap: bootstrap,
		observers: observers,
	}
}

// EnsureReady returns nil once the bootstrap has succeeded. The bootstrap runs
// detached from ctx, so a caller that gives up only stops waiting; the attempt
// itself continues for the callers still waiting on it.
func (r *Readiness) EnsureReady(ctx context.Context) error {
	if r.State() == StateReady {
		return nil
	}

	ch := r.group.DoChan(r.name, func() (interface{}, error) {
		return nil, r.attempt(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return NotReadyError(res.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Readiness) attempt(ctx context.Context) (err error) {
	r.mu.Lock()
	if r.state == StateReady {
		r.mu.Unlock()
		return nil
	}
	r.state = StateInitializing
	r.attempts++
	attempt, gen := r.attempts, r.gen
	r.mu.Unlock()

	log.Debug("Bootstrapping engine", "engine", r.name, "attempt", attempt)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("bootstrap panicked: %v", p)
		}
		d := time.Since(start)
		r.finish(gen, err)
		for _, observe := range r.observers {
			observe(r.name, d, err)
		}
		if err != nil {
			log.Warn("Engine bootstrap failed", "engine", r.name, "attempt", attempt, "duration", d, "error", err)
			return
		}
		log.Info("Engine ready", "engine", r.name, "attempt", attempt, "duration", d.Round(time.Millisecond))
	}()

	return r.bootstrap(ctx)
}

func (r *Readiness) finish(gen uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Reset was called while this attempt was in flight.
	if gen != r.gen {
		return
	}
	if err != nil {
		r.state = StateFailed
		r.lastErr = err
		return
	}
	r.state = StateReady
	r.lastErr = nil
}

// State returns the current bootstrap state.
func (r *Readiness) State() ReadinessState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attempts returns how many bootstraps have been started.
func (r *Readiness) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// LastError returns the error of the most recent failed attempt, or nil.
func (r *Readiness) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Reset returns to the uninitialized state. An attempt still in flight
// completes but no longer changes the state.
func (r *Readiness) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.state = StateUninitialized
	r.lastErr = nil
	r.group.Forget(r.name)
}
