// Package engine runs the watch loop: it fingerprints mod folders on a fixed
// interval, holds detected changes through a debounce and bundling window, and
// hands mature batches to the deployment dispatcher.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/automationz/moddeployd/internal/config"
	"github.com/automationz/moddeployd/internal/exclude"
	"github.com/automationz/moddeployd/internal/notify"
	"github.com/automationz/moddeployd/internal/state"
	"github.com/automationz/moddeployd/internal/transport"
)

// Engine owns the pending-change set and the single-flight deployment slot.
type Engine struct {
	cfg      *config.Config
	store    *state.Store
	logger   *slog.Logger
	notifier notify.Notifier
	excl     *exclude.Set

	// Swapped out in tests.
	now         func() time.Time
	newUploader func(cfg *config.Config) (transport.Uploader, error)

	mu       sync.Mutex
	pending  map[string]int64 // mod name -> unix ts of first detected change
	running  bool
	lastScan time.Time

	wg sync.WaitGroup
}

// New wires an engine from its collaborators. The store must already be
// loaded; the engine saves it after scans and deployments.
func New(cfg *config.Config, store *state.Store, notifier notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		store:       store,
		logger:      logger,
		notifier:    notifier,
		excl:        exclude.Compile(cfg.Deploy.ExcludePatterns),
		now:         time.Now,
		newUploader: transport.New,
		pending:     map[string]int64{},
	}
}

// Run executes the watch loop until ctx is cancelled, then waits for any
// in-flight deployment to finish. The first scan happens immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.recoverPending()

	interval := e.cfg.App.ScanInterval()
	e.logger.Info("watch loop started",
		"interval", interval,
		"mods", len(e.cfg.EnabledMods()),
		"mode", e.cfg.Deploy.Mode)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("watch loop stopping")
			e.wg.Wait()
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// Wait blocks until any in-flight deployment has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// tick is one iteration of the watch loop: scan, persist, maybe dispatch.
func (e *Engine) tick(ctx context.Context) {
	changed := e.scan()
	if len(changed) > 0 {
		e.logger.Info("changes detected", "mods", changed)
		if err := e.store.Save(); err != nil {
			e.logger.Error("failed to save state", "error", err)
		}
		e.notifier.ChangesQueued(changed)
	}
	e.maybeDeploy(ctx)
}

// recoverPending re-queues mods whose last scanned fingerprint was never
// deployed, so changes observed before a restart are not lost. The stored
// change timestamp carries over, meaning a change that already sat out its
// debounce deploys on the first mature tick.
func (e *Engine) recoverPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, mod := range e.cfg.EnabledMods() {
		rec, ok := e.store.Get(mod.Name)
		if !ok || rec.Current == nil {
			continue
		}
		if rec.Deployed != nil && rec.Current.Equal(*rec.Deployed) {
			continue
		}
		e.pending[mod.Name] = rec.LastChange
		e.logger.Info("recovered undeployed change", "mod", mod.Name)
	}
}
