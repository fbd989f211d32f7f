package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/automationz/moddeployd/internal/config"
	"github.com/automationz/moddeployd/internal/transport"
)

// maybeDeploy dispatches the mature batch, if there is one. Only one
// deployment runs at a time; the queue is re-evaluated as soon as a batch
// finishes cleanly, so a request arriving mid-deployment is never lost.
func (e *Engine) maybeDeploy(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	batch := e.matureBatchLocked()
	if len(batch) == 0 {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	// The deployment must survive daemon shutdown mid-transfer; Run waits for
	// it instead of cancelling it.
	bctx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runBatch(bctx, batch)
	}()
}

// matureBatchLocked selects the batch under e.mu. Nothing deploys until the
// oldest pending change has sat out both the debounce and the bundling
// window; the batch then takes every pending mod whose own change is past the
// debounce, leaving fresher ones for the next round. A queued mod whose
// folder is currently missing is not dispatchable; it stays pending, which
// also keeps the post-batch re-evaluation from spinning on it.
func (e *Engine) matureBatchLocked() []string {
	if len(e.pending) == 0 {
		return nil
	}

	now := e.now().Unix()
	debounce := int64(e.cfg.Deploy.Debounce() / time.Second)
	bundle := int64(e.cfg.Deploy.BundleWindow() / time.Second)

	earliest := int64(0)
	first := true
	for _, ts := range e.pending {
		if first || ts < earliest {
			earliest = ts
			first = false
		}
	}
	if now-earliest < debounce+bundle {
		return nil
	}

	var batch []string
	for name, ts := range e.pending {
		if now-ts < debounce {
			continue
		}
		mod, ok := e.modByName(name)
		if ok {
			if _, err := os.Stat(mod.LocalPath); err != nil {
				continue
			}
		}
		batch = append(batch, name)
	}
	sort.Strings(batch)
	return batch
}

// runBatch deploys the batch sequentially over one transport session. The
// first failed mod aborts the rest; mods transferred before the failure stay
// committed and leave the pending set, the others wait for the next tick.
func (e *Engine) runBatch(ctx context.Context, batch []string) {
	logger := e.logger.With("batch", uuid.NewString()[:8])
	logger.Info("starting deployment", "mods", batch, "mode", e.cfg.Deploy.Mode)

	uploader, err := e.newUploader(e.cfg)
	if err != nil {
		logger.Error("deployment aborted", "error", err)
		e.failBatch(err)
		return
	}
	if err := uploader.Connect(ctx); err != nil {
		logger.Error("deployment aborted", "error", err)
		e.failBatch(err)
		return
	}
	defer uploader.Close()

	var total transport.Stats
	var deployed []string
	var failure error
	for _, name := range batch {
		mod, ok := e.modByName(name)
		if !ok {
			// Config changed under a queued name; nothing to transfer.
			e.clearPending(name)
			continue
		}
		if _, err := os.Stat(mod.LocalPath); err != nil {
			// The folder vanished between scan and deploy; the rest of the
			// batch still ships.
			logger.Warn("skipping mod with missing source folder", "mod", name, "error", err)
			continue
		}

		destRel := transport.DestRel(e.cfg.Deploy.RemoteBase, mod.RemotePath, mod.Name)
		stats, err := uploader.UploadTree(ctx, mod.LocalPath, destRel, e.excl)
		if err != nil {
			failure = fmt.Errorf("deploy %s: %w", name, err)
			break
		}

		e.store.MarkDeployed(name)
		e.clearPending(name)
		deployed = append(deployed, name)
		total.Add(stats)
		logger.Info("mod deployed", "mod", name, "dest", destRel,
			"files", stats.Files, "bytes", stats.Bytes)
	}

	if err := e.store.Save(); err != nil {
		logger.Error("failed to save state", "error", err)
	}

	if failure != nil {
		logger.Error("deployment failed", "error", failure, "deployed", deployed)
		e.failBatch(failure)
		return
	}

	if len(deployed) > 0 {
		logger.Info("deployment finished",
			"mods", deployed, "files", total.Files, "bytes", total.Bytes)
		e.notifier.DeployFinished(e.cfg.Deploy.Mode, deployed, total.Files, total.Bytes)
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	// Changes that matured while this batch ran go out now rather than
	// waiting for the next tick.
	e.maybeDeploy(ctx)
}

// failBatch releases the deployment slot without rescheduling; whatever is
// still pending gets picked up on the next scan tick rather than retried in a
// tight loop.
func (e *Engine) failBatch(err error) {
	e.notifier.DeployFailed(err)
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

func (e *Engine) clearPending(name string) {
	e.mu.Lock()
	delete(e.pending, name)
	e.mu.Unlock()
}

func (e *Engine) modByName(name string) (config.Mod, bool) {
	for _, mod := range e.cfg.Mods {
		if mod.Name == name {
			return mod, true
		}
	}
	return config.Mod{}, false
}
