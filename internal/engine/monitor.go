package engine

import (
	"context"
	"time"
)

// Status is a point-in-time snapshot of the engine for operator commands.
type Status struct {
	// Pending maps queued mod names to the unix time of their first change.
	Pending map[string]int64
	// Busy reports whether a deployment is in flight.
	Busy bool
	// LastScan is when the most recent detection pass ran; zero before the
	// first one.
	LastScan time.Time
}

// Status returns a snapshot; the pending map is a copy.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending := make(map[string]int64, len(e.pending))
	for name, ts := range e.pending {
		pending[name] = ts
	}
	return Status{Pending: pending, Busy: e.running, LastScan: e.lastScan}
}

// ScanNow runs one full cycle outside the periodic loop: detect, persist,
// notify, and dispatch whatever is mature. It returns the mods that newly
// changed; callers that want the triggered deployment to finish follow up
// with Wait.
func (e *Engine) ScanNow(ctx context.Context) ([]string, error) {
	changed := e.scan()
	saveErr := e.store.Save()
	if len(changed) > 0 {
		e.notifier.ChangesQueued(changed)
	}
	e.maybeDeploy(ctx)
	return changed, saveErr
}

// TestConnection opens a session over the configured transport and closes it
// again without transferring anything.
func (e *Engine) TestConnection(ctx context.Context) error {
	uploader, err := e.newUploader(e.cfg)
	if err != nil {
		return err
	}
	if err := uploader.Connect(ctx); err != nil {
		return err
	}
	return uploader.Close()
}
