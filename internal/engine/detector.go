package engine

import (
	"github.com/automationz/moddeployd/internal/fingerprint"
)

// scan fingerprints every enabled mod and returns the names that just entered
// the pending set. A mod already pending keeps its original change timestamp;
// further edits extend nothing, the debounce clock runs from the first one.
func (e *Engine) scan() []string {
	scanTime := e.now()
	now := scanTime.Unix()
	e.mu.Lock()
	e.lastScan = scanTime
	e.mu.Unlock()

	var newly []string
	enabled := map[string]bool{}
	for _, mod := range e.cfg.EnabledMods() {
		enabled[mod.Name] = true

		fp, err := fingerprint.Scan(mod.LocalPath, e.excl)
		if err != nil {
			e.logger.Warn("skipping unreadable mod folder", "mod", mod.Name, "error", err)
			continue
		}
		if !e.store.UpdateCurrent(mod.Name, fp, now) {
			continue
		}

		e.mu.Lock()
		if _, ok := e.pending[mod.Name]; !ok {
			e.pending[mod.Name] = now
			newly = append(newly, mod.Name)
		}
		e.mu.Unlock()
	}

	// Mods disabled (or removed from config) since they were queued must not
	// deploy.
	e.mu.Lock()
	for name := range e.pending {
		if !enabled[name] {
			delete(e.pending, name)
			e.logger.Info("dropping pending change for disabled mod", "mod", name)
		}
	}
	e.mu.Unlock()

	return newly
}
