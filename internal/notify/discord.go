// Package notify posts deployment events to a Discord webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/automationz/moddeployd/internal/config"
)

// maxListedMods caps how many mod names a single message spells out before
// collapsing the rest into a count; Discord rejects bodies over 2000 chars.
const maxListedMods = 25

// Notifier receives lifecycle events from the deploy engine. Implementations
// must never block the engine on delivery failures.
type Notifier interface {
	// ChangesQueued fires when new changes enter the pending set.
	ChangesQueued(names []string)
	// DeployFinished fires after a batch deployed cleanly.
	DeployFinished(mode string, names []string, files int, bytes int64)
	// DeployFailed fires when a batch aborts.
	DeployFailed(err error)
}

// Nop is the Notifier used when no webhook is configured.
type Nop struct{}

func (Nop) ChangesQueued([]string) {}

func (Nop) DeployFinished(string, []string, int, int64) {}

func (Nop) DeployFailed(error) {}

// Discord posts messages to a webhook URL. Delivery failures are logged and
// swallowed; notifications are best effort.
type Discord struct {
	cfg    config.DiscordConfig
	client *http.Client
	logger *slog.Logger
}

// New returns a Discord notifier, or Nop when the config carries no webhook.
func New(cfg config.DiscordConfig, logger *slog.Logger) Notifier {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return Nop{}
	}
	return &Discord{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

func (d *Discord) ChangesQueued(names []string) {
	if !d.cfg.UpdateFound() {
		return
	}
	d.post(fmt.Sprintf("🔎 Detected changes in %s, deployment pending", modList(names)))
}

func (d *Discord) DeployFinished(mode string, names []string, files int, bytes int64) {
	if !d.cfg.DeployDone() {
		return
	}
	d.post(fmt.Sprintf("✅ Deployed %s via %s (%d files, %s)",
		modList(names), mode, files, humanBytes(bytes)))
}

func (d *Discord) DeployFailed(err error) {
	if !d.cfg.Failure() {
		return
	}
	d.post(fmt.Sprintf("❌ Deployment failed: %v", err))
}

func (d *Discord) post(text string) {
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		d.logger.Warn("failed to encode discord message", "error", err)
		return
	}

	resp, err := d.client.Post(d.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("failed to post discord message", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Warn("discord webhook rejected message", "status", resp.StatusCode)
	}
}

func modList(names []string) string {
	if len(names) > maxListedMods {
		return fmt.Sprintf("%s and %d more",
			strings.Join(names[:maxListedMods], ", "), len(names)-maxListedMods)
	}
	return strings.Join(names, ", ")
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
