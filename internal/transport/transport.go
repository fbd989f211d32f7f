package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/automationz/moddeployd/internal/config"
	"github.com/automationz/moddeployd/internal/exclude"
)

var (
	// ErrConfig means the selected deploy mode is missing required
	// configuration; nothing was transferred and the batch may be retried
	// after the config is fixed.
	ErrConfig = errors.New("transport configuration error")
	// ErrConnect means the session could not be opened or authenticated.
	ErrConnect = errors.New("transport connect failed")
	// ErrIO means a transfer failed after the session was established.
	ErrIO = errors.New("transport i/o failed")
)

// Stats accumulates what a tree transfer moved.
type Stats struct {
	Files int
	Bytes int64
}

// Add folds another transfer's counters into s.
func (s *Stats) Add(other Stats) {
	s.Files += other.Files
	s.Bytes += other.Bytes
}

// Uploader moves a local directory tree to a destination. Implementations are
// not safe for concurrent use; the dispatcher transfers batch entries
// sequentially over one session.
type Uploader interface {
	// Connect opens the session (protocol handshake, or directory setup for
	// the local mirror).
	Connect(ctx context.Context) error
	// UploadTree transfers every non-excluded file under localRoot to destRel,
	// a slash-separated path relative to the backend's configured root,
	// creating destination directories as needed and overwriting
	// unconditionally.
	UploadTree(ctx context.Context, localRoot, destRel string, excl *exclude.Set) (Stats, error)
	// Close tears down the session.
	Close() error
}

// New selects the uploader for the configured deploy mode. The choice is made
// once per deployment, not per file.
func New(cfg *config.Config) (Uploader, error) {
	switch cfg.Deploy.Mode {
	case config.ModeFTP:
		profile, err := cfg.Profile()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		return newFTPUploader(profile, cfg.App.Timeout()), nil

	case config.ModeSFTP:
		profile, err := cfg.Profile()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		return newSFTPUploader(profile, cfg.App.Timeout()), nil

	case config.ModeLocal:
		if strings.TrimSpace(cfg.Deploy.LocalDir) == "" {
			return nil, fmt.Errorf("%w: deploy.local_dir is empty", ErrConfig)
		}
		return newLocalUploader(cfg.Deploy.LocalDir), nil

	default:
		return nil, fmt.Errorf("%w: unknown deploy mode %q", ErrConfig, cfg.Deploy.Mode)
	}
}

// CleanRemote normalizes a destination path fragment: backslashes become
// forward slashes, stray CR/LF are stripped, and leading/trailing slashes are
// trimmed.
func CleanRemote(p string) string {
	p = strings.NewReplacer("\\", "/", "\r", "", "\n", "").Replace(p)
	return strings.Trim(p, "/")
}

// JoinRemote joins path fragments with forward slashes, skipping empty ones.
func JoinRemote(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// DestRel resolves the destination subpath for one mod: the explicitly
// configured remote path verbatim when set, otherwise <base>/<name>.
func DestRel(base, explicit, name string) string {
	if strings.TrimSpace(explicit) != "" {
		return CleanRemote(explicit)
	}
	return JoinRemote(CleanRemote(base), name)
}

// splitRemote breaks a slash-separated path into its non-empty segments.
func splitRemote(p string) []string {
	parts := make([]string, 0, 4)
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}
