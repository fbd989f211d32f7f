package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/automationz/moddeployd/internal/exclude"
)

// ErrSourceUnavailable is returned when the root of a watched tree cannot be
// traversed at all. Individual unreadable files never cause this; they are
// skipped.
var ErrSourceUnavailable = errors.New("source path unavailable")

// Fingerprint is a lightweight summary of a directory tree: how many regular
// files it holds, their combined size, and the newest modification time in
// unix seconds. It stands in for content hashing, which would be far too
// expensive to run on every scan tick.
type Fingerprint struct {
	Files     int   `json:"files"`
	Bytes     int64 `json:"bytes"`
	LatestMod int64 `json:"latest_mtime"`
}

// Equal reports whether two fingerprints match in all three fields.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f == other
}

// UnmarshalJSON accepts fractional byte counts and timestamps, truncating to
// whole units. Earlier tool versions wrote raw filesystem mtimes with
// sub-second precision.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var raw struct {
		Files     int     `json:"files"`
		Bytes     float64 `json:"bytes"`
		LatestMod float64 `json:"latest_mtime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Files = raw.Files
	f.Bytes = int64(raw.Bytes)
	f.LatestMod = int64(raw.LatestMod)
	return nil
}

// Scan walks the tree rooted at root and accumulates a Fingerprint over every
// regular file not matched by excl. Per-file stat errors are swallowed (the
// file is skipped); only a root that cannot be walked yields an error, wrapped
// as ErrSourceUnavailable.
func Scan(root string, excl *exclude.Set) (Fingerprint, error) {
	var fp Fingerprint

	info, err := os.Stat(root)
	if err != nil {
		return fp, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !info.IsDir() {
		return fp, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, root)
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// A file or subdirectory vanished or became unreadable mid-walk;
			// skip it rather than failing the whole scan.
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if excl.Match(rel) {
			return nil
		}

		fp.Files++
		fp.Bytes += info.Size()
		if mt := info.ModTime().Unix(); mt > fp.LatestMod {
			fp.LatestMod = mt
		}
		return nil
	})
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	return fp, nil
}
