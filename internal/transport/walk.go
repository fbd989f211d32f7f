package transport

import (
	"os"
	"path/filepath"

	"github.com/automationz/moddeployd/internal/exclude"
)

// walkTree visits the tree rooted at localRoot in a stable order. dirFn is
// called for every directory (the root itself gets rel ""), fileFn for every
// regular file not matched by excl. rel paths are forward-slash separated.
// Both backends share this walk so their notion of "the tree" is identical
// to the fingerprint engine's.
func walkTree(localRoot string, excl *exclude.Set, dirFn func(rel string) error, fileFn func(path, rel string, info os.FileInfo) error) error {
	return filepath.Walk(localRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(localRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		} else {
			rel = filepath.ToSlash(rel)
		}

		if info.IsDir() {
			return dirFn(rel)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if excl.Match(rel) {
			return nil
		}
		return fileFn(path, rel, info)
	})
}
