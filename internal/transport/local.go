package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/automationz/moddeployd/internal/exclude"
)

// localUploader mirrors trees into a local directory. It is used when another
// tool (rsync jobs, shared mounts) handles the final hop to the server.
type localUploader struct {
	root string
}

func newLocalUploader(root string) *localUploader {
	return &localUploader{root: root}
}

func (l *localUploader) Connect(_ context.Context) error {
	if err := os.MkdirAll(l.root, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return nil
}

func (l *localUploader) Close() error {
	return nil
}

func (l *localUploader) UploadTree(_ context.Context, localRoot, destRel string, excl *exclude.Set) (Stats, error) {
	destRoot := filepath.Join(l.root, filepath.FromSlash(destRel))

	var stats Stats
	err := walkTree(localRoot, excl,
		func(rel string) error {
			dir := filepath.Join(destRoot, filepath.FromSlash(rel))
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("%w: mkdir %s: %v", ErrIO, dir, err)
			}
			return nil
		},
		func(path, rel string, info os.FileInfo) error {
			dst := filepath.Join(destRoot, filepath.FromSlash(rel))
			if err := copyFile(path, dst, info); err != nil {
				return fmt.Errorf("%w: copy %s: %v", ErrIO, rel, err)
			}
			stats.Files++
			stats.Bytes += info.Size()
			return nil
		})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// copyFile mirrors src to dst with an atomic write: content goes to a temp
// file in the destination directory which is then renamed into place. Mode
// and modification time are carried over from the source.
func copyFile(src, dst string, info os.FileInfo) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".moddeployd-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(info.Mode().Perm()); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return err
	}

	mtime := info.ModTime()
	return os.Chtimes(dst, mtime, mtime)
}
