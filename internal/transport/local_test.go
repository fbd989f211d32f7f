package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/automationz/moddeployd/internal/exclude"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestLocalUploadTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "mod.info", "name=coolmod")
	writeFile(t, src, "scripts/init.lua", "print('hi')")
	if err := os.MkdirAll(filepath.Join(src, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	up := newLocalUploader(dst)
	if err := up.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer up.Close()

	stats, err := up.UploadTree(context.Background(), src, "mods/coolmod", nil)
	if err != nil {
		t.Fatalf("UploadTree() failed: %v", err)
	}
	if stats.Files != 2 {
		t.Errorf("expected 2 files transferred, got %d", stats.Files)
	}
	wantBytes := int64(len("name=coolmod") + len("print('hi')"))
	if stats.Bytes != wantBytes {
		t.Errorf("expected %d bytes, got %d", wantBytes, stats.Bytes)
	}

	if got := readFile(t, dst, "mods/coolmod/mod.info"); got != "name=coolmod" {
		t.Errorf("unexpected mod.info content: %q", got)
	}
	if got := readFile(t, dst, "mods/coolmod/scripts/init.lua"); got != "print('hi')" {
		t.Errorf("unexpected init.lua content: %q", got)
	}

	// Empty source directories are still created at the destination.
	info, err := os.Stat(filepath.Join(dst, "mods", "coolmod", "empty"))
	if err != nil || !info.IsDir() {
		t.Errorf("expected empty directory to be mirrored, err=%v", err)
	}
}

func TestLocalUploadTreeOverwrites(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "data.txt", "v2")
	writeFile(t, dst, "coolmod/data.txt", "v1")

	up := newLocalUploader(dst)
	if err := up.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	if _, err := up.UploadTree(context.Background(), src, "coolmod", nil); err != nil {
		t.Fatalf("UploadTree() failed: %v", err)
	}
	if got := readFile(t, dst, "coolmod/data.txt"); got != "v2" {
		t.Errorf("expected overwritten content v2, got %q", got)
	}
}

func TestLocalUploadTreeExcludes(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "keep.lua", "ok")
	writeFile(t, src, "debug.log", "noise")
	writeFile(t, src, "nested/trace.log", "noise")

	up := newLocalUploader(dst)
	if err := up.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	stats, err := up.UploadTree(context.Background(), src, "coolmod", exclude.Compile([]string{"*.log"}))
	if err != nil {
		t.Fatalf("UploadTree() failed: %v", err)
	}
	if stats.Files != 1 {
		t.Errorf("expected 1 file transferred, got %d", stats.Files)
	}
	if _, err := os.Stat(filepath.Join(dst, "coolmod", "debug.log")); !os.IsNotExist(err) {
		t.Error("excluded debug.log should not exist at destination")
	}
	if _, err := os.Stat(filepath.Join(dst, "coolmod", "nested", "trace.log")); !os.IsNotExist(err) {
		t.Error("excluded nested/trace.log should not exist at destination")
	}
}

func TestLocalConnectCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "deep", "mirror")

	up := newLocalUploader(root)
	if err := up.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Errorf("expected mirror root to be created, err=%v", err)
	}
}
