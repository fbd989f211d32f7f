package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/automationz/moddeployd/internal/fingerprint"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "mod_state.json")

	store, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	fp := fingerprint.Fingerprint{Files: 3, Bytes: 1024, LatestMod: 1700000000}
	if !store.UpdateCurrent("@CF", fp, 1700000100) {
		t.Fatal("first update must report a change")
	}
	store.MarkDeployed("@CF")

	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	rec, ok := reloaded.Get("@CF")
	if !ok {
		t.Fatal("record missing after reload")
	}
	if rec.Current == nil || !rec.Current.Equal(fp) {
		t.Errorf("current fingerprint = %+v, want %+v", rec.Current, fp)
	}
	if rec.Deployed == nil || !rec.Deployed.Equal(fp) {
		t.Errorf("deployed fingerprint = %+v, want %+v", rec.Deployed, fp)
	}
	if rec.LastChange != 1700000100 {
		t.Errorf("LastChange = %d, want 1700000100", rec.LastChange)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("@Anything"); ok {
		t.Error("empty store should have no records")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("corrupt state file should be an error")
	}
}

func TestLegacyRecordUpgrade(t *testing.T) {
	// Early versions stored a bare fingerprint per mod.
	legacy := `{"mods": {"@OldMod": {"files": 12, "bytes": 4096, "latest_mtime": 1600000000}}}`
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	rec, ok := store.Get("@OldMod")
	if !ok {
		t.Fatal("legacy record missing")
	}

	want := fingerprint.Fingerprint{Files: 12, Bytes: 4096, LatestMod: 1600000000}
	if rec.Current == nil || !rec.Current.Equal(want) {
		t.Errorf("upgraded current = %+v, want %+v", rec.Current, want)
	}
	if rec.Deployed == nil || !rec.Deployed.Equal(want) {
		t.Errorf("upgraded deployed = %+v, want %+v", rec.Deployed, want)
	}
	if rec.LastChange != 0 {
		t.Errorf("upgraded LastChange = %d, want 0", rec.LastChange)
	}
}

func TestLoadTruncatesFractionalTimestamps(t *testing.T) {
	// Early versions wrote raw mtimes and wall-clock floats with sub-second
	// precision, in both the bare-fingerprint and the current record shape.
	content := `{"mods": {
		"@OldMod": {"files": 12, "bytes": 4096, "latest_mtime": 1600000000.5},
		"@NewMod": {
			"fp": {"files": 2, "bytes": 64, "latest_mtime": 1700000000.25},
			"last_change": 1700000100.75,
			"deployed_fp": null
		}
	}}`
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed on fractional timestamps: %v", err)
	}

	rec, ok := store.Get("@OldMod")
	if !ok {
		t.Fatal("legacy record missing")
	}
	if rec.Current == nil || rec.Current.LatestMod != 1600000000 {
		t.Errorf("legacy latest mtime = %+v, want truncated 1600000000", rec.Current)
	}

	rec, ok = store.Get("@NewMod")
	if !ok {
		t.Fatal("current-shape record missing")
	}
	if rec.LastChange != 1700000100 {
		t.Errorf("LastChange = %d, want truncated 1700000100", rec.LastChange)
	}
	if rec.Current == nil || rec.Current.LatestMod != 1700000000 {
		t.Errorf("current latest mtime = %+v, want truncated 1700000000", rec.Current)
	}
}

func TestLoadDropsNullRecords(t *testing.T) {
	content := `{"mods": {"@Null": null, "@Kept": {"files": 1, "bytes": 2, "latest_mtime": 3}}}`
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("@Null"); ok {
		t.Error("null record should be dropped on load")
	}
	if _, ok := store.Get("@Kept"); !ok {
		t.Error("sibling record lost alongside the null one")
	}
	// MarkDeployed on the dropped name must be a quiet no-op.
	store.MarkDeployed("@Null")
}

func TestUpdateCurrentOnlyOnChange(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}

	fp := fingerprint.Fingerprint{Files: 1, Bytes: 10, LatestMod: 100}
	if !store.UpdateCurrent("@Mod", fp, 111) {
		t.Fatal("absence of a stored fingerprint must count as changed")
	}
	if store.UpdateCurrent("@Mod", fp, 222) {
		t.Fatal("identical fingerprint must not count as changed")
	}

	rec, _ := store.Get("@Mod")
	if rec.LastChange != 111 {
		t.Errorf("LastChange = %d, want 111 (unchanged scan must not touch it)", rec.LastChange)
	}

	fp.Bytes = 11
	if !store.UpdateCurrent("@Mod", fp, 333) {
		t.Fatal("differing fingerprint must count as changed")
	}
	rec, _ = store.Get("@Mod")
	if rec.LastChange != 333 {
		t.Errorf("LastChange = %d, want 333", rec.LastChange)
	}
}

func TestMarkDeployedWithoutScanIsNoop(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}

	store.MarkDeployed("@Unknown")
	if _, ok := store.Get("@Unknown"); ok {
		t.Error("MarkDeployed must not create records")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}

	store.UpdateCurrent("@Mod", fingerprint.Fingerprint{Files: 1}, 1)
	rec, _ := store.Get("@Mod")
	rec.Current.Files = 99

	fresh, _ := store.Get("@Mod")
	if fresh.Current.Files != 1 {
		t.Error("mutating a returned record must not affect the store")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	store.UpdateCurrent("@Mod", fingerprint.Fingerprint{Files: 1}, 1)

	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}
