package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/automationz/moddeployd/internal/fingerprint"
)

// Store is the durable watch-state map, keyed by mod name. All access is
// serialized internally; accessors return copies so readers can never observe
// a partially-updated record.
type Store struct {
	path string

	mu   sync.Mutex
	mods map[string]*Record
}

// stateFile is the on-disk shape, compatible with earlier tool versions.
type stateFile struct {
	Mods map[string]*Record `json:"mods"`
}

// Load reads the state file at path. A missing file yields an empty store; a
// corrupt one is an error so the caller can decide whether to start fresh.
func Load(path string) (*Store, error) {
	s := &Store{path: path, mods: make(map[string]*Record)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	// JSON null entries bypass Record's custom decoding and carry nothing
	// worth keeping.
	for name, rec := range file.Mods {
		if rec == nil {
			continue
		}
		s.mods[name] = rec
	}
	return s, nil
}

// Get returns a copy of the record for name.
func (s *Store) Get(name string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.mods[name]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// UpdateCurrent stores fp as the current fingerprint for name and reports
// whether it differed from the previous one. On a change the last-change
// timestamp is set to ts; an absent previous fingerprint always counts as
// changed.
func (s *Store) UpdateCurrent(name string, fp fingerprint.Fingerprint, ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.mods[name]
	if !ok {
		rec = &Record{}
		s.mods[name] = rec
	}

	if rec.Current != nil && rec.Current.Equal(fp) {
		return false
	}

	current := fp
	rec.Current = &current
	rec.LastChange = ts
	return true
}

// MarkDeployed records that the current fingerprint of name was successfully
// transported. A mod with no current fingerprint is left untouched.
func (s *Store) MarkDeployed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.mods[name]
	if !ok || rec.Current == nil {
		return
	}
	rec.Deployed = cloneFingerprint(rec.Current)
}

// Save persists the full map to disk. The file is written to a temp file in
// the same directory and renamed into place so a crash mid-write cannot
// corrupt previously committed state.
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(stateFile{Mods: s.mods}, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".moddeployd-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
