// Package store provides crash-safe persistence for the dedup warm-start
// cache using JSON files.
//
// Each feed's seeded signatures are stored as a separate file:
// dedup_<feed>.json. Writes use atomic file replacement (write to .tmp,
// then rename) to prevent corruption from partial writes or crashes
// mid-save. This is strictly a warm-up cache — the feed layer loads it on
// startup to suppress duplicates across a page-reload-style restart, and
// stays correct if the files are missing or deleted.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists per-feed signature sets to JSON files in a directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string     // directory containing dedup_*.json files
	mu  sync.Mutex // serializes all file operations
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SaveSignatures atomically persists a feed's seeded signatures.
// It writes to a .tmp file first, then renames over the target so the
// file is never left in a partial state.
func (s *Store) SaveSignatures(feed string, sigs map[string]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sigs)
	if err != nil {
		return fmt.Errorf("marshal signatures: %w", err)
	}

	path := filepath.Join(s.dir, "dedup_"+feed+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write signatures: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadSignatures restores a feed's signatures from disk, dropping entries
// older than retention. Returns an empty map if no file exists.
func (s *Store) LoadSignatures(feed string, retention time.Duration) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, "dedup_"+feed+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]time.Time{}, nil
		}
		return nil, fmt.Errorf("read signatures: %w", err)
	}

	var sigs map[string]time.Time
	if err := json.Unmarshal(data, &sigs); err != nil {
		return nil, fmt.Errorf("unmarshal signatures: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	for sig, at := range sigs {
		if at.Before(cutoff) {
			delete(sigs, sig)
		}
	}
	return sigs, nil
}
