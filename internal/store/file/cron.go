package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/King-Chau/mozi/internal/cron"
	"github.com/King-Chau/mozi/internal/store"
)

// JobStore persists the cron job set as a single JSON document. Writes are
// atomic: encode to a temp file in the same directory, copy the current file
// to a .bak sibling, then rename the temp file over the live one.
type JobStore struct {
	path string
	mu   sync.Mutex
}

// NewJobStore creates a store at path. The parent directory is created on
// first save.
func NewJobStore(path string) *JobStore {
	return &JobStore{path: path}
}

// Path returns the live file path.
func (s *JobStore) Path() string { return s.path }

// Load reads the persisted job set. A missing file is an empty set, not an
// error; a file that cannot be decoded is store.ErrStoreCorrupt.
func (s *JobStore) Load() ([]cron.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc cron.StoreFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrStoreCorrupt, s.path, err)
	}
	if doc.Version != cron.StoreVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", store.ErrStoreCorrupt, s.path, doc.Version)
	}
	return doc.Jobs, nil
}

// Save atomically replaces the job file, keeping the previous content as a
// .bak sibling.
func (s *JobStore) Save(jobs []cron.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(s.path), err)
	}

	doc := cron.StoreFile{Version: cron.StoreVersion, Jobs: jobs}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := copyFile(s.path, s.path+".bak"); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("backup %s: %w", s.path, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

// copyFile copies src to dst; a missing src is a no-op.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
