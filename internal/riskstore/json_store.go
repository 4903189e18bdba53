package riskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps the whole state in a single JSON document and rewrites the
// file on every mutation.
type JSONStore struct {
	path   string
	logger *slog.Logger
	data   *Snapshot
	mu     sync.RWMutex
	closed bool
}

// OpenJSONStore loads path, creating parent directories as needed. A missing
// file starts empty. A malformed file is logged and treated as empty; it is
// replaced by the next mutation.
func OpenJSONStore(path string, logger *slog.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("riskstore: create data dir: %w", err)
		}
	}

	snap, err := ReadSnapshotFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		snap = NewSnapshot()
	case errors.Is(err, ErrMalformedSnapshot):
		logger.Warn("risk store file is malformed, starting from empty state",
			"path", path, "error", err)
		snap = NewSnapshot()
	case err != nil:
		return nil, err
	}

	return &JSONStore{path: path, logger: logger, data: snap}, nil
}

// ErrMalformedSnapshot is returned by ReadSnapshotFile for undecodable files.
var ErrMalformedSnapshot = errors.New("riskstore: malformed snapshot")

// ReadSnapshotFile decodes a JSON state file.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-configured data path
	if err != nil {
		return nil, err
	}
	snap := NewSnapshot()
	if len(raw) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	snap.normalize()
	return snap, nil
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) GetBusiness(_ context.Context, address string) (*BusinessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.data.business(AddressKey(address)), nil
}

func (s *JSONStore) PutBusiness(_ context.Context, profile *BusinessProfile) error {
	key, err := addressKey(profile.Address)
	if err != nil {
		return err
	}
	return s.mutate(func(d *Snapshot) func() {
		prev, had := d.Businesses[key]
		d.putBusiness(key, profile)
		return func() {
			if had {
				d.Businesses[key] = prev
			} else {
				delete(d.Businesses, key)
			}
		}
	})
}

func (s *JSONStore) GetRisk(_ context.Context, address string) (*RiskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.data.risk(AddressKey(address)), nil
}

func (s *JSONStore) PutRisk(_ context.Context, address string, record *RiskRecord) error {
	key, err := addressKey(address)
	if err != nil {
		return err
	}
	return s.mutate(func(d *Snapshot) func() {
		prev, had := d.Risks[key]
		d.putRisk(key, record)
		return func() {
			if had {
				d.Risks[key] = prev
			} else {
				delete(d.Risks, key)
			}
		}
	})
}

func (s *JSONStore) GetPool(_ context.Context, id string) (*PoolMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.data.pool(id), nil
}

func (s *JSONStore) PutPool(_ context.Context, metrics *PoolMetrics) error {
	if metrics.ID == "" {
		return ErrInvalidKey
	}
	return s.mutate(func(d *Snapshot) func() {
		prev, had := d.Pools[metrics.ID]
		d.putPool(metrics)
		return func() {
			if had {
				d.Pools[metrics.ID] = prev
			} else {
				delete(d.Pools, metrics.ID)
			}
		}
	})
}

func (s *JSONStore) ListPools(_ context.Context) ([]*PoolMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.data.listPools(), nil
}

// Close marks the store closed. The file is already up to date.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// mutate applies fn and rewrites the file. If the write fails the in-memory
// change is rolled back so memory never runs ahead of disk.
func (s *JSONStore) mutate(fn func(d *Snapshot) (undo func())) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	undo := fn(s.data)
	if err := writeSnapshotFile(s.path, s.data); err != nil {
		undo()
		return err
	}
	return nil
}

// writeSnapshotFile replaces path atomically via a temp file and rename.
func writeSnapshotFile(path string, snap *Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("riskstore: marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("riskstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("riskstore: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("riskstore: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("riskstore: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("riskstore: replace snapshot: %w", err)
	}
	return nil
}

// WriteSnapshotFile writes snap to path in the JSONStore format.
func WriteSnapshotFile(path string, snap *Snapshot) error {
	snap.normalize()
	return writeSnapshotFile(path, snap)
}

var _ Store = (*JSONStore)(nil)
