package riskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.etcd.io/bbolt"
)

var (
	bucketBusinesses = []byte("businesses")
	bucketRisks      = []byte("risks")
	bucketPools      = []byte("pools")
)

// BoltStore persists state in a bbolt database, one bucket per map with JSON
// values. Each Put is its own committed transaction.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the database at dbPath.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("riskstore: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("riskstore: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBusinesses, bucketRisks, bucketPools} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("riskstore: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) GetBusiness(_ context.Context, address string) (*BusinessProfile, error) {
	var p BusinessProfile
	found, err := s.get(bucketBusinesses, AddressKey(address), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) PutBusiness(_ context.Context, profile *BusinessProfile) error {
	key, err := addressKey(profile.Address)
	if err != nil {
		return err
	}
	return s.put(bucketBusinesses, key, profile)
}

func (s *BoltStore) GetRisk(_ context.Context, address string) (*RiskRecord, error) {
	var r RiskRecord
	found, err := s.get(bucketRisks, AddressKey(address), &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) PutRisk(_ context.Context, address string, record *RiskRecord) error {
	key, err := addressKey(address)
	if err != nil {
		return err
	}
	return s.put(bucketRisks, key, record)
}

func (s *BoltStore) GetPool(_ context.Context, id string) (*PoolMetrics, error) {
	var p PoolMetrics
	found, err := s.get(bucketPools, id, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) PutPool(_ context.Context, metrics *PoolMetrics) error {
	if metrics.ID == "" {
		return ErrInvalidKey
	}
	return s.put(bucketPools, metrics.ID, metrics)
}

func (s *BoltStore) ListPools(_ context.Context) ([]*PoolMetrics, error) {
	var out []*PoolMetrics
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(_, v []byte) error {
			var p PoolMetrics
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode pool: %w", err)
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("riskstore: list pools: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *BoltStore) get(bucket []byte, key string, v any) (bool, error) {
	if key == "" {
		return false, nil
	}
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	if err != nil {
		return false, translateBoltErr(fmt.Errorf("riskstore: get %s/%s: %w", bucket, key, err))
	}
	return found, nil
}

func (s *BoltStore) put(bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("riskstore: encode %s/%s: %w", bucket, key, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
	if err != nil {
		return translateBoltErr(fmt.Errorf("riskstore: put %s/%s: %w", bucket, key, err))
	}
	return nil
}

// Snapshot exports the full database contents.
func (s *BoltStore) Snapshot() (*Snapshot, error) {
	snap := NewSnapshot()
	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketBusinesses).ForEach(func(k, v []byte) error {
			var p BusinessProfile
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			snap.Businesses[string(k)] = &p
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRisks).ForEach(func(k, v []byte) error {
			var r RiskRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			snap.Risks[string(k)] = &r
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketPools).ForEach(func(k, v []byte) error {
			var p PoolMetrics
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			snap.Pools[string(k)] = &p
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("riskstore: snapshot: %w", err)
	}
	return snap, nil
}

func translateBoltErr(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

var _ Store = (*BoltStore)(nil)
