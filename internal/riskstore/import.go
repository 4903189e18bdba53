package riskstore

import (
	"context"
	"fmt"
)

// ImportStats counts what Import copied.
type ImportStats struct {
	Businesses int `json:"businesses"`
	Risks      int `json:"risks"`
	Pools      int `json:"pools"`
}

// Import copies every entry of snap into dst. Existing keys are overwritten
// and nil entries are skipped.
// It stops at the first failed write; entries already copied stay written.
func Import(ctx context.Context, snap *Snapshot, dst Store) (ImportStats, error) {
	var stats ImportStats
	if snap == nil {
		return stats, nil
	}
	for key, p := range snap.Businesses {
		if p == nil {
			continue
		}
		profile := *p
		if profile.Address == "" {
			profile.Address = key
		}
		if err := dst.PutBusiness(ctx, &profile); err != nil {
			return stats, fmt.Errorf("riskstore: import business %s: %w", key, err)
		}
		stats.Businesses++
	}
	for key, r := range snap.Risks {
		if r == nil {
			continue
		}
		if err := dst.PutRisk(ctx, key, r); err != nil {
			return stats, fmt.Errorf("riskstore: import risk %s: %w", key, err)
		}
		stats.Risks++
	}
	for id, p := range snap.Pools {
		if p == nil {
			continue
		}
		pool := clonePool(p)
		if pool.ID == "" {
			pool.ID = id
		}
		if err := dst.PutPool(ctx, pool); err != nil {
			return stats, fmt.Errorf("riskstore: import pool %s: %w", id, err)
		}
		stats.Pools++
	}
	return stats, nil
}
