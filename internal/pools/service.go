package pools

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/riskstore"
	"github.com/mbd888/streamvault/internal/traces"
)

// Service serves pool metrics. Metrics are recomputed on every read and the
// snapshot is written through to the store for other readers.
type Service struct {
	store   riskstore.Store
	configs []Config
	byID    map[string]Config
	now     func() time.Time
}

// NewService creates a pool service over the given definitions.
func NewService(store riskstore.Store, configs []Config) *Service {
	byID := make(map[string]Config, len(configs))
	for _, c := range configs {
		byID[c.ID] = c
	}
	return &Service{store: store, configs: configs, byID: byID, now: time.Now}
}

// Configs returns the pool definitions in their configured order.
func (s *Service) Configs() []Config {
	out := make([]Config, len(s.configs))
	copy(out, s.configs)
	return out
}

// List derives metrics for every pool.
func (s *Service) List(ctx context.Context) ([]*riskstore.PoolMetrics, error) {
	ctx, span := traces.StartSpan(ctx, "pools.List")
	defer span.End()

	out := make([]*riskstore.PoolMetrics, 0, len(s.configs))
	for _, cfg := range s.configs {
		m, err := s.derive(ctx, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Metrics derives metrics for one pool.
func (s *Service) Metrics(ctx context.Context, id string) (*riskstore.PoolMetrics, error) {
	ctx, span := traces.StartSpan(ctx, "pools.Metrics", traces.PoolID(id))
	defer span.End()

	cfg, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.derive(ctx, cfg)
}

func (s *Service) derive(ctx context.Context, cfg Config) (*riskstore.PoolMetrics, error) {
	rec, err := s.store.GetRisk(ctx, cfg.RevenueToken)
	if err != nil {
		return nil, fmt.Errorf("pools: load risk for %s: %w", cfg.ID, err)
	}
	m := Derive(cfg, rec, s.now())
	if err := s.store.PutPool(ctx, m); err != nil {
		return nil, fmt.Errorf("pools: save snapshot %s: %w", cfg.ID, err)
	}
	logging.L(ctx).Debug("pool metrics derived", "pool", cfg.ID, "risk", m.Risk, "apy", m.APY)
	return m, nil
}
