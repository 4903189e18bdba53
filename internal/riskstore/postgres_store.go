package riskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists state in PostgreSQL. Tables come from the goose
// migrations in /migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) GetBusiness(ctx context.Context, address string) (*BusinessProfile, error) {
	key := AddressKey(address)
	if key == "" {
		return nil, nil
	}
	var p BusinessProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT address, name, industry, monthly_revenue, revenue_volatility, contact_email, created_at
		FROM businesses
		WHERE address = $1
	`, key).Scan(&p.Address, &p.Name, &p.Industry, &p.MonthlyRevenue, &p.RevenueVolatility, &p.ContactEmail, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("riskstore: get business: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *PostgresStore) PutBusiness(ctx context.Context, profile *BusinessProfile) error {
	key, err := addressKey(profile.Address)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO businesses (address, name, industry, monthly_revenue, revenue_volatility, contact_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			industry = EXCLUDED.industry,
			monthly_revenue = EXCLUDED.monthly_revenue,
			revenue_volatility = EXCLUDED.revenue_volatility,
			contact_email = EXCLUDED.contact_email,
			created_at = EXCLUDED.created_at
	`,
		key,
		profile.Name,
		profile.Industry,
		profile.MonthlyRevenue,
		profile.RevenueVolatility,
		profile.ContactEmail,
		profile.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("riskstore: put business: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRisk(ctx context.Context, address string) (*RiskRecord, error) {
	key := AddressKey(address)
	if key == "" {
		return nil, nil
	}
	var (
		r       RiskRecord
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT score, band, band_index, last_updated, signature, payload, rationale
		FROM risk_records
		WHERE address = $1
	`, key).Scan(&r.Score, &r.Band, &r.BandIndex, &r.LastUpdated, &r.Signature, &payload, &r.Rationale)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("riskstore: get risk: %w", err)
	}
	if err := json.Unmarshal(payload, &r.Payload); err != nil {
		return nil, fmt.Errorf("riskstore: decode payload: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) PutRisk(ctx context.Context, address string, record *RiskRecord) error {
	key, err := addressKey(address)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("riskstore: encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_records (address, score, band, band_index, last_updated, signature, payload, rationale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			score = EXCLUDED.score,
			band = EXCLUDED.band,
			band_index = EXCLUDED.band_index,
			last_updated = EXCLUDED.last_updated,
			signature = EXCLUDED.signature,
			payload = EXCLUDED.payload,
			rationale = EXCLUDED.rationale
	`,
		key,
		int16(record.Score),
		record.Band,
		int16(record.BandIndex),
		record.LastUpdated,
		record.Signature,
		payload,
		record.Rationale,
	)
	if err != nil {
		return fmt.Errorf("riskstore: put risk: %w", err)
	}
	return nil
}

const poolColumns = `id, name, symbol, tvl, apy, investors, risk, risk_score, updated_at`

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*PoolMetrics, error) {
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pool_metrics WHERE id = $1`, id)
	p, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("riskstore: get pool: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) PutPool(ctx context.Context, metrics *PoolMetrics) error {
	if metrics.ID == "" {
		return ErrInvalidKey
	}
	var score sql.NullInt16
	if metrics.RiskScore != nil {
		score = sql.NullInt16{Int16: int16(*metrics.RiskScore), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pool_metrics (`+poolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			tvl = EXCLUDED.tvl,
			apy = EXCLUDED.apy,
			investors = EXCLUDED.investors,
			risk = EXCLUDED.risk,
			risk_score = EXCLUDED.risk_score,
			updated_at = EXCLUDED.updated_at
	`,
		metrics.ID,
		metrics.Name,
		metrics.Symbol,
		metrics.TVL,
		metrics.APY,
		metrics.Investors,
		metrics.Risk,
		score,
		metrics.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("riskstore: put pool: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]*PoolMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+poolColumns+` FROM pool_metrics ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("riskstore: list pools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*PoolMetrics
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("riskstore: scan pool: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPool(row scanner) (*PoolMetrics, error) {
	var (
		p         PoolMetrics
		score     sql.NullInt16
		updatedAt time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Symbol, &p.TVL, &p.APY, &p.Investors, &p.Risk, &score, &updatedAt); err != nil {
		return nil, err
	}
	if score.Valid {
		v := uint8(score.Int16) // #nosec G115 -- column CHECK keeps score in 0..100
		p.RiskScore = &v
	}
	p.UpdatedAt = updatedAt.UTC()
	return &p, nil
}

var _ Store = (*PostgresStore)(nil)
