// Package riskstore persists business profiles, signed risk records, and pool
// metric snapshots.
//
// Every backend is write-through: a mutation is durable before the call
// returns so other processes reading the same medium see the latest state.
// Address keys are lowercased on every read and write. Missing keys return
// (nil, nil) so callers can tell "never written" apart from a failure.
//
// There is no cross-call locking. Two writers racing on the same address get
// last-write-wins; callers needing ordering must serialize themselves.
package riskstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrClosed     = errors.New("riskstore: store closed")
	ErrInvalidKey = errors.New("riskstore: empty key")
)

// BusinessProfile is a registered business whose revenue backs a pool.
type BusinessProfile struct {
	Address           string    `json:"address"`
	Name              string    `json:"name"`
	Industry          string    `json:"industry"`
	MonthlyRevenue    float64   `json:"monthlyRevenue"`
	RevenueVolatility float64   `json:"revenueVolatility"`
	ContactEmail      string    `json:"contactEmail,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// SignedPayload is the persisted form of a signed risk payload. Subject keeps
// the casing it was signed with; Nonce is 0x-prefixed hex.
type SignedPayload struct {
	Subject   string `json:"subject"`
	Score     uint8  `json:"score"`
	Band      uint8  `json:"band"`
	Timestamp int64  `json:"timestamp"`
	Expiry    int64  `json:"expiry"`
	Nonce     string `json:"nonce"`
}

// RiskRecord is the latest signed risk evaluation for a business.
type RiskRecord struct {
	Score       uint8         `json:"score"`
	Band        string        `json:"band"`
	BandIndex   uint8         `json:"bandIndex"`
	LastUpdated int64         `json:"lastUpdated"`
	Signature   string        `json:"signature"`
	Payload     SignedPayload `json:"payload"`
	Rationale   string        `json:"rationale,omitempty"`
}

// PoolMetrics is a derived snapshot of an investment pool.
type PoolMetrics struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	TVL       string    `json:"tvl"`
	APY       string    `json:"apy"`
	Investors int       `json:"investors"`
	Risk      string    `json:"risk"`
	RiskScore *uint8    `json:"riskScore,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is the whole-store document. Its JSON encoding is the on-disk
// format of JSONStore.
type Snapshot struct {
	Businesses map[string]*BusinessProfile `json:"businesses"`
	Risks      map[string]*RiskRecord      `json:"risks"`
	Pools      map[string]*PoolMetrics     `json:"pools"`
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Businesses: make(map[string]*BusinessProfile),
		Risks:      make(map[string]*RiskRecord),
		Pools:      make(map[string]*PoolMetrics),
	}
}

// normalize fills nil maps left by a partial document and drops null entries.
func (s *Snapshot) normalize() {
	if s.Businesses == nil {
		s.Businesses = make(map[string]*BusinessProfile)
	}
	if s.Risks == nil {
		s.Risks = make(map[string]*RiskRecord)
	}
	if s.Pools == nil {
		s.Pools = make(map[string]*PoolMetrics)
	}
	for k, v := range s.Businesses {
		if v == nil {
			delete(s.Businesses, k)
		}
	}
	for k, v := range s.Risks {
		if v == nil {
			delete(s.Risks, k)
		}
	}
	for k, v := range s.Pools {
		if v == nil {
			delete(s.Pools, k)
		}
	}
}

// Store persists risk service state.
type Store interface {
	GetBusiness(ctx context.Context, address string) (*BusinessProfile, error)
	PutBusiness(ctx context.Context, profile *BusinessProfile) error

	GetRisk(ctx context.Context, address string) (*RiskRecord, error)
	PutRisk(ctx context.Context, address string, record *RiskRecord) error

	GetPool(ctx context.Context, id string) (*PoolMetrics, error)
	PutPool(ctx context.Context, metrics *PoolMetrics) error
	ListPools(ctx context.Context) ([]*PoolMetrics, error)

	Close() error
}

// AddressKey is the canonical lookup key for an address.
func AddressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func addressKey(address string) (string, error) {
	key := AddressKey(address)
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}
