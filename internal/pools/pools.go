// Package pools derives investment pool metrics from pool configuration and
// the latest signed risk record of each pool's revenue token.
package pools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/streamvault/internal/riskstore"
	"github.com/mbd888/streamvault/internal/validation"
)

var (
	ErrNotFound      = errors.New("pools: pool not found")
	ErrInvalidConfig = errors.New("pools: invalid pool config")
)

// Unrated labels a pool whose revenue token has never been scored.
const Unrated = "UNRATED"

// Config is the static definition of a pool.
type Config struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	RevenueToken string          `json:"revenueToken"`
	BaseTVL      decimal.Decimal `json:"baseTvl"`
	BaseAPY      decimal.Decimal `json:"baseApy"`
	Investors    int             `json:"investors"`
}

// bandPremium is the APY added on top of the base for each risk band.
var bandPremium = map[string]decimal.Decimal{
	"LOW":    decimal.Zero,
	"MEDIUM": decimal.RequireFromString("2.5"),
	"HIGH":   decimal.RequireFromString("6.0"),
}

// DefaultConfigs are used when no pools file is configured.
func DefaultConfigs() []Config {
	return []Config{
		{
			ID:           "coffee-revenue",
			Name:         "Coffee Chain Revenue Pool",
			Symbol:       "svCOFFEE",
			RevenueToken: "0x1111111111111111111111111111111111111111",
			BaseTVL:      decimal.RequireFromString("1250000"),
			BaseAPY:      decimal.RequireFromString("8.5"),
			Investors:    142,
		},
		{
			ID:           "saas-mrr",
			Name:         "SaaS Recurring Revenue Pool",
			Symbol:       "svSAAS",
			RevenueToken: "0x2222222222222222222222222222222222222222",
			BaseTVL:      decimal.RequireFromString("3400000"),
			BaseAPY:      decimal.RequireFromString("6.25"),
			Investors:    311,
		},
		{
			ID:           "logistics-receivables",
			Name:         "Logistics Receivables Pool",
			Symbol:       "svSHIP",
			RevenueToken: "0x3333333333333333333333333333333333333333",
			BaseTVL:      decimal.RequireFromString("780000"),
			BaseAPY:      decimal.RequireFromString("11"),
			Investors:    57,
		},
	}
}

// Validate checks a single pool definition.
func (c Config) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	case !validation.IsValidEthAddress(c.RevenueToken):
		return fmt.Errorf("%w: pool %s: revenueToken must be an address", ErrInvalidConfig, c.ID)
	case c.BaseTVL.IsNegative() || c.BaseAPY.IsNegative() || c.Investors < 0:
		return fmt.Errorf("%w: pool %s: negative base values", ErrInvalidConfig, c.ID)
	}
	return nil
}

// LoadConfigs reads a JSON array of pool definitions.
func LoadConfigs(path string) ([]Config, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-configured pools file
	if err != nil {
		return nil, fmt.Errorf("pools: read %s: %w", path, err)
	}
	var cfgs []Config
	if err := json.Unmarshal(raw, &cfgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	seen := make(map[string]bool, len(cfgs))
	for _, c := range cfgs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: duplicate pool id %s", ErrInvalidConfig, c.ID)
		}
		seen[c.ID] = true
	}
	return cfgs, nil
}

// Derive computes the metrics snapshot for one pool. A nil record yields an
// UNRATED pool at its base APY.
func Derive(cfg Config, rec *riskstore.RiskRecord, now time.Time) *riskstore.PoolMetrics {
	m := &riskstore.PoolMetrics{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Symbol:    cfg.Symbol,
		TVL:       cfg.BaseTVL.String(),
		APY:       cfg.BaseAPY.Round(2).StringFixed(2),
		Investors: cfg.Investors,
		Risk:      Unrated,
		UpdatedAt: now.UTC(),
	}
	if rec == nil {
		return m
	}

	m.Risk = rec.Band
	score := rec.Score
	m.RiskScore = &score
	if premium, ok := bandPremium[rec.Band]; ok {
		m.APY = cfg.BaseAPY.Add(premium).Round(2).StringFixed(2)
	}
	return m
}
