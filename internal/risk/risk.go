// Package risk turns an external credit score into a signed, expiring
// payload that on-chain verifiers can check with ecrecover.
//
// The pipeline for one evaluation is sequential: load the stored business
// profile, merge caller overrides, call the scorer, build the payload, sign,
// persist. A scorer failure aborts before anything is written, so the
// previous record stays in place.
//
// Evaluations are not serialized per address. Two concurrent evaluations of
// the same business race and the last write wins.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrMissingKey         = errors.New("risk: signer private key is required")
	ErrInvalidKey         = errors.New("risk: signer private key is invalid")
	ErrScoringUnavailable = errors.New("risk: scoring service unavailable")
	ErrInvalidScore       = errors.New("risk: scorer returned an invalid result")
	ErrUnknownBand        = errors.New("risk: unknown risk band")
	ErrInvalidAddress     = errors.New("risk: invalid address")
	ErrInvalidOverrides   = errors.New("risk: invalid overrides")
	ErrInvalidSignature   = errors.New("risk: invalid signature")
	ErrNotFound           = errors.New("risk: no risk record")
)

// Validity is how long a signed payload stays valid after signing.
const Validity = time.Hour

// Band is a coarse risk category. Its numeric value is what gets signed.
type Band uint8

const (
	BandLow Band = iota
	BandMedium
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandLow:
		return "LOW"
	case BandMedium:
		return "MEDIUM"
	case BandHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("Band(%d)", uint8(b))
	}
}

// ParseBand maps a scorer band name to a Band. Names are matched after
// trimming and uppercasing; anything other than LOW, MEDIUM or HIGH is
// rejected with ErrUnknownBand rather than folded into HIGH.
func ParseBand(name string) (Band, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LOW":
		return BandLow, nil
	case "MEDIUM":
		return BandMedium, nil
	case "HIGH":
		return BandHigh, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBand, name)
	}
}

// NormalizeScore clamps a raw score to [0, 100] and rounds half away from zero.
func NormalizeScore(raw float64) (uint8, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: score %v", ErrInvalidScore, raw)
	}
	clamped := math.Min(math.Max(raw, 0), 100)
	return uint8(math.Round(clamped)), nil
}

// ScoreRequest is the body sent to the external scorer.
type ScoreRequest struct {
	Address           string  `json:"address"`
	MonthlyRevenue    float64 `json:"monthlyRevenue"`
	RevenueVolatility float64 `json:"revenueVolatility"`
	MissedPayments    int     `json:"missedPayments"`
}

// ScoreResponse is the scorer's verdict before normalization.
type ScoreResponse struct {
	Score     float64 `json:"score"`
	Band      string  `json:"band"`
	Rationale string  `json:"rationale,omitempty"`
}

// Scorer is the external credit scoring collaborator. Implementations should
// wrap transport and status failures in ErrScoringUnavailable.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)
}

// Defaults used when no business profile is stored.
const (
	DefaultMonthlyRevenue    = 50000
	DefaultRevenueVolatility = 15
	DefaultMissedPayments    = 0
)

// Overrides replaces individual inputs of the scoring request. Nil fields fall
// back to the stored profile or the defaults.
type Overrides struct {
	MonthlyRevenue    *float64 `json:"monthlyRevenue,omitempty"`
	RevenueVolatility *float64 `json:"revenueVolatility,omitempty"`
	MissedPayments    *int     `json:"missedPayments,omitempty"`
}

// Validate rejects negative or non-finite overrides.
func (o Overrides) Validate() error {
	if v := o.MonthlyRevenue; v != nil && (*v < 0 || !finite(*v)) {
		return fmt.Errorf("%w: monthlyRevenue must be a non-negative number", ErrInvalidOverrides)
	}
	if v := o.RevenueVolatility; v != nil && (*v < 0 || *v > 100 || !finite(*v)) {
		return fmt.Errorf("%w: revenueVolatility must be between 0 and 100", ErrInvalidOverrides)
	}
	if v := o.MissedPayments; v != nil && *v < 0 {
		return fmt.Errorf("%w: missedPayments must be non-negative", ErrInvalidOverrides)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
