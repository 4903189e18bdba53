package risk

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/codes"

	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/riskstore"
	"github.com/mbd888/streamvault/internal/traces"
)

// Notifier is told about every persisted evaluation.
type Notifier interface {
	RiskEvaluated(ctx context.Context, address string, record *riskstore.RiskRecord)
}

// Evaluation is the outcome of a successful Evaluate.
type Evaluation struct {
	Record    *riskstore.RiskRecord   `json:"record"`
	Payload   riskstore.SignedPayload `json:"payload"`
	Signature string                  `json:"signature"`
	Signer    string                  `json:"signer"`
}

// Verification reports whether a stored record still checks out.
type Verification struct {
	Address   string `json:"address"`
	Valid     bool   `json:"valid"`
	Expired   bool   `json:"expired"`
	Signer    string `json:"signer"`
	Recovered string `json:"recovered,omitempty"`
	ExpiresAt int64  `json:"expiresAt"`
	Error     string `json:"error,omitempty"`
}

// Service runs risk evaluations.
type Service struct {
	store    riskstore.Store
	scorer   Scorer
	signer   *Signer
	random   io.Reader
	now      Clock
	notifier Notifier
}

// NewService creates a risk service. signer must be non-nil; construct it
// with NewSigner at startup so a bad key stops the process.
func NewService(store riskstore.Store, scorer Scorer, signer *Signer) *Service {
	return &Service{
		store:  store,
		scorer: scorer,
		signer: signer,
		random: rand.Reader,
		now:    time.Now,
	}
}

// WithRandom sets the nonce source.
func (s *Service) WithRandom(r io.Reader) *Service {
	s.random = r
	return s
}

// WithClock sets the time source.
func (s *Service) WithClock(c Clock) *Service {
	s.now = c
	return s
}

// WithNotifier sets the evaluation listener.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Signer returns the signing capability.
func (s *Service) Signer() *Signer { return s.signer }

// Evaluate scores address, signs the result and stores it, replacing any
// previous record. Nothing is written unless every step before persistence
// succeeds.
func (s *Service) Evaluate(ctx context.Context, address string, overrides Overrides) (*Evaluation, error) {
	ctx, span := traces.StartSpan(ctx, "risk.Evaluate", traces.Subject(address))
	defer span.End()

	eval, outcome, err := s.evaluate(ctx, address, overrides)
	evaluationsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logging.L(ctx).Warn("risk evaluation failed", "address", address, "outcome", outcome, "error", err)
		return nil, err
	}

	span.SetAttributes(traces.Band(eval.Record.Band), traces.Score(int(eval.Record.Score)))
	logging.L(ctx).Info("risk evaluated",
		"address", address,
		"score", eval.Record.Score,
		"band", eval.Record.Band,
		"expiry", eval.Payload.Expiry,
	)
	if s.notifier != nil {
		s.notifier.RiskEvaluated(ctx, address, eval.Record)
	}
	return eval, nil
}

func (s *Service) evaluate(ctx context.Context, address string, overrides Overrides) (*Evaluation, string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, "invalid_input", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if err := overrides.Validate(); err != nil {
		return nil, "invalid_input", err
	}

	profile, err := s.store.GetBusiness(ctx, address)
	if err != nil {
		return nil, "persist_failed", fmt.Errorf("risk: load business: %w", err)
	}
	req := scoreRequest(address, profile, overrides)

	started := time.Now()
	resp, err := s.scorer.Score(ctx, req)
	scorerDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		if !errors.Is(err, ErrScoringUnavailable) {
			err = fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
		}
		return nil, "scoring_unavailable", err
	}
	if resp == nil {
		return nil, "scoring_unavailable", fmt.Errorf("%w: empty response", ErrScoringUnavailable)
	}

	score, err := NormalizeScore(resp.Score)
	if err != nil {
		return nil, "invalid_score", err
	}
	band, err := ParseBand(resp.Band)
	if err != nil {
		return nil, "invalid_score", fmt.Errorf("%w: %v", ErrInvalidScore, err)
	}

	ts := s.now().Unix()
	payload := Payload{
		Subject:   address,
		Score:     score,
		Band:      band,
		Timestamp: ts,
		Expiry:    ts + int64(Validity/time.Second),
	}
	if _, err := io.ReadFull(s.random, payload.Nonce[:]); err != nil {
		return nil, "sign_failed", fmt.Errorf("risk: read nonce: %w", err)
	}

	sig, err := s.signer.Sign(payload)
	if err != nil {
		return nil, "sign_failed", err
	}

	stored := payload.Stored()
	record := &riskstore.RiskRecord{
		Score:       score,
		Band:        band.String(),
		BandIndex:   uint8(band),
		LastUpdated: ts,
		Signature:   sig,
		Payload:     stored,
		Rationale:   resp.Rationale,
	}
	if err := s.store.PutRisk(ctx, address, record); err != nil {
		return nil, "persist_failed", fmt.Errorf("risk: persist record: %w", err)
	}
	bandsTotal.WithLabelValues(record.Band).Inc()

	return &Evaluation{
		Record:    record,
		Payload:   stored,
		Signature: sig,
		Signer:    s.signer.Address().Hex(),
	}, "signed", nil
}

func scoreRequest(address string, profile *riskstore.BusinessProfile, o Overrides) ScoreRequest {
	req := ScoreRequest{
		Address:           address,
		MonthlyRevenue:    DefaultMonthlyRevenue,
		RevenueVolatility: DefaultRevenueVolatility,
		MissedPayments:    DefaultMissedPayments,
	}
	if profile != nil {
		req.MonthlyRevenue = profile.MonthlyRevenue
		req.RevenueVolatility = profile.RevenueVolatility
	}
	if o.MonthlyRevenue != nil {
		req.MonthlyRevenue = *o.MonthlyRevenue
	}
	if o.RevenueVolatility != nil {
		req.RevenueVolatility = *o.RevenueVolatility
	}
	if o.MissedPayments != nil {
		req.MissedPayments = *o.MissedPayments
	}
	return req
}

// Get returns the stored record for address, or nil when it was never scored.
func (s *Service) Get(ctx context.Context, address string) (*riskstore.RiskRecord, error) {
	if !common.IsHexAddress(strings.TrimSpace(address)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return s.store.GetRisk(ctx, address)
}

// Verify recovers the signer of the stored record for address and checks it
// against this service's key and the payload expiry.
func (s *Service) Verify(ctx context.Context, address string) (*Verification, error) {
	rec, err := s.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return s.VerifyRecord(address, rec.Payload, rec.Signature), nil
}

// VerifyRecord checks an arbitrary payload and signature.
func (s *Service) VerifyRecord(address string, sp riskstore.SignedPayload, sig string) *Verification {
	v := &Verification{
		Address:   address,
		Signer:    s.signer.Address().Hex(),
		ExpiresAt: sp.Expiry,
	}
	p, err := PayloadFromStored(sp)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.Expired = p.Expired(s.now().Unix())

	recovered, err := RecoverSigner(p, sig)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.Recovered = recovered.Hex()
	v.Valid = recovered == s.signer.Address()
	if !v.Valid {
		v.Error = "signature was not produced by this service's key"
	}
	return v
}
