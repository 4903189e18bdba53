// Package business registers the businesses whose revenue backs a pool.
package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/riskstore"
	"github.com/mbd888/streamvault/internal/validation"
)

var (
	ErrNotFound       = errors.New("business: not found")
	ErrInvalidAddress = errors.New("business: invalid address")
)

// Field limits for registration.
const (
	MaxNameLength     = 100
	MaxIndustryLength = 100
	MaxEmailLength    = 254
)

// RegisterRequest is a full business profile. Registration always replaces
// the stored record; there is no partial update.
type RegisterRequest struct {
	Address           string  `json:"address"`
	Name              string  `json:"name"`
	Industry          string  `json:"industry"`
	MonthlyRevenue    float64 `json:"monthlyRevenue"`
	RevenueVolatility float64 `json:"revenueVolatility"`
	ContactEmail      string  `json:"contactEmail,omitempty"`
}

// Validate checks every field and reports all failures.
func (r *RegisterRequest) Validate() error {
	errs := validation.Validate(
		validation.Required("address", r.Address),
		validation.ValidAddress("address", r.Address),
		validation.Required("name", r.Name),
		validation.MaxLength("name", r.Name, MaxNameLength),
		validation.MaxLength("industry", r.Industry, MaxIndustryLength),
		validation.NonNegative("monthlyRevenue", r.MonthlyRevenue),
		validation.Range("revenueVolatility", r.RevenueVolatility, 0, 100),
		validation.MaxLength("contactEmail", r.ContactEmail, MaxEmailLength),
		validation.ValidEmail("contactEmail", r.ContactEmail),
	)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *RegisterRequest) normalize() {
	r.Address = strings.TrimSpace(r.Address)
	r.Name = validation.SanitizeString(r.Name, MaxNameLength+1)
	r.Industry = validation.SanitizeString(r.Industry, MaxIndustryLength+1)
	r.ContactEmail = strings.TrimSpace(r.ContactEmail)
}

// Notifier is told about every registration.
type Notifier interface {
	BusinessRegistered(ctx context.Context, profile *riskstore.BusinessProfile)
}

// Service implements business registration.
type Service struct {
	store    riskstore.Store
	now      func() time.Time
	notifier Notifier
}

// NewService creates a business service.
func NewService(store riskstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithNotifier sets the registration listener.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Register validates req and writes the full profile. Re-registering an
// address keeps its original CreatedAt.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*riskstore.BusinessProfile, error) {
	req.normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetBusiness(ctx, req.Address)
	if err != nil {
		return nil, fmt.Errorf("business: load existing: %w", err)
	}

	profile := &riskstore.BusinessProfile{
		Address:           req.Address,
		Name:              req.Name,
		Industry:          req.Industry,
		MonthlyRevenue:    req.MonthlyRevenue,
		RevenueVolatility: req.RevenueVolatility,
		ContactEmail:      req.ContactEmail,
		CreatedAt:         s.now().UTC(),
	}
	if existing != nil {
		profile.CreatedAt = existing.CreatedAt
	}

	if err := s.store.PutBusiness(ctx, profile); err != nil {
		return nil, fmt.Errorf("business: save: %w", err)
	}

	logging.L(ctx).Info("business registered",
		"address", profile.Address,
		"industry", profile.Industry,
		"update", existing != nil,
	)
	if s.notifier != nil {
		s.notifier.BusinessRegistered(ctx, profile)
	}
	return profile, nil
}

// Get returns the profile for address.
func (s *Service) Get(ctx context.Context, address string) (*riskstore.BusinessProfile, error) {
	if !validation.IsValidEthAddress(strings.TrimSpace(address)) {
		return nil, ErrInvalidAddress
	}
	profile, err := s.store.GetBusiness(ctx, address)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}
