package accrual

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ErrInvalidNumber is returned when a wire field is not an unsigned 256-bit integer.
var ErrInvalidNumber = errors.New("accrual: invalid uint256 value")

// StateRequest is the JSON form of State. Numbers are decimal strings or
// 0x-prefixed hex so token amounts survive JSON without precision loss.
// Empty strings are zero.
type StateRequest struct {
	TotalAmount    string           `json:"totalAmount"`
	ClaimedAmount  string           `json:"claimedAmount"`
	StartTime      string           `json:"startTime"`
	Duration       string           `json:"duration"`
	LastClaimed    string           `json:"lastClaimed"`
	StopTime       string           `json:"stopTime"`
	IsPaused       bool             `json:"isPaused"`
	PauseStart     string           `json:"pauseStart"`
	PausedDuration string           `json:"pausedDuration"`
	Timestamp      string           `json:"timestamp"`
	Tranches       []TrancheRequest `json:"tranches,omitempty"`
}

// TrancheRequest is the JSON form of Tranche.
type TrancheRequest struct {
	Token            string `json:"token"`
	TotalAmount      string `json:"totalAmount"`
	ClaimedAmount    string `json:"claimedAmount"`
	PauseAccumulated string `json:"pauseAccumulated"`
	PauseCarry       string `json:"pauseCarry"`
}

// SummaryResponse is the JSON form of Summary.
type SummaryResponse struct {
	Claimable    string            `json:"claimable"`
	AccrualPoint string            `json:"accrualPoint"`
	Vested       string            `json:"vested"`
	Remaining    string            `json:"remaining"`
	StreamEnd    string            `json:"streamEnd"`
	Progress     string            `json:"progress"`
	Tranches     []TrancheResponse `json:"tranches,omitempty"`
}

// TrancheResponse is the JSON form of TrancheResult.
type TrancheResponse struct {
	Token          string `json:"token"`
	Claimable      string `json:"claimable"`
	AccrualPoint   string `json:"accrualPoint"`
	PausedDuration string `json:"pausedDuration"`
}

// ParseUint256 accepts a decimal string or a 0x-prefixed hex string.
func ParseUint256(s string) (uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uint256.Int{}, nil
	}
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" && len(s) > 2 {
			return uint256.Int{}, nil
		}
		v, err = uint256.FromHex("0x" + digits)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return *v, nil
}

// State converts the request into an engine State.
func (r StateRequest) State() (State, error) {
	var s State
	fields := []struct {
		name string
		raw  string
		dst  *uint256.Int
	}{
		{"totalAmount", r.TotalAmount, &s.TotalAmount},
		{"claimedAmount", r.ClaimedAmount, &s.ClaimedAmount},
		{"startTime", r.StartTime, &s.StartTime},
		{"duration", r.Duration, &s.Duration},
		{"lastClaimed", r.LastClaimed, &s.LastClaimed},
		{"stopTime", r.StopTime, &s.StopTime},
		{"pauseStart", r.PauseStart, &s.PauseStart},
		{"pausedDuration", r.PausedDuration, &s.PausedDuration},
		{"timestamp", r.Timestamp, &s.Timestamp},
	}
	for _, f := range fields {
		v, err := ParseUint256(f.raw)
		if err != nil {
			return State{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	s.IsPaused = r.IsPaused
	return s, nil
}

// Tranche converts the request into an engine Tranche.
func (r TrancheRequest) Tranche() (Tranche, error) {
	t := Tranche{Token: r.Token}
	fields := []struct {
		name string
		raw  string
		dst  *uint256.Int
	}{
		{"totalAmount", r.TotalAmount, &t.TotalAmount},
		{"claimedAmount", r.ClaimedAmount, &t.ClaimedAmount},
		{"pauseAccumulated", r.PauseAccumulated, &t.PauseAccumulated},
		{"pauseCarry", r.PauseCarry, &t.PauseCarry},
	}
	for _, f := range fields {
		v, err := ParseUint256(f.raw)
		if err != nil {
			return Tranche{}, fmt.Errorf("tranche %s %s: %w", r.Token, f.name, err)
		}
		*f.dst = v
	}
	return t, nil
}

// Evaluate parses the request and computes the stream summary plus every
// tranche.
func (r StateRequest) Evaluate() (*SummaryResponse, error) {
	s, err := r.State()
	if err != nil {
		return nil, err
	}

	sum := Summarize(s)
	resp := &SummaryResponse{
		Claimable:    sum.Claimable.Dec(),
		AccrualPoint: sum.AccrualPoint.Dec(),
		Vested:       sum.Vested.Dec(),
		Remaining:    sum.Remaining.Dec(),
		StreamEnd:    sum.StreamEnd.Dec(),
		Progress:     sum.Progress.StringFixed(2),
	}

	for _, tr := range r.Tranches {
		t, err := tr.Tranche()
		if err != nil {
			return nil, err
		}
		res := CalculateTranche(s, t)
		paused := t.PausedDuration(s.PausedDuration)
		resp.Tranches = append(resp.Tranches, TrancheResponse{
			Token:          t.Token,
			Claimable:      res.Claimable.Dec(),
			AccrualPoint:   res.AccrualPoint.Dec(),
			PausedDuration: paused.Dec(),
		})
	}
	return resp, nil
}
