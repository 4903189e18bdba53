package accrual

import "github.com/holiman/uint256"

// Tranche is an independent token allocation inside a multi-token stream.
// Tranches added by a top-up carry pause offsets so that pause time recorded
// before they existed does not extend their vesting.
type Tranche struct {
	Token            string
	TotalAmount      uint256.Int
	ClaimedAmount    uint256.Int
	PauseAccumulated uint256.Int
	PauseCarry       uint256.Int
}

// PausedDuration returns the stream pause time that applies to t:
// streamPaused minus PauseAccumulated, then minus PauseCarry, each step
// floored at zero.
func (t Tranche) PausedDuration(streamPaused uint256.Int) uint256.Int {
	p := floorSub(streamPaused, t.PauseAccumulated)
	return floorSub(p, t.PauseCarry)
}

// State returns the engine input for t under the stream-level timing in s.
func (t Tranche) State(s State) State {
	ts := s
	ts.TotalAmount = t.TotalAmount
	ts.ClaimedAmount = t.ClaimedAmount
	ts.PausedDuration = t.PausedDuration(s.PausedDuration)
	return ts
}

// TrancheResult pairs a tranche's token with its accrual.
type TrancheResult struct {
	Token string
	Result
}

// CalculateTranche computes the accrual of a single tranche.
func CalculateTranche(s State, t Tranche) Result {
	return Calculate(t.State(s))
}

// CalculateTranches computes every tranche independently, preserving order.
func CalculateTranches(s State, tranches []Tranche) []TrancheResult {
	out := make([]TrancheResult, len(tranches))
	for i, t := range tranches {
		out[i] = TrancheResult{Token: t.Token, Result: CalculateTranche(s, t)}
	}
	return out
}

func floorSub(a, b uint256.Int) uint256.Int {
	if !a.Gt(&b) {
		return uint256.Int{}
	}
	var r uint256.Int
	r.Sub(&a, &b)
	return r
}
