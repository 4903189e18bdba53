// Package accrual computes how much of a payment stream has vested at a point
// in time.
//
// The math mirrors the StreamManager contract's accounting exactly: every
// quantity is an unsigned 256-bit integer and the vested amount is
// floor(totalAmount * effectiveElapsed / duration). Inputs come from fresh
// on-chain reads and are never trusted to satisfy invariants, so the engine
// clamps instead of underflowing and never returns an error.
package accrual

import (
	"github.com/holiman/uint256"
)

// State is a point-in-time view of a stream, reconstructed from chain reads.
// The zero value is a valid (non-vesting) state.
type State struct {
	TotalAmount    uint256.Int
	ClaimedAmount  uint256.Int
	StartTime      uint256.Int
	Duration       uint256.Int
	LastClaimed    uint256.Int
	StopTime       uint256.Int // 0 = not stopped
	IsPaused       bool
	PauseStart     uint256.Int
	PausedDuration uint256.Int // cumulative seconds spent paused

	// Timestamp is the instant the accrual is evaluated at.
	Timestamp uint256.Int
}

// Result is the outcome of an accrual calculation.
type Result struct {
	Claimable    uint256.Int
	AccrualPoint uint256.Int // timestamp up to which the result accounts
}

var maxUint256 = new(uint256.Int).SetAllOne()

// Calculate returns the amount claimable from s at s.Timestamp and the
// timestamp the claim accounts up to.
//
// Comparisons are deliberately asymmetric: a query at exactly LastClaimed
// yields zero, while pause/stop/end caps only apply when strictly earlier
// than the candidate time.
func Calculate(s State) Result {
	streamed, effective, ok := vested(&s)
	if !ok {
		return Result{AccrualPoint: effective}
	}
	if !streamed.Gt(&s.ClaimedAmount) {
		return Result{AccrualPoint: effective}
	}

	var r Result
	r.Claimable.Sub(&streamed, &s.ClaimedAmount)
	r.AccrualPoint = effective
	return r
}

// vested computes totalStreamed at the effective time. ok is false when the
// stream has nothing new to account since LastClaimed; effective is then the
// accrual point to report.
func vested(s *State) (streamed, effective uint256.Int, ok bool) {
	if s.Duration.IsZero() || !s.Timestamp.Gt(&s.LastClaimed) {
		return streamed, s.LastClaimed, false
	}

	effective = capTime(s, s.Timestamp)
	if !effective.Gt(&s.LastClaimed) {
		return streamed, effective, false
	}

	streamed = streamedAt(s, &effective)
	return streamed, effective, true
}

// streamedAt is the vesting formula evaluated at an already clamped time.
// capTime pulls t back to the current pause start, the stop time or the
// stream end, whichever is earliest and strictly before t.
func capTime(s *State, t uint256.Int) uint256.Int {
	if s.IsPaused && !s.PauseStart.IsZero() && s.PauseStart.Lt(&t) {
		t = s.PauseStart
	}
	if !s.StopTime.IsZero() && s.StopTime.Lt(&t) {
		t = s.StopTime
	}
	if end := streamEnd(s); end.Lt(&t) {
		t = end
	}
	return t
}

func streamedAt(s *State, effective *uint256.Int) uint256.Int {
	var elapsed uint256.Int
	if effective.Gt(&s.StartTime) {
		elapsed.Sub(effective, &s.StartTime)
	}

	paused := s.PausedDuration
	if paused.Gt(&elapsed) {
		paused = elapsed
	}

	var effElapsed uint256.Int
	effElapsed.Sub(&elapsed, &paused)
	if effElapsed.Gt(&s.Duration) {
		effElapsed = s.Duration
	}

	// effElapsed <= Duration, so the quotient never exceeds TotalAmount and
	// the 512-bit intermediate cannot overflow the result.
	var streamed uint256.Int
	streamed.MulDivOverflow(&s.TotalAmount, &effElapsed, &s.Duration)
	return streamed
}

// streamEnd is StartTime + Duration, pushed out by PausedDuration. A wrapped
// sum clamps to the largest representable value.
func streamEnd(s *State) uint256.Int {
	var end uint256.Int
	if _, overflow := end.AddOverflow(&s.StartTime, &s.Duration); overflow {
		return *maxUint256
	}
	if !s.PausedDuration.IsZero() {
		if _, overflow := end.AddOverflow(&end, &s.PausedDuration); overflow {
			return *maxUint256
		}
	}
	return end
}

// StreamEnd reports the timestamp at which s stops vesting, including the
// extension for time spent paused.
func StreamEnd(s State) uint256.Int {
	return streamEnd(&s)
}
