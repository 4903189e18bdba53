package accrual

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Summary extends Result with the figures progress bars and live counters
// render.
type Summary struct {
	Result
	Vested    uint256.Int // totalStreamed at AccrualPoint
	Remaining uint256.Int // TotalAmount - Vested, floored at zero
	StreamEnd uint256.Int
	// Progress is Vested/TotalAmount as a percentage, truncated to two places.
	Progress decimal.Decimal
}

// Summarize computes Calculate(s) together with vesting progress.
func Summarize(s State) Summary {
	sum := Summary{
		Result:    Calculate(s),
		StreamEnd: streamEnd(&s),
	}

	if streamed, _, ok := vested(&s); ok {
		sum.Vested = streamed
	} else if !s.Duration.IsZero() && sum.AccrualPoint.Gt(&s.StartTime) {
		// Nothing new since LastClaimed, but the stream may still hold value
		// vested before it. AccrualPoint can be a raw LastClaimed here.
		ap := capTime(&s, sum.AccrualPoint)
		sum.Vested = streamedAt(&s, &ap)
	}

	sum.Remaining = floorSub(s.TotalAmount, sum.Vested)
	sum.Progress = percent(sum.Vested, s.TotalAmount)
	return sum
}

func percent(part, whole uint256.Int) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	p := decimal.NewFromBigInt(part.ToBig(), 0).Mul(decimal.NewFromInt(100))
	return p.DivRound(decimal.NewFromBigInt(whole.ToBig(), 0), 4).Truncate(2)
}
