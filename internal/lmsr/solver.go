package lmsr

import (
	"github.com/horizonmkt/market-engine/internal/model"
)

// Bisection parameters. Fifty halvings shrink the initial interval by 2^50,
// far below any precision the cost tolerance needs.
const (
	solverIterations = 50
	costTolerance    = 1e-4
)

// TradeCost is the marginal cash flow of moving the AMM by delta:
//
//	C(q + delta) - C(q)
//
// Positive means cost to the buyer, negative means payout to a seller.
// The LMSR cost function is convex, so TradeCost restricted to a single
// coordinate is strictly increasing in that coordinate's delta — the
// property the bisection in SharesForBudget relies on.
func TradeCost(q, delta model.DayVector, b float64) float64 {
	var moved model.DayVector
	for i := range q {
		moved[i] = q[i] + delta[i]
	}
	return Cost(moved, b) - Cost(q, b)
}

// SingleDayDelta builds a delta vector that is zero everywhere except
// dayIndex, which is set to shares (negated for sells).
func SingleDayDelta(dayIndex int, shares float64, isBuy bool) model.DayVector {
	var delta model.DayVector
	if isBuy {
		delta[dayIndex] = shares
	} else {
		delta[dayIndex] = -shares
	}
	return delta
}

// SharesForBudget finds the share count s >= 0 whose trade cost matches
// the cash budget, by bisection over [0, budget*100].
//
// budget*100 bounds achievable shares for any realistic budget because the
// cost function grows without bound as the implied price approaches 1.
// Runs exactly solverIterations halvings and returns the midpoint, with an
// early exit once |cost - budget| < costTolerance. Budgets that push the
// implied price arbitrarily close to 1 are not rejected; convergence just
// uses the full iteration budget.
func SharesForBudget(q model.DayVector, dayIndex int, b, budget float64, isBuy bool) float64 {
	lo, hi := 0.0, budget*100

	var mid float64
	for i := 0; i < solverIterations; i++ {
		mid = (lo + hi) / 2
		cost := TradeCost(q, SingleDayDelta(dayIndex, mid, isBuy), b)
		if isBuy {
			if cost > budget {
				hi = mid
			} else {
				lo = mid
			}
		} else {
			// Selling: revenue is -cost and grows with shares sold.
			if -cost > budget {
				hi = mid
			} else {
				lo = mid
			}
		}

		diff := cost - budget
		if !isBuy {
			diff = -cost - budget
		}
		if diff < costTolerance && diff > -costTolerance {
			return mid
		}
	}
	return (lo + hi) / 2
}
