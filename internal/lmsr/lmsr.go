// Package lmsr implements the Logarithmic Market Scoring Rule (LMSR)
// automated market maker over a fixed 28-day outcome horizon.
//
// The LMSR was proposed by Robin Hanson and provides:
//   - Bounded loss for the market maker (capped at b * ln(n))
//   - Continuous pricing with infinite liquidity
//   - Path-independent cost function
//
// All functions here are pure and stateless: quantity vectors are passed
// as arguments, never stored. Transcendental math runs on float64 with the
// log-sum-exp trick for numerical stability; monetary results are converted
// to shopspring/decimal only at the wire boundary (see PriceRows).
//
// Reference: Hanson, R. (2003) "Combinatorial Information Market Design"
package lmsr

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/horizonmkt/market-engine/internal/model"
)

// PriceFloor is the probability floor applied when inverting target prices.
// Prevents ln(0) for outcomes the caller priced at zero.
const PriceFloor = 0.001

// logSumExp computes ln(Σ exp(x_i)) using the log-sum-exp trick to prevent
// floating-point overflow. Without it, exp(x) overflows float64 when
// x > ~709.
//
// Algorithm: LSE(x) = max(x) + ln(Σ exp(x_i - max(x)))
// Since (x_i - max(x)) <= 0, all exp arguments are in [0, 1].
func logSumExp(xs []float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}

	maxVal := xs[0]
	for _, x := range xs[1:] {
		if x > maxVal {
			maxVal = x
		}
	}

	if math.IsInf(maxVal, -1) {
		return math.Inf(-1)
	}

	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - maxVal)
	}
	return maxVal + math.Log(sum)
}

// Cost computes the LMSR cost function:
//
//	C(q) = b * ln(Σ exp(q_i / b))
//
// b must be positive (caller contract). Non-finite inputs propagate to a
// non-finite result rather than being clamped.
func Cost(q model.DayVector, b float64) float64 {
	scaled := make([]float64, model.NumDays)
	for i, qi := range q {
		scaled[i] = qi / b
	}
	return b * logSumExp(scaled)
}

// AllDayPrices computes the instantaneous price (probability) of each day:
//
//	p_i = exp(q_i / b) / Σ exp(q_j / b)
//
// This is the softmax of q/b. Each entry is in (0, 1) and the vector sums
// to 1 — the defining LMSR property.
func AllDayPrices(q model.DayVector, b float64) model.DayVector {
	scaled := make([]float64, model.NumDays)
	for i, qi := range q {
		scaled[i] = qi / b
	}
	lse := logSumExp(scaled)

	var prices model.DayVector
	for i, s := range scaled {
		prices[i] = math.Exp(s - lse)
	}
	return prices
}

// DynamicB derives the liquidity parameter from realized volume:
//
//	b = max(minB, alpha * totalVolume)
//
// The liquidity parameter trades bounded-loss guarantees against price
// responsiveness; scaling it with volume lets the market start tight and
// deepen as capital commits, resisting single-trade manipulation once
// volume accrues. Non-decreasing in totalVolume for fixed alpha, minB.
func DynamicB(alpha, totalVolume, minB float64) float64 {
	return math.Max(minB, alpha*totalVolume)
}

// QuantitiesFromPrices inverts the softmax to seed initial quantities from
// a desired probability vector. Each target is floored at PriceFloor, the
// vector renormalized to sum 1, then log-centered:
//
//	q_i = b * (ln(p_i) - mean(ln(p)))
//
// The induced softmax reproduces the targets exactly unless the floor or
// renormalization distorted extreme values.
func QuantitiesFromPrices(target model.DayVector, b float64) model.DayVector {
	var sum float64
	var p model.DayVector
	for i, t := range target {
		if t < PriceFloor {
			t = PriceFloor
		}
		p[i] = t
		sum += t
	}

	var logs model.DayVector
	var logMean float64
	for i := range p {
		logs[i] = math.Log(p[i] / sum)
		logMean += logs[i]
	}
	logMean /= model.NumDays

	var q model.DayVector
	for i := range logs {
		q[i] = b * (logs[i] - logMean)
	}
	return q
}

// PriceRow is the wire representation of one day's price quote. YesPrice
// is rounded to 4 decimal places, the cents figures to 1.
type PriceRow struct {
	Day      int             `json:"day"`
	YesPrice decimal.Decimal `json:"yesPrice"`
	NoPrice  decimal.Decimal `json:"noPrice"`
	YesCents decimal.Decimal `json:"yesCents"`
	NoCents  decimal.Decimal `json:"noCents"`
}

// PriceRows renders the displayed per-day prices for a market framing.
//
// For on_date markets each day shows its raw softmax probability. For
// by_date markets day d shows the cumulative probability through day d —
// the chance the event has occurred by that day, not on it. That
// distinction is the semantic difference between the two framings.
func PriceRows(q model.DayVector, b float64, mt model.MarketType) []PriceRow {
	probs := AllDayPrices(q, b)

	rows := make([]PriceRow, model.NumDays)
	var cum float64
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	for i, p := range probs {
		yes := p
		if mt == model.ByDate {
			cum += p
			yes = cum
		}
		yesD := decimal.NewFromFloat(yes).Round(4)
		yesCents := decimal.NewFromFloat(yes * 100).Round(1)
		rows[i] = PriceRow{
			Day:      i,
			YesPrice: yesD,
			NoPrice:  one.Sub(yesD),
			YesCents: yesCents,
			NoCents:  hundred.Sub(yesCents),
		}
	}
	return rows
}
