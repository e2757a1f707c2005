// Package model defines the core domain types shared across the market engine.
// Monetary values crossing a wire or storage boundary use shopspring/decimal —
// never float64 for money. Share quantities and AMM state stay float64 because
// they feed transcendental math on every trade.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NumDays is the fixed trading horizon. Every quantity and balance vector
// has exactly this many slots; the array type enforces it.
const NumDays = 28

// DayVector holds one value per day of the horizon.
type DayVector [NumDays]float64

// MarketType distinguishes the two outcome framings over the same horizon:
// "occurs on day d" versus "occurs on or before day d" (cumulative).
type MarketType string

const (
	OnDate MarketType = "on_date"
	ByDate MarketType = "by_date"
)

// ParseMarketType validates a wire-format market type string.
func ParseMarketType(s string) (MarketType, error) {
	switch MarketType(s) {
	case OnDate, ByDate:
		return MarketType(s), nil
	}
	return "", fmt.Errorf("unknown market type %q (want %q or %q)", s, OnDate, ByDate)
}

// TradeKind is the direction of a trade.
type TradeKind string

const (
	KindBuy  TradeKind = "buy"
	KindSell TradeKind = "sell"
)

// Market status values. A market is created open and transitions to
// resolved exactly once; resolved is terminal.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Market is the single market instance owned by a ledger.
type Market struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Resolution  *int      `json:"resolution,omitempty"` // winning day, set on resolve
	TotalVolume float64   `json:"total_volume"`         // cumulative |cash flow|, only grows
	CreatedAt   time.Time `json:"created_at"`
}

// AMMState holds the LMSR quantity vectors for both market framings plus
// the liquidity schedule parameters. b itself is derived, not stored:
// b = max(MinB, Alpha * Market.TotalVolume).
type AMMState struct {
	OnDate DayVector `json:"on_date"`
	ByDate DayVector `json:"by_date"`
	Alpha  float64   `json:"alpha"`
	MinB   float64   `json:"min_b"`
}

// Quantities returns the quantity vector for the given market type, for
// in-place mutation by the ledger.
func (a *AMMState) Quantities(mt MarketType) *DayVector {
	if mt == ByDate {
		return &a.ByDate
	}
	return &a.OnDate
}

// Balance is one user's holdings: a share vector per market framing and a
// USD cash figure reserved for future settlement flows (unused by trading).
type Balance struct {
	OnDate DayVector       `json:"on_date"`
	ByDate DayVector       `json:"by_date"`
	USD    decimal.Decimal `json:"usd"`
}

// Shares returns the share vector for the given market type.
func (b *Balance) Shares(mt MarketType) *DayVector {
	if mt == ByDate {
		return &b.ByDate
	}
	return &b.OnDate
}

// MaxTradeLog bounds the in-memory trade log. Oldest entries are dropped;
// the log is a ring of recent activity, not an audit trail.
const MaxTradeLog = 100

// Trade is one executed buy or sell. IDs are a per-ledger monotonic counter.
type Trade struct {
	ID         int64           `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	User       string          `json:"user"`
	Kind       TradeKind       `json:"kind"`
	MarketType MarketType      `json:"market_type"`
	DayIndex   int             `json:"day_index"`
	Amount     decimal.Decimal `json:"amount"` // cash flow magnitude
	Shares     float64         `json:"shares"` // always >= 0
}

// Session is an opaque per-user key/value blob with no trading semantics.
// Writes merge into Data and stamp UpdatedAt.
type Session struct {
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Snapshot is the whole-state persistence document. It is rewritten in
// full after every successful mutation; there is no write-ahead log, so a
// crash between the in-memory mutation and the save can lose that trade.
type Snapshot struct {
	Market      Market              `json:"market"`
	AMM         AMMState            `json:"amm"`
	Balances    map[string]*Balance `json:"balances"`
	Trades      []Trade             `json:"trades"`
	Sessions    map[string]*Session `json:"sessions"`
	NextTradeID int64               `json:"next_trade_id"`
}
