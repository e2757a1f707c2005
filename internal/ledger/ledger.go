// Package ledger owns the transactional state of one 28-day prediction
// market: the market record, both AMM quantity vectors, per-user balances,
// the bounded trade log, and pass-through sessions.
//
// Every operation is validate-then-mutate: a validation failure returns a
// sentinel error from errors.go and leaves state untouched. Mutations are
// serialized by a single mutex — the read-compute-write cycle of a trade
// must not interleave with another trade's, or users would be mischarged.
// After each successful mutation the full snapshot is handed to the store;
// save failures are logged and counted but never fail the operation, so
// in-memory state stays authoritative until the next successful save.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/horizonmkt/market-engine/internal/lmsr"
	"github.com/horizonmkt/market-engine/internal/metrics"
	"github.com/horizonmkt/market-engine/internal/model"
	"github.com/horizonmkt/market-engine/internal/store"
)

// SharesTolerance is the floating slack allowed on balance checks. A user
// holding 9.9995 shares may sell 10; the residual entry may dip to at most
// -SharesTolerance.
const SharesTolerance = 0.001

// Default liquidity schedule. b starts at MinB and grows with volume once
// alpha * totalVolume exceeds it.
const (
	DefaultAlpha = 2.5
	DefaultMinB  = 150
)

// Config seeds a fresh market when no snapshot exists.
type Config struct {
	Alpha float64
	MinB  float64

	// InitialPrices optionally seeds the on-date quantity vector so the
	// opening book reflects a prior instead of the uniform distribution.
	InitialPrices *model.DayVector

	// Now overrides the trade-timestamp clock. Defaults to time.Now.
	Now func() time.Time
}

// Ledger is the single-market state machine. Safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	store store.Store
	nowFn func() time.Time

	market      *model.Market
	amm         model.AMMState
	balances    map[string]*model.Balance
	trades      []model.Trade
	sessions    map[string]*model.Session
	nextTradeID int64
}

// New builds a ledger from the store's snapshot, or seeds a fresh market
// when none exists. A load error is fatal; a failed initial save is not.
func New(ctx context.Context, cfg Config, st store.Store) (*Ledger, error) {
	if cfg.Alpha <= 0 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.MinB <= 0 {
		cfg.MinB = DefaultMinB
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	l := &Ledger{
		store:    st,
		nowFn:    nowFn,
		balances: make(map[string]*model.Balance),
		sessions: make(map[string]*model.Session),
	}

	snap, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if snap != nil {
		l.restore(snap)
		slog.Info("ledger restored from snapshot",
			"market", l.market.ID,
			"status", l.market.Status,
			"total_volume", l.market.TotalVolume,
			"users", len(l.balances),
		)
		return l, nil
	}

	l.market = &model.Market{
		ID:        uuid.New().String(),
		Status:    model.StatusOpen,
		CreatedAt: nowFn().UTC(),
	}
	l.amm = model.AMMState{Alpha: cfg.Alpha, MinB: cfg.MinB}
	if cfg.InitialPrices != nil {
		l.amm.OnDate = lmsr.QuantitiesFromPrices(*cfg.InitialPrices, cfg.MinB)
		l.amm.ByDate = l.amm.OnDate
	}
	l.nextTradeID = 1

	slog.Info("ledger seeded fresh market",
		"market", l.market.ID,
		"alpha", cfg.Alpha,
		"min_b", cfg.MinB,
	)
	l.save(ctx)
	return l, nil
}

func (l *Ledger) restore(snap *model.Snapshot) {
	m := snap.Market
	l.market = &m
	l.amm = snap.AMM
	l.trades = append(l.trades, snap.Trades...)
	for user, b := range snap.Balances {
		l.balances[user] = b
	}
	for user, s := range snap.Sessions {
		l.sessions[user] = s
	}
	l.nextTradeID = snap.NextTradeID
	if l.nextTradeID < 1 {
		l.nextTradeID = 1
	}
}

// b computes the current dynamic liquidity parameter. Caller holds the lock.
func (l *Ledger) b() float64 {
	return lmsr.DynamicB(l.amm.Alpha, l.market.TotalVolume, l.amm.MinB)
}

func (l *Ledger) balance(user string) *model.Balance {
	b, ok := l.balances[user]
	if !ok {
		b = &model.Balance{USD: decimal.Zero}
		l.balances[user] = b
	}
	return b
}

// checkOpen validates the market state for a mutating operation.
func (l *Ledger) checkOpen() error {
	if l.market == nil {
		return ErrNoMarket
	}
	if l.market.Status != model.StatusOpen {
		return ErrMarketClosed
	}
	return nil
}

// appendTrade records a trade, dropping the oldest entries beyond the
// bounded log size.
func (l *Ledger) appendTrade(t model.Trade) {
	l.trades = append(l.trades, t)
	if len(l.trades) > model.MaxTradeLog {
		l.trades = l.trades[len(l.trades)-model.MaxTradeLog:]
	}
}

// save persists the full snapshot. Failures are non-fatal: the trade has
// already committed in memory and the next successful save will catch up.
func (l *Ledger) save(ctx context.Context) {
	snap := &model.Snapshot{
		Market:      *l.market,
		AMM:         l.amm,
		Balances:    l.balances,
		Trades:      l.trades,
		Sessions:    l.sessions,
		NextTradeID: l.nextTradeID,
	}
	if err := l.store.Save(ctx, snap); err != nil {
		metrics.SnapshotSaveFailures.Inc()
		slog.Error("snapshot save failed, serving from memory", "err", err)
	}
}

// TradeResult reports an executed buy or sell.
type TradeResult struct {
	Trade  model.Trade
	Cost   decimal.Decimal // cash paid on buy, or received on sell
	Shares float64
}

// Buy converts a cash budget into shares on one day of one market framing.
// The budget is solved into a share count by bisection over the cost
// function, the AMM quantities move by that delta, the user is credited,
// and the cumulative volume grows by the realized cost (which feeds the
// liquidity parameter on subsequent trades).
func (l *Ledger) Buy(ctx context.Context, user string, mt model.MarketType, dayIndex int, amount decimal.Decimal) (*TradeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidParams)
	}
	if dayIndex < 0 || dayIndex >= model.NumDays {
		return nil, fmt.Errorf("%w: day index %d outside [0,%d)", ErrInvalidParams, dayIndex, model.NumDays)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidParams, amount)
	}

	budget := amount.InexactFloat64()
	b := l.b()
	q := l.amm.Quantities(mt)

	shares := lmsr.SharesForBudget(*q, dayIndex, b, budget, true)
	delta := lmsr.SingleDayDelta(dayIndex, shares, true)
	cost := lmsr.TradeCost(*q, delta, b)

	// Commit.
	q[dayIndex] += shares
	l.balance(user).Shares(mt)[dayIndex] += shares
	l.market.TotalVolume += cost

	trade := model.Trade{
		ID:         l.nextTradeID,
		Timestamp:  l.nowFn().UTC(),
		User:       user,
		Kind:       model.KindBuy,
		MarketType: mt,
		DayIndex:   dayIndex,
		Amount:     decimal.NewFromFloat(cost).Round(8),
		Shares:     shares,
	}
	l.nextTradeID++
	l.appendTrade(trade)

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"user", user,
		"kind", "buy",
		"market_type", mt,
		"day", dayIndex,
		"cost", trade.Amount.String(),
		"shares", shares,
		"b", b,
		"total_volume", l.market.TotalVolume,
	)

	l.save(ctx)
	metrics.TotalVolume.Set(l.market.TotalVolume)
	metrics.LiquidityB.Set(l.b())

	return &TradeResult{Trade: trade, Cost: trade.Amount, Shares: shares}, nil
}

// Sell liquidates shares the user already holds on one day. Revenue is the
// negated trade cost of the downward quantity move. Volume grows by the
// revenue as well — both directions of flow deepen liquidity; the counter
// is a flow magnitude, not a net cash position.
func (l *Ledger) Sell(ctx context.Context, user string, mt model.MarketType, dayIndex int, shares float64) (*TradeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidParams)
	}
	if dayIndex < 0 || dayIndex >= model.NumDays {
		return nil, fmt.Errorf("%w: day index %d outside [0,%d)", ErrInvalidParams, dayIndex, model.NumDays)
	}
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be positive, got %g", ErrInvalidParams, shares)
	}

	bal := l.balance(user)
	held := bal.Shares(mt)[dayIndex]
	if held < shares-SharesTolerance {
		return nil, fmt.Errorf("%w: have %g on day %d, tried to sell %g", ErrInsufficientShares, held, dayIndex, shares)
	}

	b := l.b()
	q := l.amm.Quantities(mt)

	delta := lmsr.SingleDayDelta(dayIndex, shares, false)
	revenue := -lmsr.TradeCost(*q, delta, b)

	// Commit.
	q[dayIndex] -= shares
	bal.Shares(mt)[dayIndex] -= shares
	l.market.TotalVolume += revenue

	trade := model.Trade{
		ID:         l.nextTradeID,
		Timestamp:  l.nowFn().UTC(),
		User:       user,
		Kind:       model.KindSell,
		MarketType: mt,
		DayIndex:   dayIndex,
		Amount:     decimal.NewFromFloat(revenue).Round(8),
		Shares:     shares,
	}
	l.nextTradeID++
	l.appendTrade(trade)

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"user", user,
		"kind", "sell",
		"market_type", mt,
		"day", dayIndex,
		"revenue", trade.Amount.String(),
		"shares", shares,
		"b", b,
		"total_volume", l.market.TotalVolume,
	)

	l.save(ctx)
	metrics.TotalVolume.Set(l.market.TotalVolume)
	metrics.LiquidityB.Set(l.b())

	return &TradeResult{Trade: trade, Cost: trade.Amount, Shares: shares}, nil
}

// Resolve marks the market resolved at winningDay (1-based) and reports
// each holder's on-date share count for that day. The payout map is
// advisory output for the settlement layer: balances are not debited and
// shares are not burned here. The by-date framing has no payout rule in
// this operation.
func (l *Ledger) Resolve(ctx context.Context, winningDay int) (map[string]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.market == nil {
		return nil, ErrNoMarket
	}
	if l.market.Status != model.StatusOpen {
		return nil, ErrMarketClosed
	}
	if winningDay < 1 || winningDay > model.NumDays {
		return nil, fmt.Errorf("%w: winning day %d outside [1,%d]", ErrInvalidParams, winningDay, model.NumDays)
	}

	day := winningDay
	l.market.Status = model.StatusResolved
	l.market.Resolution = &day

	payouts := make(map[string]float64)
	for user, bal := range l.balances {
		if s := bal.OnDate[winningDay-1]; s > 0 {
			payouts[user] = s
		}
	}

	slog.Info("market resolved",
		"market", l.market.ID,
		"winning_day", winningDay,
		"holders", len(payouts),
	)

	l.save(ctx)
	return payouts, nil
}

// UpdateSession merges fields into the user's session blob and stamps the
// update time. Sessions carry no trading semantics; the ledger just
// persists them alongside market state.
func (l *Ledger) UpdateSession(ctx context.Context, user string, fields map[string]any) (*model.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if user == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidParams)
	}

	sess, ok := l.sessions[user]
	if !ok {
		sess = &model.Session{Data: make(map[string]any)}
		l.sessions[user] = sess
	}
	for k, v := range fields {
		sess.Data[k] = v
	}
	sess.UpdatedAt = l.nowFn().UTC()

	l.save(ctx)

	out := *sess
	return &out, nil
}
