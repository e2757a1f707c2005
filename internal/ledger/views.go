package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/horizonmkt/market-engine/internal/lmsr"
	"github.com/horizonmkt/market-engine/internal/model"
)

// PricesView is the read-only projection behind GET /prices.
type PricesView struct {
	OnDate      []lmsr.PriceRow `json:"onDate"`
	ByDate      []lmsr.PriceRow `json:"byDate"`
	B           float64         `json:"b"`
	TotalVolume float64         `json:"totalVolume"`
	Status      string          `json:"status"`
}

// AMMView exposes the liquidity schedule behind GET /state.
type AMMView struct {
	B     float64 `json:"b"`
	Alpha float64 `json:"alpha"`
	MinB  float64 `json:"minB"`
}

// StateView is the read-only projection behind GET /state.
type StateView struct {
	Market       model.Market  `json:"market"`
	AMM          AMMView       `json:"amm"`
	TradeCount   int64         `json:"tradeCount"`
	RecentTrades []model.Trade `json:"recentTrades"`
}

// Position is one non-empty balance slot priced at current market levels.
type Position struct {
	MarketType model.MarketType `json:"marketType"`
	Day        int              `json:"day"`
	Shares     float64          `json:"shares"`
	Price      decimal.Decimal  `json:"price"`
	Value      decimal.Decimal  `json:"value"`
}

// PositionsView is the read-only projection behind GET /positions/{address}.
type PositionsView struct {
	Address         string          `json:"address"`
	Positions       []Position      `json:"positions"`
	TotalShareValue decimal.Decimal `json:"totalShareValue"`
	Session         *model.Session  `json:"session,omitempty"`
}

// Prices returns the displayed price rows for both market framings at the
// current liquidity level. No mutation.
func (l *Ledger) Prices() (*PricesView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.market == nil {
		return nil, ErrNoMarket
	}

	b := l.b()
	return &PricesView{
		OnDate:      lmsr.PriceRows(l.amm.OnDate, b, model.OnDate),
		ByDate:      lmsr.PriceRows(l.amm.ByDate, b, model.ByDate),
		B:           b,
		TotalVolume: l.market.TotalVolume,
		Status:      l.market.Status,
	}, nil
}

// recentTradeWindow is how many trades the state view exposes.
const recentTradeWindow = 10

// State returns the market record, liquidity schedule, and recent trades.
func (l *Ledger) State() (*StateView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.market == nil {
		return nil, ErrNoMarket
	}

	recent := l.trades
	if len(recent) > recentTradeWindow {
		recent = recent[len(recent)-recentTradeWindow:]
	}
	out := make([]model.Trade, len(recent))
	copy(out, recent)

	return &StateView{
		Market: *l.market,
		AMM: AMMView{
			B:     l.b(),
			Alpha: l.amm.Alpha,
			MinB:  l.amm.MinB,
		},
		TradeCount:   l.nextTradeID - 1,
		RecentTrades: out,
	}, nil
}

// Positions marks the user's holdings to current prices. On-date slots are
// valued at the day's raw probability, by-date slots at the cumulative
// probability through their day.
func (l *Ledger) Positions(address string) (*PositionsView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.market == nil {
		return nil, ErrNoMarket
	}

	view := &PositionsView{
		Address:         address,
		Positions:       []Position{},
		TotalShareValue: decimal.Zero,
	}
	if sess, ok := l.sessions[address]; ok {
		copy := *sess
		view.Session = &copy
	}

	bal, ok := l.balances[address]
	if !ok {
		return view, nil
	}

	b := l.b()
	for _, mt := range []model.MarketType{model.OnDate, model.ByDate} {
		probs := lmsr.AllDayPrices(*l.amm.Quantities(mt), b)
		var cum float64
		for day := 0; day < model.NumDays; day++ {
			p := probs[day]
			if mt == model.ByDate {
				cum += p
				p = cum
			}

			shares := bal.Shares(mt)[day]
			if shares <= SharesTolerance {
				continue
			}

			price := decimal.NewFromFloat(p).Round(4)
			value := decimal.NewFromFloat(shares * p).Round(4)
			view.Positions = append(view.Positions, Position{
				MarketType: mt,
				Day:        day,
				Shares:     shares,
				Price:      price,
				Value:      value,
			})
			view.TotalShareValue = view.TotalShareValue.Add(value)
		}
	}
	return view, nil
}
