// Package api exposes the ledger over HTTP: price/state/position reads,
// buy/sell/resolve mutations, and pass-through session writes. Handlers
// only parse, validate shape, and translate ledger errors to the wire
// format — all market semantics live in internal/ledger.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/horizonmkt/market-engine/internal/ledger"
	"github.com/horizonmkt/market-engine/internal/lmsr"
	"github.com/horizonmkt/market-engine/internal/metrics"
	"github.com/horizonmkt/market-engine/internal/model"
)

// Server holds handler dependencies.
type Server struct {
	ledger *ledger.Ledger
	hub    *WSHub // optional, nil disables broadcasts
}

// NewServer creates the HTTP surface over a ledger. Pass nil for hub if
// WebSocket broadcasting is not needed.
func NewServer(l *ledger.Ledger, hub *WSHub) *Server {
	return &Server{ledger: l, hub: hub}
}

// Routes mounts every endpoint on a fresh router. main wraps this with
// its middleware stack; tests mount it bare.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	r.Get("/prices", s.GetPrices)
	r.Get("/state", s.GetState)
	r.Get("/positions/{address}", s.GetPositions)
	r.Post("/buy", s.Buy)
	r.Post("/sell", s.Sell)
	r.Post("/session", s.UpdateSession)
	r.Post("/resolve", s.Resolve)
	return r
}

// --- Request/Response types ---

// BuyRequest is the JSON body for POST /buy.
type BuyRequest struct {
	User       string          `json:"user"`
	MarketType string          `json:"marketType"`
	DayIndex   int             `json:"dayIndex"`
	Amount     decimal.Decimal `json:"amount"`
}

// BuyResponse is returned from POST /buy.
type BuyResponse struct {
	Success bool            `json:"success"`
	Cost    decimal.Decimal `json:"cost"`
	Shares  float64         `json:"shares"`
	Prices  []lmsr.PriceRow `json:"prices"`
}

// SellRequest is the JSON body for POST /sell.
type SellRequest struct {
	User       string  `json:"user"`
	MarketType string  `json:"marketType"`
	DayIndex   int     `json:"dayIndex"`
	Shares     float64 `json:"shares"`
}

// SellResponse is returned from POST /sell.
type SellResponse struct {
	Success bool            `json:"success"`
	Revenue decimal.Decimal `json:"revenue"`
	Shares  float64         `json:"shares"`
	Prices  []lmsr.PriceRow `json:"prices"`
}

// SessionResponse is returned from POST /session.
type SessionResponse struct {
	Success bool           `json:"success"`
	Session *model.Session `json:"session"`
}

// ResolveRequest is the JSON body for POST /resolve.
type ResolveRequest struct {
	WinningDay int `json:"winningDay"`
}

// ResolveResponse is returned from POST /resolve.
type ResolveResponse struct {
	Success    bool               `json:"success"`
	WinningDay int                `json:"winningDay"`
	Payouts    map[string]float64 `json:"payouts"`
}

// --- Handlers ---

// GetPrices handles GET /prices.
func (s *Server) GetPrices(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.Prices()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.State()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetPositions handles GET /positions/{address}.
func (s *Server) GetPositions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	view, err := s.ledger.Positions(address)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Buy handles POST /buy.
func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mt, err := model.ParseMarketType(req.MarketType)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.ledger.Buy(r.Context(), req.User, mt, req.DayIndex, req.Amount)
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		s.writeLedgerError(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(string(model.KindBuy), string(mt)).Inc()
	metrics.TradeLatency.WithLabelValues(string(model.KindBuy)).Observe(time.Since(start).Seconds())

	s.broadcastTrade(result.Trade)

	writeJSON(w, http.StatusOK, BuyResponse{
		Success: true,
		Cost:    result.Cost,
		Shares:  result.Shares,
		Prices:  s.pricesFor(mt),
	})
}

// Sell handles POST /sell.
func (s *Server) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mt, err := model.ParseMarketType(req.MarketType)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.ledger.Sell(r.Context(), req.User, mt, req.DayIndex, req.Shares)
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		s.writeLedgerError(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(string(model.KindSell), string(mt)).Inc()
	metrics.TradeLatency.WithLabelValues(string(model.KindSell)).Observe(time.Since(start).Seconds())

	s.broadcastTrade(result.Trade)

	writeJSON(w, http.StatusOK, SellResponse{
		Success: true,
		Revenue: result.Cost,
		Shares:  result.Shares,
		Prices:  s.pricesFor(mt),
	})
}

// UpdateSession handles POST /session. The body is an opaque blob; only
// "user" is interpreted, the rest is merged into the session as-is.
func (s *Server) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, _ := body["user"].(string)
	delete(body, "user")

	sess, err := s.ledger.UpdateSession(r.Context(), user, body)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, Session: sess})
}

// Resolve handles POST /resolve.
func (s *Server) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payouts, err := s.ledger.Resolve(r.Context(), req.WinningDay)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{Type: "market_resolved", Day: req.WinningDay})
	}

	writeJSON(w, http.StatusOK, ResolveResponse{
		Success:    true,
		WinningDay: req.WinningDay,
		Payouts:    payouts,
	})
}

// --- Helpers ---

// pricesFor fetches the post-trade price rows for one framing. Best
// effort: a nil slice just omits prices from the response.
func (s *Server) pricesFor(mt model.MarketType) []lmsr.PriceRow {
	view, err := s.ledger.Prices()
	if err != nil {
		return nil
	}
	if mt == model.ByDate {
		return view.ByDate
	}
	return view.OnDate
}

func (s *Server) broadcastTrade(t model.Trade) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(WSMessage{
		Type:       "trade_executed",
		Kind:       string(t.Kind),
		MarketType: string(t.MarketType),
		Day:        t.DayIndex,
		Shares:     t.Shares,
		Amount:     t.Amount.String(),
	})
}

// writeLedgerError maps typed ledger errors to the wire {error} shape.
// Validation failures are 400; anything unrecognized is 500.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidParams),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrMarketClosed),
		errors.Is(err, ledger.ErrNoMarket):
		status = http.StatusBadRequest
	default:
		slog.Error("request failed", "err", err)
	}
	writeError(w, err.Error(), status)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ledger.ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, ledger.ErrNoMarket):
		return "no_market"
	}
	return "internal"
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
