package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/horizonmkt/market-engine/internal/api"
	"github.com/horizonmkt/market-engine/internal/ledger"
	"github.com/horizonmkt/market-engine/internal/model"
	"github.com/horizonmkt/market-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestRouter builds a server over a fresh in-memory ledger.
func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	ms := store.NewMemoryStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, err := ledger.New(context.Background(), ledger.Config{
		Alpha: 2.5,
		MinB:  150,
		Now:   func() time.Time { return clock },
	}, ms)
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}

	r := chi.NewRouter()
	r.Mount("/api/v1", api.NewServer(l, nil).Routes())
	return r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

// --- Buy / sell ---

func TestBuyEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/buy", api.BuyRequest{
		User:       "0xabc",
		MarketType: "on_date",
		DayIndex:   0,
		Amount:     d(100),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode[api.BuyResponse](t, w)
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Shares <= 0 {
		t.Errorf("expected positive shares, got %g", resp.Shares)
	}
	if resp.Cost.IsZero() {
		t.Error("expected a non-zero cost")
	}
	if len(resp.Prices) != model.NumDays {
		t.Errorf("expected %d price rows, got %d", model.NumDays, len(resp.Prices))
	}
}

func TestBuyEndpoint_Rejections(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		req  api.BuyRequest
	}{
		{"bad market type", api.BuyRequest{User: "u", MarketType: "sideways", DayIndex: 0, Amount: d(10)}},
		{"day out of range", api.BuyRequest{User: "u", MarketType: "on_date", DayIndex: 28, Amount: d(10)}},
		{"non-positive amount", api.BuyRequest{User: "u", MarketType: "by_date", DayIndex: 0, Amount: d(0)}},
		{"missing user", api.BuyRequest{MarketType: "on_date", DayIndex: 0, Amount: d(10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/buy", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			errResp := decode[map[string]string](t, w)
			if errResp["error"] == "" {
				t.Errorf("expected {error} shape, got %s", w.Body.String())
			}
		})
	}
}

func TestSellEndpoint_RoundTrip(t *testing.T) {
	router := newTestRouter(t)

	buy := decode[api.BuyResponse](t, doJSON(t, router, "POST", "/api/v1/buy", api.BuyRequest{
		User: "0xabc", MarketType: "by_date", DayIndex: 5, Amount: d(50),
	}))

	w := doJSON(t, router, "POST", "/api/v1/sell", api.SellRequest{
		User: "0xabc", MarketType: "by_date", DayIndex: 5, Shares: buy.Shares,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode[api.SellResponse](t, w)
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Revenue.LessThanOrEqual(d(0)) {
		t.Errorf("expected positive revenue, got %s", resp.Revenue)
	}
	if resp.Revenue.GreaterThan(buy.Cost) {
		t.Errorf("round trip must not profit: cost=%s revenue=%s", buy.Cost, resp.Revenue)
	}
}

func TestSellEndpoint_InsufficientShares(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/sell", api.SellRequest{
		User: "0xabc", MarketType: "on_date", DayIndex: 5, Shares: 10,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	errResp := decode[map[string]string](t, w)
	if errResp["error"] == "" {
		t.Error("expected {error} shape")
	}

	// The rejected sell must not have moved prices.
	prices := decode[ledger.PricesView](t, doJSON(t, router, "GET", "/api/v1/prices", nil))
	if prices.TotalVolume != 0 {
		t.Errorf("volume should be untouched, got %g", prices.TotalVolume)
	}
}

// --- Reads ---

func TestPricesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/v1/prices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	resp := decode[ledger.PricesView](t, w)
	if len(resp.OnDate) != model.NumDays || len(resp.ByDate) != model.NumDays {
		t.Fatalf("expected %d rows per framing", model.NumDays)
	}
	if resp.B != 150 || resp.Status != model.StatusOpen {
		t.Errorf("fresh market: b=%g status=%s", resp.B, resp.Status)
	}
	if !resp.ByDate[model.NumDays-1].YesPrice.GreaterThan(resp.OnDate[model.NumDays-1].YesPrice) {
		t.Error("final by-date price should exceed the per-day price (cumulative)")
	}
}

func TestStateEndpoint(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, "POST", "/api/v1/buy", api.BuyRequest{
		User: "0xabc", MarketType: "on_date", DayIndex: 2, Amount: d(25),
	})

	resp := decode[ledger.StateView](t, doJSON(t, router, "GET", "/api/v1/state", nil))
	if resp.TradeCount != 1 {
		t.Errorf("expected tradeCount 1, got %d", resp.TradeCount)
	}
	if len(resp.RecentTrades) != 1 || resp.RecentTrades[0].User != "0xabc" {
		t.Errorf("unexpected recent trades: %+v", resp.RecentTrades)
	}
	if resp.AMM.MinB != 150 {
		t.Errorf("expected minB 150, got %g", resp.AMM.MinB)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, "POST", "/api/v1/buy", api.BuyRequest{
		User: "0xabc", MarketType: "on_date", DayIndex: 2, Amount: d(25),
	})
	doJSON(t, router, "POST", "/api/v1/session", map[string]any{
		"user": "0xabc", "sessionId": "s-1",
	})

	resp := decode[ledger.PositionsView](t, doJSON(t, router, "GET", "/api/v1/positions/0xabc", nil))
	if resp.Address != "0xabc" {
		t.Errorf("address echoed wrong: %s", resp.Address)
	}
	if len(resp.Positions) != 1 || resp.Positions[0].Day != 2 {
		t.Fatalf("unexpected positions: %+v", resp.Positions)
	}
	if resp.TotalShareValue.LessThanOrEqual(d(0)) {
		t.Errorf("expected positive share value, got %s", resp.TotalShareValue)
	}
	if resp.Session == nil || resp.Session.Data["sessionId"] != "s-1" {
		t.Error("session should ride along")
	}
}

// --- Session ---

func TestSessionEndpoint_Merges(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/session", map[string]any{
		"user": "0xabc", "sessionId": "s-1", "version": 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/v1/session", map[string]any{
		"user": "0xabc", "clobBalance": "17.5",
	})
	resp := decode[api.SessionResponse](t, w)
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Session.Data["sessionId"] != "s-1" || resp.Session.Data["clobBalance"] != "17.5" {
		t.Errorf("session writes should merge, got %v", resp.Session.Data)
	}

	// Missing user is a validation error.
	w = doJSON(t, router, "POST", "/api/v1/session", map[string]any{"sessionId": "s-2"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing user, got %d", w.Code)
	}
}

// --- Resolve ---

func TestResolveEndpoint(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, "POST", "/api/v1/buy", api.BuyRequest{
		User: "0xabc", MarketType: "on_date", DayIndex: 9, Amount: d(100),
	})

	w := doJSON(t, router, "POST", "/api/v1/resolve", api.ResolveRequest{WinningDay: 10})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.ResolveResponse](t, w)
	if !resp.Success || resp.WinningDay != 10 {
		t.Errorf("unexpected resolve response: %+v", resp)
	}
	if resp.Payouts["0xabc"] <= 0 {
		t.Errorf("holder should appear in payouts, got %v", resp.Payouts)
	}

	// Trading is rejected after resolution.
	w = doJSON(t, router, "POST", "/api/v1/buy", api.BuyRequest{
		User: "0xabc", MarketType: "on_date", DayIndex: 0, Amount: d(10),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 after resolution, got %d", w.Code)
	}

	state := decode[ledger.StateView](t, doJSON(t, router, "GET", "/api/v1/state", nil))
	if state.Market.Status != model.StatusResolved {
		t.Errorf("status should be resolved, got %s", state.Market.Status)
	}
}

func TestResolveEndpoint_BadDay(t *testing.T) {
	router := newTestRouter(t)

	for _, day := range []int{0, 29} {
		w := doJSON(t, router, "POST", "/api/v1/resolve", api.ResolveRequest{WinningDay: day})
		if w.Code != http.StatusBadRequest {
			t.Errorf("day %d: expected 400, got %d", day, w.Code)
		}
	}
}
