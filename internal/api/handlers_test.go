package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/market-sim/internal/ledger"
	"github.com/papertrade/market-sim/internal/market"
	"github.com/papertrade/market-sim/internal/model"
	"github.com/papertrade/market-sim/internal/notify"
	"github.com/papertrade/market-sim/internal/sim"
	"github.com/papertrade/market-sim/internal/store"
)

func testInstruments() []model.Instrument {
	abc := decimal.NewFromInt(100)
	xyz := decimal.NewFromInt(10)
	return []model.Instrument{
		{Symbol: "ABC", Name: "Aurora Tech", Sector: "Tech", Price: abc, LastPrice: abc},
		{Symbol: "XYZ", Name: "Nimbus Foods", Sector: "Food", Price: xyz, LastPrice: xyz},
	}
}

func newTestRouter(t *testing.T, cash ledger.Cash) http.Handler {
	t.Helper()
	svc := sim.New(market.NewRegistry(testInstruments()), nil,
		store.NewMemoryStore(), cash, sim.Options{
			Webhooks: notify.NewWebhookSink(0),
			Rand:     rand.New(rand.NewSource(7)),
		})
	srv := NewServer(svc)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/instruments", srv.ListInstruments)
		r.Get("/instruments/{symbol}", srv.GetInstrument)
		r.Post("/trades/buy", srv.Buy)
		r.Post("/trades/sell", srv.Sell)
		r.Get("/portfolio/{participant}", srv.GetPortfolio)
		r.Get("/leaderboard", srv.Leaderboard)
		r.Get("/movers", srv.Movers)
		r.Post("/subscriptions", srv.Subscribe)
		r.Delete("/subscriptions/{participant}", srv.Unsubscribe)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuyEndpoint(t *testing.T) {
	h := newTestRouter(t, ledger.NewMemoryCash(decimal.NewFromInt(1000)))

	rec := doJSON(t, h, http.MethodPost, "/api/v1/trades/buy",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}

	var resp TradeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Receipt == nil || resp.Receipt.Side != "buy" || resp.Receipt.Quantity != 3 {
		t.Errorf("receipt %+v", resp.Receipt)
	}
	if !resp.Receipt.Total.Equal(decimal.NewFromInt(300)) {
		t.Errorf("total %s, want 300", resp.Receipt.Total)
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning %q", resp.Warning)
	}
}

func TestBuyEndpointErrors(t *testing.T) {
	h := newTestRouter(t, ledger.NewMemoryCash(decimal.NewFromInt(50)))

	cases := []struct {
		name string
		req  TradeRequest
		code int
	}{
		{"missing participant", TradeRequest{Symbol: "ABC", Quantity: 1}, http.StatusBadRequest},
		{"zero quantity", TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 0}, http.StatusBadRequest},
		{"unknown symbol", TradeRequest{Participant: "alice", Symbol: "NOPE", Quantity: 1}, http.StatusNotFound},
		{"insufficient funds", TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 1}, http.StatusConflict},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/trades/buy", c.req)
			if rec.Code != c.code {
				t.Fatalf("status %d, want %d: %s", rec.Code, c.code, rec.Body)
			}
		})
	}

	// The 409 body carries the amounts needed to explain the rejection.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/trades/buy",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 1})
	var body struct {
		Needed    string `json:"needed"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Needed != "100" || body.Available != "50" {
		t.Errorf("needed %q available %q", body.Needed, body.Available)
	}
}

func TestSellEndpoint(t *testing.T) {
	h := newTestRouter(t, ledger.NewMemoryCash(decimal.NewFromInt(1000)))

	doJSON(t, h, http.MethodPost, "/api/v1/trades/buy",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 5})

	// Oversell reports the owned count at 409.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/trades/sell",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 6})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell status %d: %s", rec.Code, rec.Body)
	}
	var conflict struct {
		Owned *int64 `json:"owned"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conflict.Owned == nil || *conflict.Owned != 5 {
		t.Errorf("owned %v, want 5", conflict.Owned)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/trades/sell",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("sell status %d: %s", rec.Code, rec.Body)
	}
	var resp TradeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Receipt == nil || resp.Receipt.Side != "sell" {
		t.Errorf("receipt %+v", resp.Receipt)
	}
}

// brokenCreditCash fails every credit. Used to observe the
// receipt-with-warning path.
type brokenCreditCash struct {
	ledger.Cash
}

func (c *brokenCreditCash) Credit(context.Context, string, decimal.Decimal) error {
	return errors.New("connection refused")
}

func TestSellCreditFailureReturnsWarning(t *testing.T) {
	h := newTestRouter(t, &brokenCreditCash{Cash: ledger.NewMemoryCash(decimal.NewFromInt(1000))})

	doJSON(t, h, http.MethodPost, "/api/v1/trades/buy",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 1})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/trades/sell",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var resp TradeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Receipt == nil {
		t.Fatal("receipt missing")
	}
	if resp.Warning == "" {
		t.Error("warning missing on credit failure")
	}
}

func TestInstrumentEndpoints(t *testing.T) {
	h := newTestRouter(t, ledger.NewMemoryCash(decimal.NewFromInt(1000)))

	rec := doJSON(t, h, http.MethodGet, "/api/v1/instruments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var list []model.Instrument
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("listed %d instruments", len(list))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/instruments?q=food", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Symbol != "XYZ" {
		t.Errorf("filtered list %+v", list)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/instruments/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	var inst model.Instrument
	if err := json.Unmarshal(rec.Body.Bytes(), &inst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Symbol != "ABC" {
		t.Errorf("instrument %+v", inst)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/instruments/NOPE", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown instrument status %d", rec.Code)
	}
}

func TestPortfolioLeaderboardMovers(t *testing.T) {
	h := newTestRouter(t, ledger.NewMemoryCash(decimal.NewFromInt(1000)))

	doJSON(t, h, http.MethodPost, "/api/v1/trades/buy",
		TradeRequest{Participant: "alice", Symbol: "ABC", Quantity: 2})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/portfolio/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio status %d", rec.Code)
	}
	var view sim.PortfolioView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Holdings) != 1 || view.Holdings[0].Shares != 2 {
		t.Errorf("view %+v", view)
	}

	// Unknown participants get an empty view, not an error.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/portfolio/nobody", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("empty portfolio status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/leaderboard?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard status %d", rec.Code)
	}
	var rows []sim.NetWorth
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Participant != "alice" {
		t.Errorf("rows %+v", rows)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/movers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("movers status %d", rec.Code)
	}
	var report sim.MoversReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	h := newTestRouter(t, ledger.NewMemoryCash(decimal.NewFromInt(1000)))

	rec := doJSON(t, h, http.MethodPost, "/api/v1/subscriptions",
		SubscribeRequest{Participant: "alice", URL: "http://example.com/hook"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("plain http url status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/subscriptions",
		SubscribeRequest{Participant: "alice", URL: "https://example.com/hook"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("subscribe status %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/subscriptions/alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("unsubscribe status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/api/v1/subscriptions/alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double unsubscribe status %d", rec.Code)
	}
}
