// Package api exposes the simulation's command surface over HTTP. Handlers
// are thin adapters: decode, call into sim.Service, map the error taxonomy
// to status codes. Every error body carries enough context to render a
// precise message without a second lookup.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/papertrade/market-sim/internal/sim"
)

// Server holds the handler dependencies.
type Server struct {
	svc *sim.Service
}

// NewServer creates the HTTP handler set around a simulation service.
func NewServer(svc *sim.Service) *Server {
	return &Server{svc: svc}
}

// TradeRequest is the JSON body for POST /trades/buy and /trades/sell.
type TradeRequest struct {
	Participant string `json:"participant"`
	Symbol      string `json:"symbol"`
	Quantity    int64  `json:"quantity"`
}

// TradeResponse wraps a receipt, with a warning when the sell's ledger
// credit failed after the portfolio mutation was already applied.
type TradeResponse struct {
	Receipt *sim.TradeReceipt `json:"receipt"`
	Warning string            `json:"warning,omitempty"`
}

// SubscribeRequest is the JSON body for POST /subscriptions.
type SubscribeRequest struct {
	Participant string `json:"participant"`
	URL         string `json:"url"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Symbol    string `json:"symbol,omitempty"`
	Requested int64  `json:"requested,omitempty"`
	Needed    string `json:"needed,omitempty"`
	Available string `json:"available,omitempty"`
	Owned     *int64 `json:"owned,omitempty"`
}

// Buy handles POST /api/v1/trades/buy.
func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errorResponse{Error: "invalid request body"}, http.StatusBadRequest)
		return
	}
	if req.Participant == "" {
		writeError(w, errorResponse{Error: "participant is required"}, http.StatusBadRequest)
		return
	}

	receipt, err := s.svc.Buy(r.Context(), req.Participant, req.Symbol, req.Quantity)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	writeJSON(w, TradeResponse{Receipt: receipt}, http.StatusOK)
}

// Sell handles POST /api/v1/trades/sell.
func (s *Server) Sell(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errorResponse{Error: "invalid request body"}, http.StatusBadRequest)
		return
	}
	if req.Participant == "" {
		writeError(w, errorResponse{Error: "participant is required"}, http.StatusBadRequest)
		return
	}

	receipt, err := s.svc.Sell(r.Context(), req.Participant, req.Symbol, req.Quantity)
	if err != nil {
		// Credit failure after the mutation is a warning, not a rollback.
		if errors.Is(err, sim.ErrLedgerCredit) && receipt != nil {
			writeJSON(w, TradeResponse{Receipt: receipt, Warning: err.Error()}, http.StatusOK)
			return
		}
		writeTradeError(w, err)
		return
	}
	writeJSON(w, TradeResponse{Receipt: receipt}, http.StatusOK)
}

// ListInstruments handles GET /api/v1/instruments?q=
func (s *Server) ListInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Instruments(r.URL.Query().Get("q")), http.StatusOK)
}

// GetInstrument handles GET /api/v1/instruments/{symbol}
func (s *Server) GetInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	inst, ok := s.svc.Instrument(symbol)
	if !ok {
		writeError(w, errorResponse{Error: "unknown instrument", Symbol: symbol}, http.StatusNotFound)
		return
	}
	writeJSON(w, inst, http.StatusOK)
}

// GetPortfolio handles GET /api/v1/portfolio/{participant}
func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Portfolio(chi.URLParam(r, "participant")), http.StatusOK)
}

// Leaderboard handles GET /api/v1/leaderboard?limit=
func (s *Server) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10, 25)
	rows, err := s.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, errorResponse{Error: "failed to compute leaderboard"}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows, http.StatusOK)
}

// Movers handles GET /api/v1/movers?limit=
func (s *Server) Movers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Movers(queryLimit(r, 5, 15)), http.StatusOK)
}

// Subscribe handles POST /api/v1/subscriptions.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errorResponse{Error: "invalid request body"}, http.StatusBadRequest)
		return
	}
	if err := s.svc.Subscribe(r.Context(), req.Participant, req.URL); err != nil {
		writeError(w, errorResponse{Error: err.Error()}, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "subscribed", "participant": req.Participant}, http.StatusCreated)
}

// Unsubscribe handles DELETE /api/v1/subscriptions/{participant}.
func (s *Server) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")
	if !s.svc.Unsubscribe(r.Context(), participant) {
		writeError(w, errorResponse{Error: "no subscription for participant"}, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeTradeError maps the sim error taxonomy to HTTP status codes.
func writeTradeError(w http.ResponseWriter, err error) {
	var (
		unknown *sim.UnknownInstrumentError
		funds   *sim.InsufficientFundsError
		shares  *sim.InsufficientSharesError
	)
	switch {
	case errors.Is(err, sim.ErrInvalidQuantity):
		writeError(w, errorResponse{Error: err.Error()}, http.StatusBadRequest)
	case errors.As(err, &unknown):
		writeError(w, errorResponse{Error: err.Error(), Symbol: unknown.Symbol}, http.StatusNotFound)
	case errors.As(err, &funds):
		writeError(w, errorResponse{
			Error:     err.Error(),
			Symbol:    funds.Symbol,
			Requested: funds.Quantity,
			Needed:    funds.Needed.String(),
			Available: funds.Available.String(),
		}, http.StatusConflict)
	case errors.As(err, &shares):
		owned := shares.Owned
		writeError(w, errorResponse{
			Error:     err.Error(),
			Symbol:    shares.Symbol,
			Requested: shares.Requested,
			Owned:     &owned,
		}, http.StatusConflict)
	case errors.Is(err, sim.ErrLedgerDebit):
		writeError(w, errorResponse{Error: err.Error()}, http.StatusBadGateway)
	default:
		writeError(w, errorResponse{Error: "internal error"}, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, resp errorResponse, status int) {
	writeJSON(w, resp, status)
}

func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
