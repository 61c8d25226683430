// Package trade provides the HTTP handlers for submitting orders and
// querying the trade log, positions and portfolio valuation.
//
// All monetary values use shopspring/decimal, never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/engine"
	"github.com/microtrade/ledger-engine/internal/instrument"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/oracle"
	"github.com/microtrade/ledger-engine/internal/order"
	"github.com/microtrade/ledger-engine/internal/persist"
)

// maxImportBytes bounds the size of an imported trade log.
const maxImportBytes = 10 << 20

// Service exposes the ledger engine over HTTP.
type Service struct {
	engine *engine.Engine
	assets []oracle.Asset
}

// NewService creates a new trade service. assets is the table served at
// GET /crypto and may be nil.
func NewService(e *engine.Engine, assets []oracle.Asset) *Service {
	return &Service{engine: e, assets: assets}
}

// Routes returns the API router, to be mounted at /api/v1. hub may be nil.
func (s *Service) Routes(hub *WSHub) chi.Router {
	r := chi.NewRouter()
	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}

	r.Post("/orders", s.SubmitOrder)
	r.Post("/orders/preview", s.PreviewOrder)

	r.Get("/trades", s.ListTrades)
	r.Delete("/trades", s.ClearTrades)
	r.Get("/trades/export", s.ExportTrades)
	r.Post("/trades/import", s.ImportTrades)

	r.Get("/positions", s.GetPositions)
	r.Get("/portfolio", s.GetPortfolio)
	r.Get("/portfolio/equity", s.GetEquityCurve)

	r.Get("/quotes/{symbol}", s.GetQuote)
	r.Get("/crypto", s.ListCrypto)
	return r
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /orders and /orders/preview.
type OrderRequest struct {
	Symbol    string           `json:"symbol"`
	Side      string           `json:"side"`       // "buy" or "sell"
	Quantity  decimal.Decimal  `json:"quantity"`   // shares or coins, fractional allowed
	OrderKind string           `json:"order_kind"` // market (default), limit, stop, takeprofit
	Price     decimal.Decimal  `json:"price"`      // entered price for non-market kinds
	Fee       *decimal.Decimal `json:"fee,omitempty"`
}

func (o OrderRequest) toOrder() order.Request {
	return order.Request{
		Symbol:   o.Symbol,
		Side:     model.Side(o.Side),
		Quantity: o.Quantity,
		Kind:     model.OrderKind(o.OrderKind),
		Price:    o.Price,
		Fee:      o.Fee,
	}
}

// PreviewResponse is the JSON body returned from POST /orders/preview.
type PreviewResponse struct {
	Accepted  bool             `json:"accepted"`
	Price     decimal.Decimal  `json:"price"`
	Preview   order.Preview    `json:"preview"`
	Rejection *order.Rejection `json:"rejection,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// RejectionResponse is the 422 body for an order refused by a business rule.
type RejectionResponse struct {
	Error     string          `json:"error"`
	Reason    string          `json:"reason"`
	Symbol    string          `json:"symbol"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

// PortfolioResponse is the JSON body returned from GET /portfolio.
type PortfolioResponse struct {
	model.PortfolioSnapshot
	Unpriced []string `json:"unpriced"`
}

// --- HTTP Handlers ---

// SubmitOrder handles POST /api/v1/orders
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.engine.Submit(r.Context(), req.toOrder())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// PreviewOrder handles POST /api/v1/orders/preview
// Validates without recording; the confirmation step before a submit.
func (s *Service) PreviewOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	dec, preview, err := s.engine.Validate(r.Context(), req.toOrder())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := PreviewResponse{
		Accepted:  dec.Accepted,
		Price:     dec.Price,
		Preview:   preview,
		Rejection: dec.Rejection,
	}
	if dec.Rejection != nil {
		resp.Message = dec.Rejection.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTrades handles GET /api/v1/trades?sort=newest|oldest
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	sort, err := engine.ParseSortOrder(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	trades, err := s.engine.Trades(r.Context(), sort)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// ClearTrades handles DELETE /api/v1/trades
func (s *Service) ClearTrades(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportTrades handles GET /api/v1/trades/export
// Returns the log in the persisted wire shape.
func (s *Service) ExportTrades(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.Export(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+persist.StorageKey+`.json"`)
	w.Write(data)
}

// ImportTrades handles POST /api/v1/trades/import
// Replaces the whole log; a corrupt body leaves the log untouched.
func (s *Service) ImportTrades(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	n, err := s.engine.Import(r.Context(), data)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// GetPositions handles GET /api/v1/positions
// Returns every symbol ever traded; ?open=true keeps only open positions.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	book, err := s.engine.Positions(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	positions := book.Sorted()
	if r.URL.Query().Get("open") == "true" {
		open := make([]model.Position, 0, len(positions))
		for _, p := range positions {
			if p.Open() {
				open = append(open, p)
			}
		}
		positions = open
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetPortfolio handles GET /api/v1/portfolio
// Values open positions at live prices; unpriced positions are listed but
// excluded from the totals.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	unpriced := snap.Unpriced()
	if unpriced == nil {
		unpriced = []string{}
	}
	writeJSON(w, http.StatusOK, PortfolioResponse{PortfolioSnapshot: snap, Unpriced: unpriced})
}

// GetEquityCurve handles GET /api/v1/portfolio/equity
func (s *Service) GetEquityCurve(w http.ResponseWriter, r *http.Request) {
	curve, err := s.engine.EquityCurve(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if curve == nil {
		curve = []model.EquityPoint{}
	}
	writeJSON(w, http.StatusOK, curve)
}

// GetQuote handles GET /api/v1/quotes/{symbol}
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol, err := instrument.Normalize(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	price, err := s.engine.Quote(r.Context(), symbol)
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Debug("quote unavailable", "symbol", symbol, "err", err)
		writeError(w, "symbol not found or no data returned", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "price": price})
}

// ListCrypto handles GET /api/v1/crypto
func (s *Service) ListCrypto(w http.ResponseWriter, r *http.Request) {
	assets := s.assets
	if assets == nil {
		assets = []oracle.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// writeEngineError maps engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var rej *order.Rejection
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, RejectionResponse{
			Error:     rej.Error(),
			Reason:    rej.Reason,
			Symbol:    rej.Symbol,
			Requested: rej.Requested,
			Available: rej.Available,
		})
	case errors.Is(err, engine.ErrInvalidRequest):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, persist.ErrCorruptState):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		slog.Error("ledger operation failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

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
