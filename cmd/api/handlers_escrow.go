package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"escrowflow/access"
	"escrowflow/escrow"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *Server) handleEscrowAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.escrowService.List(r.Context(), callerFrom(r), r.URL.Query().Get("contract"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(accounts, newEscrowResponse))
}

func (s *Server) handleEscrowAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.escrowService.Get(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowResponse(a))
}

func (s *Server) handleEscrowEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.escrowService.Entries(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, newEntryResponse))
}

func (s *Server) handleEscrowDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleEscrowMovement(w, r, s.escrowService.Deposit)
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, r *http.Request) {
	s.handleEscrowMovement(w, r, s.escrowService.Release)
}

func (s *Server) handleEscrowMovement(w http.ResponseWriter, r *http.Request, move func(context.Context, access.Caller, escrow.MovementRequest) (escrow.Account, error)) {
	var req struct {
		Amount json.RawMessage `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := move(r.Context(), callerFrom(r), escrow.MovementRequest{
		AccountID:      chi.URLParam(r, "id"),
		Amount:         parseAmount(req.Amount),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowResponse(a))
}

// parseAmount accepts a JSON number or numeric string. Anything else yields
// nil, which the escrow service rejects as an invalid amount.
func parseAmount(raw json.RawMessage) *decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		s = strings.TrimSpace(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
