package main

import (
	"net/http"
	"time"

	"escrowflow/payment"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type paymentRequest struct {
	Contract      string           `json:"contract"`
	Payer         string           `json:"payer"`
	Payee         string           `json:"payee"`
	Amount        *decimal.Decimal `json:"amount"`
	PaymentType   string           `json:"payment_type"`
	TransactionID *string          `json:"transaction_id"`
	PaymentMethod string           `json:"payment_method"`
	PaymentDate   *time.Time       `json:"payment_date"`
	Description   string           `json:"description"`
	Notes         string           `json:"notes"`
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.paymentService.List(r.Context(), callerFrom(r), r.URL.Query().Get("contract"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(payments, newPaymentResponse))
}

func (s *Server) handlePaymentCreate(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.paymentService.Create(r.Context(), callerFrom(r), payment.CreateParams{
		ContractID:    req.Contract,
		PayerID:       req.Payer,
		PayeeID:       req.Payee,
		Amount:        req.Amount,
		Type:          req.PaymentType,
		TransactionID: req.TransactionID,
		PaymentMethod: req.PaymentMethod,
		PaymentDate:   req.PaymentDate,
		Description:   req.Description,
		Notes:         req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPaymentResponse(p))
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.paymentService.Get(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.paymentService.UpdateStatus(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}
