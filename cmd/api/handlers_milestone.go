package main

import (
	"net/http"

	"escrowflow/milestone"
	"escrowflow/pkg/validate"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type milestoneRequest struct {
	Contract    string           `json:"contract"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     *string          `json:"due_date"`
	Order       *int             `json:"order"`
}

type milestonePatch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     *string          `json:"due_date"`
	Order       *int             `json:"order"`
}

func (s *Server) handleMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := s.milestoneService.List(r.Context(), callerFrom(r), r.URL.Query().Get("contract"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(milestones, newMilestoneResponse))
}

func (s *Server) handleMilestoneCreate(w http.ResponseWriter, r *http.Request) {
	var req milestoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v := validate.Errors{}
	params := milestone.CreateParams{
		ContractID:  req.Contract,
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     parseDate(v, "due_date", req.DueDate),
		Order:       req.Order,
	}
	if err := v.Err(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	m, err := s.milestoneService.Create(r.Context(), callerFrom(r), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMilestoneResponse(m))
}

func (s *Server) handleMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.milestoneService.Get(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMilestoneResponse(m))
}

func (s *Server) handleMilestoneUpdate(w http.ResponseWriter, r *http.Request) {
	var req milestonePatch
	if !decodeJSON(w, r, &req) {
		return
	}

	v := validate.Errors{}
	params := milestone.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     parseDate(v, "due_date", req.DueDate),
		Order:       req.Order,
	}
	if err := v.Err(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	m, err := s.milestoneService.Update(r.Context(), callerFrom(r), chi.URLParam(r, "id"), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMilestoneResponse(m))
}

func (s *Server) handleMilestoneStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.milestoneService.UpdateStatus(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMilestoneResponse(m))
}

func (s *Server) handleMilestoneComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompletionNotes string `json:"completion_notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.milestoneService.Complete(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.CompletionNotes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMilestoneResponse(m))
}
