package main

import (
	"net/http"

	"escrowflow/contract"
	"escrowflow/document"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/validate"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type contractRequest struct {
	IntendedParent string           `json:"intended_parent"`
	Surrogate      string           `json:"surrogate"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	ContractAmount *decimal.Decimal `json:"contract_amount"`
	Status         string           `json:"status"`
	StartDate      *string          `json:"start_date"`
	EndDate        *string          `json:"end_date"`
}

type contractPatch struct {
	Title          *string          `json:"title"`
	Description    *string          `json:"description"`
	ContractAmount *decimal.Decimal `json:"contract_amount"`
	StartDate      *string          `json:"start_date"`
	EndDate        *string          `json:"end_date"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.contractService.List(r.Context(), callerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(contracts, newContractResponse))
}

func (s *Server) handleContractCreate(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v := validate.Errors{}
	params := contract.CreateParams{
		IntendedParentID: req.IntendedParent,
		SurrogateID:      req.Surrogate,
		Title:            req.Title,
		Description:      req.Description,
		Amount:           req.ContractAmount,
		Status:           req.Status,
		StartDate:        parseDate(v, "start_date", req.StartDate),
		EndDate:          parseDate(v, "end_date", req.EndDate),
	}
	if err := v.Err(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	c, err := s.contractService.Create(r.Context(), callerFrom(r), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newContractResponse(c))
}

// handleContract returns the contract detail including its documents.
func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	c, err := s.contractService.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := newContractResponse(c)
	resp.Documents = []documentResponse{}
	if s.documentService != nil {
		docs, err := s.documentService.List(r.Context(), caller, document.ParentContract, c.ID)
		if err != nil {
			logger.Warn(r.Context(), "list contract documents", "contract_id", c.ID, "error", err)
		} else {
			resp.Documents = mapSlice(docs, newDocumentResponse)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContractUpdate(w http.ResponseWriter, r *http.Request) {
	var req contractPatch
	if !decodeJSON(w, r, &req) {
		return
	}

	v := validate.Errors{}
	params := contract.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.ContractAmount,
		StartDate:   parseDate(v, "start_date", req.StartDate),
		EndDate:     parseDate(v, "end_date", req.EndDate),
	}
	if err := v.Err(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	c, err := s.contractService.Update(r.Context(), callerFrom(r), chi.URLParam(r, "id"), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContractResponse(c))
}

func (s *Server) handleContractStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := s.contractService.UpdateStatus(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newContractResponse(c))
}
