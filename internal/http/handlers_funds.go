package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"buste/internal/core"
)

type createFundRequest struct {
	Name           string `json:"name"`
	OpeningAmount  string `json:"opening_amount"`
	PullPercentage string `json:"pull_percentage"`
}

type updateFundRequest struct {
	Name           *string `json:"name"`
	OpeningAmount  *string `json:"opening_amount"`
	PullPercentage *string `json:"pull_percentage"`
}

func (s *Server) handleListFunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	funds, err := s.balances.FundBalances(r.Context(), userID, asOf)
	if err != nil {
		respondError(r, w, err)
		return
	}
	resp := make([]fundResponse, 0, len(funds))
	for _, fb := range funds {
		resp = append(resp, toFundBalanceResponse(fb))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateFund(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	var req createFundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r, w, err)
		return
	}

	opening := decimal.Zero
	if req.OpeningAmount != "" {
		var err error
		opening, err = core.ParseAmount(req.OpeningAmount)
		if err != nil {
			respondError(r, w, err)
			return
		}
	}
	pull := decimal.Zero
	if req.PullPercentage != "" {
		var err error
		pull, err = core.ParsePercentage(req.PullPercentage)
		if err != nil {
			respondError(r, w, err)
			return
		}
	}

	fund, err := s.accounts.CreateFund(r.Context(), userID, sanitizeInput(req.Name), opening, pull)
	if err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusCreated, toFundResponse(fund))
}

func (s *Server) handleGetFund(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	fb, err := s.balances.FundBalance(r.Context(), userID, id, asOf)
	if err != nil {
		respondError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toFundBalanceResponse(fb))
}

func (s *Server) handleUpdateFund(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}
	var req updateFundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r, w, err)
		return
	}

	var name *string
	if req.Name != nil {
		clean := sanitizeInput(*req.Name)
		name = &clean
	}
	var opening *decimal.Decimal
	if req.OpeningAmount != nil {
		d, err := core.ParseAmount(*req.OpeningAmount)
		if err != nil {
			respondError(r, w, err)
			return
		}
		opening = &d
	}
	var pull *decimal.Decimal
	if req.PullPercentage != nil {
		d, err := core.ParsePercentage(*req.PullPercentage)
		if err != nil {
			respondError(r, w, err)
			return
		}
		pull = &d
	}

	fund, err := s.accounts.UpdateFund(r.Context(), userID, id, name, opening, pull)
	if err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusOK, toFundResponse(fund))
}

func (s *Server) handleDeleteFund(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	if err := s.accounts.DeleteFund(r.Context(), userID, id); err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusNoContent, nil)
}
