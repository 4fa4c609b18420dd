package http

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"buste/internal/core"
)

type createWalletRequest struct {
	Name          string `json:"name"`
	OpeningAmount string `json:"opening_amount"`
}

type updateWalletRequest struct {
	Name          *string `json:"name"`
	OpeningAmount *string `json:"opening_amount"`
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	wallets, err := s.balances.WalletBalances(r.Context(), userID, asOf)
	if err != nil {
		respondError(r, w, err)
		return
	}
	resp := make([]walletResponse, 0, len(wallets))
	for _, wb := range wallets {
		raw := wb.Raw
		resp = append(resp, toWalletResponse(wb.Wallet, &raw))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	var req createWalletRequest
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

	wallet, err := s.accounts.CreateWallet(r.Context(), userID, sanitizeInput(req.Name), opening)
	if err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusCreated, toWalletResponse(wallet, nil))
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
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

	wb, err := s.balances.WalletBalance(r.Context(), userID, id, asOf)
	if err != nil {
		respondError(r, w, err)
		return
	}
	raw := wb.Raw
	respondJSON(w, http.StatusOK, toWalletResponse(wb.Wallet, &raw))
}

func (s *Server) handleUpdateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}
	var req updateWalletRequest
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

	wallet, err := s.accounts.UpdateWallet(r.Context(), userID, id, name, opening)
	if err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusOK, toWalletResponse(wallet, nil))
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	if err := s.accounts.DeleteWallet(r.Context(), userID, id); err != nil {
		if statusForError(err) == http.StatusConflict {
			respondJSON(w, http.StatusConflict, errorResponse{
				Error: fmt.Sprintf("wallet %d still holds money; empty it first", id),
			})
			return
		}
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusNoContent, nil)
}
