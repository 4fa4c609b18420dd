package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"buste/internal/core"
	"buste/internal/services"
)

type eventLineRequest struct {
	Amount   string `json:"amount"`
	WalletID int64  `json:"wallet_id"`
	FundID   int64  `json:"fund_id"`
}

type createEventRequest struct {
	Type        string             `json:"type"` // "expense" or "income"
	OccurredAt  string             `json:"occurred_at"`
	Description string             `json:"description"`
	Pending     bool               `json:"pending"`
	Lines       []eventLineRequest `json:"lines"`

	// Income only.
	WalletID int64  `json:"wallet_id"`
	Total    string `json:"total"`
}

type incomeEditRequest struct {
	WalletID   int64  `json:"wallet_id"`
	Total      string `json:"total"`
	Reallocate bool   `json:"reallocate"`
}

type editEventRequest struct {
	OccurredAt  *string            `json:"occurred_at"`
	Description *string            `json:"description"`
	Pending     *bool              `json:"pending"`
	Lines       []eventLineRequest `json:"lines"`
	Income      *incomeEditRequest `json:"income"`
}

func parseLines(reqLines []eventLineRequest) ([]services.Line, error) {
	lines := make([]services.Line, 0, len(reqLines))
	for _, l := range reqLines {
		amount, err := core.ParseAmount(l.Amount)
		if err != nil {
			return nil, err
		}
		lines = append(lines, services.Line{
			Amount:   amount,
			WalletID: l.WalletID,
			FundID:   l.FundID,
		})
	}
	return lines, nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r, w, err)
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		respondError(r, w, err)
		return
	}
	description := sanitizeInput(req.Description)

	var eventID int64
	switch req.Type {
	case "income":
		total, err := core.ParseAmount(req.Total)
		if err != nil {
			respondError(r, w, err)
			return
		}
		eventID, err = s.ledger.CreateIncome(r.Context(), userID, services.IncomeInput{
			OccurredAt:  occurredAt,
			Description: description,
			Pending:     req.Pending,
			WalletID:    req.WalletID,
			Total:       total,
		})
		if err != nil {
			respondError(r, w, err)
			return
		}

	case "expense", "":
		lines, err := parseLines(req.Lines)
		if err != nil {
			respondError(r, w, err)
			return
		}
		eventID, err = s.ledger.CreateExpense(r.Context(), userID, services.ExpenseInput{
			OccurredAt:  occurredAt,
			Description: description,
			Pending:     req.Pending,
			Lines:       lines,
		})
		if err != nil {
			respondError(r, w, err)
			return
		}

	default:
		respondError(r, w, fmt.Errorf("%w: unknown event type %q", errBadRequest, req.Type))
		return
	}

	s.invalidate(userID)
	ev, err := s.ledger.GetEvent(r.Context(), userID, eventID)
	if err != nil {
		respondError(r, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toEventResponse(ev))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	events, err := s.ledger.ListEvents(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(r, w, err)
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toEventResponse(ev))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	ev, err := s.ledger.GetEvent(r.Context(), userID, id)
	if err != nil {
		respondError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toEventResponse(ev))
}

func (s *Server) handleEditEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}
	var req editEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r, w, err)
		return
	}

	patch := services.EventPatch{Pending: req.Pending}
	if req.OccurredAt != nil {
		t, err := parseOccurredAt(*req.OccurredAt)
		if err != nil {
			respondError(r, w, err)
			return
		}
		if t.IsZero() {
			t = time.Now()
		}
		patch.OccurredAt = &t
	}
	if req.Description != nil {
		clean := sanitizeInput(*req.Description)
		patch.Description = &clean
	}
	if req.Lines != nil {
		lines, err := parseLines(req.Lines)
		if err != nil {
			respondError(r, w, err)
			return
		}
		patch.Lines = lines
	}
	if req.Income != nil {
		total, err := core.ParseAmount(req.Income.Total)
		if err != nil {
			respondError(r, w, err)
			return
		}
		patch.Income = &services.IncomeEdit{
			WalletID:   req.Income.WalletID,
			Total:      total,
			Reallocate: req.Income.Reallocate,
		}
	}

	if err := s.ledger.EditEvent(r.Context(), userID, id, patch); err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)

	ev, err := s.ledger.GetEvent(r.Context(), userID, id)
	if err != nil {
		respondError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toEventResponse(ev))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	if err := s.ledger.DeleteEvent(r.Context(), userID, id); err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleClearPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	n, err := s.ledger.ClearAllPending(r.Context(), userID)
	if err != nil {
		respondError(r, w, err)
		return
	}
	s.invalidate(userID)
	respondJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}
