package http

import (
	"net/http"
)

// handleSummary returns the user's full position. The current-time summary
// is cached briefly; as-of queries always hit the database.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identify(w, r)
	if !ok {
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		respondError(r, w, err)
		return
	}

	if asOf == nil {
		key := userCacheKey(userID, "summary")
		if sum, hit := s.summaryCache.Get(key); hit {
			respondJSON(w, http.StatusOK, toSummaryResponse(sum))
			return
		}
		sum, err := s.balances.Summary(r.Context(), userID, nil)
		if err != nil {
			respondError(r, w, err)
			return
		}
		s.summaryCache.Set(key, sum)
		respondJSON(w, http.StatusOK, toSummaryResponse(sum))
		return
	}

	sum, err := s.balances.Summary(r.Context(), userID, asOf)
	if err != nil {
		respondError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSummaryResponse(sum))
}
