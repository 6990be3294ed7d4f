package api

import (
	"net/http"
	"time"

	"github.com/address-vault/internal/types"
)

// defaultUsageWindow is the reporting range when the request gives none.
const defaultUsageWindow = 7 * 24 * time.Hour

// usageSummaryView is the usage-summary response payload.
type usageSummaryView struct {
	From    time.Time         `json:"from"`
	To      time.Time         `json:"to"`
	Summary map[string]uint64 `json:"summary"`
}

// handleUsageSummary reports per-app access counts over a time range.
// Range bounds come from optional from/to query parameters (RFC 3339),
// defaulting to the last seven days.
func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	if s.usageProvider == nil {
		respondEnvelopeError(w, http.StatusNotFound, &types.ServiceError{
			Code:    types.CodeNotFound,
			Message: "access analytics is not enabled",
		})
		return
	}

	query := r.URL.Query()

	to := time.Now().UTC()
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondEnvelopeError(w, http.StatusBadRequest, &types.ServiceError{
				Code:    types.CodeInvalidRequest,
				Message: "to must be an RFC 3339 timestamp",
			})
			return
		}
		to = parsed.UTC()
	}

	from := to.Add(-defaultUsageWindow)
	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondEnvelopeError(w, http.StatusBadRequest, &types.ServiceError{
				Code:    types.CodeInvalidRequest,
				Message: "from must be an RFC 3339 timestamp",
			})
			return
		}
		from = parsed.UTC()
	}

	if !from.Before(to) {
		respondEnvelopeError(w, http.StatusBadRequest, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "from must be earlier than to",
		})
		return
	}

	summary, err := s.usageProvider.UsageSummary(r.Context(), from, to)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	if summary == nil {
		summary = map[string]uint64{}
	}

	respondEnvelope(w, http.StatusOK, usageSummaryView{
		From:    from,
		To:      to,
		Summary: summary,
	})
}
