package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/clowdy-platform/engine/internal/httperr"
	"github.com/clowdy-platform/engine/internal/identity"
)

// statsResponse is the owner-scoped aggregate exposed at GET /stats,
// supplementing the per-function/per-project rollups dropped by the
// distilled spec (see DESIGN.md).
type statsResponse struct {
	TotalProjects     int     `json:"total_projects"`
	TotalFunctions    int     `json:"total_functions"`
	TotalInvocations  int64   `json:"total_invocations"`
	SuccessRate       float64 `json:"success_rate"`
	AvgDurationMS     float64 `json:"avg_duration_ms"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.identity == nil {
		httperr.ServiceUnavailable(w, "identity verification is not configured")
		return
	}

	ownerID, err := identity.OwnerIDFromContext(r.Context())
	if err != nil {
		httperr.Unauthorized(w, err.Error())
		return
	}

	projects, err := s.meta.ListProjectsByOwner(ownerID)
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}

	// ListFunctionsByOwner covers every function owned by the caller,
	// including legacy project-less ones that ListFunctionsByProject would
	// miss entirely.
	fns, err := s.meta.ListFunctionsByOwner(ownerID)
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}
	functionIDs := make([]string, 0, len(fns))
	for _, fn := range fns {
		functionIDs = append(functionIDs, fn.ID)
	}

	agg, err := s.records.AggregateForFunctions(functionIDs)
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}

	resp := statsResponse{
		TotalProjects:    len(projects),
		TotalFunctions:   len(functionIDs),
		TotalInvocations: agg.TotalInvocations,
		SuccessRate:      agg.SuccessRate,
		AvgDurationMS:    agg.AvgDurationMS,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
