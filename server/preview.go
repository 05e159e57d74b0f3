package server

import (
	"net/http"

	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/recurrence"
)

// handlePreview computes the next occurrence after date and, when count is
// positive, the first count occurrences bounded by the rule's end date
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req api.PreviewRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Date.IsZero() {
		s.writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	rule, err := req.Rule.ToRule()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := s.scheduler.Engine()
	resp := api.PreviewResponse{
		Next:        engine.NextOccurrence(req.Date, rule),
		Occurrences: []recurrence.Occurrence{},
		RRule:       recurrence.RuleToRRULE(rule),
	}
	if req.Count > 0 {
		resp.Occurrences = append(resp.Occurrences, engine.Preview(req.Date, rule, req.Count)...)
	}
	s.writeJSON(w, http.StatusOK, resp)
}
