package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/auth"
)

// handleSweep runs the look-ahead sweep on demand. Per-chain failures are
// reported in the body alongside the number of created instances.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("lookahead_days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeError(w, http.StatusBadRequest, "lookahead_days must be a positive integer")
			return
		}
		days = v
	}

	principal := auth.GetPrincipalFromContext(r.Context())
	created, err := s.scheduler.RunLookaheadSweep(r.Context(), days)

	resp := api.SweepResponse{Created: created, LookaheadDays: days}
	if err != nil {
		resp.Errors = splitJoined(err)
	}
	s.logger.Info("manual sweep",
		"requested_by", principal.ID,
		"created", created,
		"failed", len(resp.Errors))
	s.writeJSON(w, http.StatusOK, resp)
}

// splitJoined flattens an errors.Join result into messages
func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
