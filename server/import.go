package server

import (
	"io"
	"net/http"

	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/auth"
	"github.com/lrhflow/flow/server/storage"
)

// handleImport creates a task for every VTODO of an iCalendar body.
// Components carrying an RRULE become chain heads. Tasks are created in
// order; a storage failure stops the import and reports what was created.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	tasks, err := storage.ICSToTasks(string(data))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	principal := auth.GetPrincipalFromContext(r.Context())
	resp := api.ImportResponse{Created: []*api.Task{}}
	for _, task := range tasks {
		task.CreatedByID = principal.ID
		if err := s.storage.CreateTask(r.Context(), task); err != nil {
			s.logger.Error("import stopped",
				"created", len(resp.Created),
				"title", task.Title,
				"error", err)
			resp.Error = err.Error()
			s.writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		resp.Created = append(resp.Created, api.FromTask(task))
	}

	s.logger.Info("tasks imported", "count", len(resp.Created), "imported_by", principal.ID)
	s.writeJSON(w, http.StatusCreated, resp)
}
