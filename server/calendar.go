package server

import (
	"io"
	"net/http"

	"github.com/lrhflow/flow/server/storage"
)

// handleCalendar exports tasks as VTODOs. Without a status parameter only
// open tasks (TODO, DOING) are included.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(filter.Statuses) == 0 {
		filter.Statuses = []storage.Status{storage.StatusTodo, storage.StatusDoing}
	}

	tasks, err := s.storage.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}

	ics, err := storage.TasksToICS(tasks, s.now())
	if err != nil {
		s.logger.Error("failed to render calendar", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set(headerContentType, mimeTypeCalendar)
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.ics"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ics)
}
