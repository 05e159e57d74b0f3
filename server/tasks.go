package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/auth"
	"github.com/lrhflow/flow/server/storage"
)

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	principal := auth.GetPrincipalFromContext(r.Context())
	task, err := req.ToTask(principal.ID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.storage.CreateTask(r.Context(), task); err != nil {
		s.writeStorageError(w, err)
		return
	}

	s.logger.Info("task created",
		"task_id", task.ID,
		"created_by", principal.ID,
		"recurring", task.RecursActively())
	s.writeJSON(w, http.StatusCreated, api.FromTask(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.storage.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTask(task))
}

// handleListTasks supports chain, status (comma separated), recurring,
// heads and limit query parameters
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := s.storage.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTasks(tasks))
}

func parseFilter(r *http.Request) (*storage.Filter, error) {
	q := r.URL.Query()
	filter := &storage.Filter{ChainID: q.Get("chain")}

	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := storage.Status(strings.ToUpper(strings.TrimSpace(part)))
			if !st.Valid() {
				return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "unknown status " + strconv.Quote(part)}
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	var err error
	if filter.RecurringOnly, err = parseBoolParam(q.Get("recurring")); err != nil {
		return nil, err
	}
	if filter.HeadsOnly, err = parseBoolParam(q.Get("heads")); err != nil {
		return nil, err
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit < 0 {
			return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "limit must be a non-negative integer"}
		}
	}
	return filter, nil
}

func parseBoolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &storage.Error{Type: storage.ErrInvalidInput, Message: "invalid boolean " + strconv.Quote(raw), Err: err}
	}
	return v, nil
}

// handleUpdateStatus persists the new status. A transition into DONE runs
// the completion hook; a hook failure is logged and does not undo the update.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Status = storage.Status(strings.ToUpper(string(req.Status)))
	if !req.Status.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(req.Status)))
		return
	}

	id := r.PathValue("id")
	before, err := s.storage.GetTask(r.Context(), id)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}

	task, err := s.storage.UpdateTaskStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}

	resp := api.UpdateStatusResponse{Task: api.FromTask(task)}
	if before.Status != storage.StatusDone && task.Status == storage.StatusDone {
		next, err := s.scheduler.OnTaskCompleted(r.Context(), id)
		if err != nil {
			s.logger.Error("completion hook failed", "task_id", id, "error", err)
		}
		resp.NextInstance = api.FromTask(next)
	}
	s.writeJSON(w, http.StatusOK, resp)
}
