package devserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/protocol"
)

type taskEnvelope struct {
	Task protocol.Task `json:"task"`
}

type tasksEnvelope struct {
	Tasks []protocol.Task `json:"tasks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := validateToken(s.cfg.JWTSecret, token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	room, ok := s.store.room(chi.URLParam(r, "boardID"))
	if !ok {
		writeError(w, http.StatusNotFound, "board not found")
		return
	}
	writeJSON(w, http.StatusOK, tasksEnvelope{Tasks: room.snapshot()})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	room, ok := s.store.room(chi.URLParam(r, "boardID"))
	if !ok {
		writeError(w, http.StatusNotFound, "board not found")
		return
	}
	var task protocol.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "malformed task")
		return
	}
	if task.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}
	if task.Status != "" && !task.Status.Known() {
		writeError(w, http.StatusUnprocessableEntity, "unknown status")
		return
	}
	task, created := room.create(task)
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, taskEnvelope{Task: task})
}

func (s *Server) moveTask(w http.ResponseWriter, r *http.Request) {
	room, ok := s.store.room(chi.URLParam(r, "boardID"))
	if !ok {
		writeError(w, http.StatusNotFound, "board not found")
		return
	}
	var body struct {
		Status protocol.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if !body.Status.Known() {
		writeError(w, http.StatusUnprocessableEntity, "unknown status")
		return
	}
	task, ok := room.move(chi.URLParam(r, "taskID"), body.Status)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, taskEnvelope{Task: task})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	room, ok := s.store.room(chi.URLParam(r, "boardID"))
	if !ok {
		writeError(w, http.StatusNotFound, "board not found")
		return
	}
	if !room.remove(chi.URLParam(r, "taskID")) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
