package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

// createRequest is the inbound create shape. "session" is an accepted
// alias for "id" kept for callers of the original API.
type createRequest struct {
	ID      string `json:"id,omitempty"`
	Session string `json:"session,omitempty"`

	Channel  string               `json:"channel"`
	Email    *job.EmailPayload    `json:"email,omitempty"`
	SMS      *job.SMSPayload      `json:"sms,omitempty"`
	Telegram *job.TelegramPayload `json:"telegram,omitempty"`

	Cron     string    `json:"cron,omitempty"`
	Timezone string    `json:"timezone,omitempty"`
	FireAt   time.Time `json:"fire_at,omitempty"`
}

type createResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

type listResponse struct {
	Success bool      `json:"success"`
	Jobs    []job.Job `json:"jobs"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = strings.TrimSpace(req.Session)
	}
	j := job.Job{
		ID: id,
		Payload: job.Payload{
			Channel:  req.Channel,
			Email:    req.Email,
			SMS:      req.SMS,
			Telegram: req.Telegram,
		},
		Trigger: job.Trigger{
			Cron:     req.Cron,
			Timezone: req.Timezone,
			FireAt:   req.FireAt,
		},
	}

	created, err := s.engine.Create(r.Context(), j)
	if err != nil {
		if errors.Is(err, job.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("create failed", logx.String("job", j.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to schedule job")
		return
	}
	writeJSON(w, http.StatusOK, createResponse{Success: true, JobID: created.ID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.engine.List(r.Context())
	if err != nil {
		s.log.Error("list failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []job.Job{}
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Jobs: jobs})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := s.engine.Cancel(r.Context(), id)
	if err != nil {
		s.log.Error("cancel failed", logx.String("job", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
