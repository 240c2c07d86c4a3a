package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/voxroom/voxroom/pkg/core"
	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/recording"
	"github.com/voxroom/voxroom/pkg/session"
)

// SessionsHandler serves the REST session and recording lifecycle.
type SessionsHandler struct {
	Registry *session.Registry
	Recorder *recording.Recorder
	Logger   *slog.Logger
}

type sessionOptionsRequest struct {
	Language string          `json:"language,omitempty"`
	Voice    string          `json:"voice,omitempty"`
	Settings *types.Settings `json:"settings,omitempty"`
}

type joinRequest struct {
	ParticipantID string          `json:"participant_id"`
	Language      string          `json:"language,omitempty"`
	Voice         string          `json:"voice,omitempty"`
	Settings      *types.Settings `json:"settings,omitempty"`
}

type leaveRequest struct {
	ParticipantID string `json:"participant_id"`
}

type updateRequest struct {
	Language *string         `json:"language,omitempty"`
	Voice    *string         `json:"voice,omitempty"`
	Settings *types.Settings `json:"settings,omitempty"`
}

// Register installs the routes on mux.
func (h *SessionsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", h.create)
	mux.HandleFunc("GET /v1/sessions/{id}", h.get)
	mux.HandleFunc("PATCH /v1/sessions/{id}", h.update)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.delete)
	mux.HandleFunc("POST /v1/sessions/{id}/join", h.join)
	mux.HandleFunc("POST /v1/sessions/{id}/leave", h.leave)
	mux.HandleFunc("POST /v1/sessions/{id}/recording/start", h.recordingStart)
	mux.HandleFunc("POST /v1/sessions/{id}/recording/stop", h.recordingStop)
	mux.HandleFunc("GET /v1/recordings/{id}", h.getRecording)
}

func (h *SessionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req sessionOptionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.Registry.Create(r.Context(), session.Options{
		Language: req.Language,
		Voice:    req.Voice,
		Settings: req.Settings,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *SessionsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, found, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, core.NewNotFoundError("session "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.Registry.Update(r.Context(), r.PathValue("id"), session.Updates{
		Language: req.Language,
		Voice:    req.Voice,
		Settings: req.Settings,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.Registry.Join(r.Context(), r.PathValue("id"), req.ParticipantID, session.Options{
		Language: req.Language,
		Voice:    req.Voice,
		Settings: req.Settings,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) leave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.Registry.Leave(r.Context(), r.PathValue("id"), req.ParticipantID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) recordingStart(w http.ResponseWriter, r *http.Request) {
	if err := h.Recorder.Start(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recording"})
}

func (h *SessionsHandler) recordingStop(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Recorder.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *SessionsHandler) getRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Recorder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// decodeBody decodes an optional JSON body; an empty body leaves dest zero.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeError(w, r, core.NewInvalidArgumentError("malformed request body: "+err.Error()))
		return false
	}
	return true
}
