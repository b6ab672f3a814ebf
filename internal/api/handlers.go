package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/amanullahtanweer/interview-rehearsal/internal/frame"
	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	"github.com/amanullahtanweer/interview-rehearsal/internal/session"
	"github.com/amanullahtanweer/interview-rehearsal/internal/speech"
	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	Role  string `json:"role"`
	Level string `json:"level"`
	Count int    `json:"count"`
}

type createSessionResponse struct {
	ID        string               `json:"id"`
	Role      string               `json:"role"`
	Level     questions.Level      `json:"level"`
	Questions []questions.Question `json:"questions"`
}

type frameRequest struct {
	Image string `json:"image"`
}

type evaluateRequest struct {
	Index int `json:"index"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, speech.ErrUnsupportedCapability),
		errors.Is(err, frame.ErrNoVideo),
		errors.Is(err, session.ErrEnded),
		errors.Is(err, session.ErrNoAnswer):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (app *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// controller resolves the {id} URL parameter, writing the error response
// itself when it fails.
func (app *App) controller(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, err := app.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			app.Logger.Error("failed to open session", "err", err)
		}
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return c, true
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"sessions": app.Registry.Len(),
		"analyzer": "ok",
	}
	if app.Analyzer != nil {
		if err := app.Analyzer.Health(r.Context()); err != nil {
			resp["analyzer"] = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (app *App) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !app.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Role) == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}
	level := questions.LevelFresher
	if req.Level != "" {
		l, err := questions.ParseLevel(req.Level)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		level = l
	}
	if req.Count < 0 {
		writeError(w, http.StatusBadRequest, "count must not be negative")
		return
	}

	id, setup, err := app.Registry.Create(r.Context(), req.Role, level, req.Count)
	if err != nil {
		app.Logger.Error("failed to create session", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		ID:        id,
		Role:      setup.Role,
		Level:     setup.Level,
		Questions: setup.Questions,
	})
}

func (app *App) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (app *App) FrameHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	var req frameRequest
	if !app.decode(w, r, &req) {
		return
	}
	if err := c.SubmitFrame(req.Image); err != nil {
		switch {
		case errors.Is(err, session.ErrEnded):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, frame.ErrFrameTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) BeginHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	if err := c.BeginSession(nil); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (app *App) AdvanceHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	completed, err := c.AdvanceQuestion()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completed": completed,
		"session":   c.Snapshot(),
	})
}

func (app *App) StartRecordingHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	started, err := c.StartRecording()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

func (app *App) StopRecordingHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	answer, recorded := c.StopRecording()
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":   answer,
		"recorded": recorded,
	})
}

func (app *App) EndHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	if err := app.Registry.End(r.Context(), c.ID(), "user"); err != nil && !errors.Is(err, session.ErrNotFound) {
		app.Logger.Error("session teardown failed", "err", err)
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (app *App) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if !app.decode(w, r, &req) {
		return
	}
	if req.Index < 0 || req.Index >= len(c.Session().Questions) {
		writeError(w, http.StatusBadRequest, "question index out of range")
		return
	}
	eval, err := c.Evaluate(r.Context(), req.Index)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eval)
}
