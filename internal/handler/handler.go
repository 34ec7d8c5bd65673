// Package handler exposes the interview flow over a JSON API. Live
// sessions are kept in an in-memory registry; finished interviews are
// persisted and served from the store.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/voxhire/voxhire/internal/i18n"
	"github.com/voxhire/voxhire/internal/model"
	"github.com/voxhire/voxhire/internal/question"
	"github.com/voxhire/voxhire/internal/report"
	"github.com/voxhire/voxhire/internal/scorer"
	"github.com/voxhire/voxhire/internal/session"
	"github.com/voxhire/voxhire/internal/speech"
	"github.com/voxhire/voxhire/internal/store"
)

// Config holds the dependencies shared by all HTTP handlers.
type Config struct {
	Store         *store.Store
	Provider      *question.Provider
	Scorer        scorer.Scorer
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	provider *question.Provider
	scorer   scorer.Scorer
	config   Config

	mu   sync.Mutex
	live map[string]*liveSession
}

// liveSession pairs a running flow with its remote speech adapters and
// the event hub feeding SSE subscribers.
type liveSession struct {
	flow     *session.Flow
	speaker  *speech.RemoteSpeaker
	recorder *speech.RemoteRecorder
	hub      *sseHub
}

// New creates a new Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Store == nil || cfg.Provider == nil || cfg.Scorer == nil {
		return nil, errors.New("handler: store, provider, and scorer are required")
	}
	return &Handler{
		store:    cfg.Store,
		provider: cfg.Provider,
		scorer:   cfg.Scorer,
		config:   cfg,
		live:     make(map[string]*liveSession),
	}, nil
}

// Routes registers all HTTP routes. Candidate-facing session endpoints
// are open; history and dashboard endpoints require a recruiter login.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Get("/api/categories", h.handleCategories)
	r.Post("/api/interviews", h.handleCreateInterview)
	r.Get("/api/interviews/{id}", h.handleGetInterview)
	r.Get("/api/interviews/{id}/events", h.handleEvents)
	r.Get("/api/interviews/{id}/report", h.handleReport)
	r.Post("/api/interviews/{id}/prompt-complete", h.handlePromptComplete)
	r.Post("/api/interviews/{id}/recording/start", h.handleRecordingStart)
	r.Post("/api/interviews/{id}/recording/stop", h.handleRecordingStop)
	r.Post("/api/interviews/{id}/transcript", h.handleTranscript)
	r.Post("/api/interviews/{id}/repeat", h.handleRepeat)
	r.Delete("/api/interviews/{id}", h.handleAbandon)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/history", h.handleHistory)
		r.Get("/api/dashboard", h.handleDashboard)
		r.With(requireRole(model.UserRoleAdmin)).Delete("/api/history/{id}", h.handleDeleteStored)
	})
}

type createInterviewRequest struct {
	CandidateName string           `json:"candidate_name"`
	Categories    []model.Category `json:"categories"`
	QuestionCount int              `json:"question_count"`
	Difficulty    model.Difficulty `json:"difficulty,omitempty"`
	Adaptive      bool             `json:"adaptive"`
}

// interviewStatus is the live snapshot returned by session endpoints.
type interviewStatus struct {
	ID             string          `json:"id"`
	CandidateName  string          `json:"candidate_name"`
	State          session.State   `json:"state"`
	QuestionIndex  int             `json:"question_index"`
	QuestionCount  int             `json:"question_count"`
	Question       *model.Question `json:"question,omitempty"`
	Transcript     string          `json:"transcript,omitempty"`
	ElapsedSeconds int64           `json:"elapsed_seconds"`
	Abandoned      bool            `json:"abandoned,omitempty"`
}

func (h *Handler) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CandidateName == "" {
		writeError(w, http.StatusBadRequest, "candidate_name is required")
		return
	}
	for _, c := range req.Categories {
		if !c.Valid() {
			writeError(w, http.StatusBadRequest, "unknown category: "+string(c))
			return
		}
	}

	speaker := &speech.RemoteSpeaker{}
	recorder := &speech.RemoteRecorder{}
	hub := newSSEHub()
	flow, err := session.New(session.Config{
		Provider: h.provider,
		Scorer:   h.scorer,
		Speaker:  speaker,
		Recorder: recorder,
		Sink:     hub.publish,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cfg := model.SessionConfig{
		Categories:    req.Categories,
		QuestionCount: req.QuestionCount,
		Difficulty:    req.Difficulty,
		Adaptive:      req.Adaptive,
	}
	if err := flow.Start(req.CandidateName, cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ls := &liveSession{flow: flow, speaker: speaker, recorder: recorder, hub: hub}
	h.mu.Lock()
	h.live[flow.ID()] = ls
	h.mu.Unlock()

	slog.Info("interview session created", "id", flow.ID(), "candidate", req.CandidateName)
	writeJSON(w, http.StatusCreated, h.status(ls))
}

func (h *Handler) liveSessionByID(id string) *liveSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live[id]
}

func (h *Handler) status(ls *liveSession) interviewStatus {
	iv := ls.flow.Interview()
	st := interviewStatus{
		ID:             iv.ID,
		CandidateName:  iv.CandidateName,
		State:          ls.flow.State(),
		QuestionCount:  len(iv.Questions),
		ElapsedSeconds: int64(ls.flow.Elapsed().Seconds()),
		Transcript:     ls.flow.Transcript(),
		Abandoned:      ls.flow.Abandoned(),
	}
	if q, idx, ok := ls.flow.CurrentQuestion(); ok {
		st.Question = &q
		st.QuestionIndex = idx
	}
	return st
}

func (h *Handler) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if ls := h.liveSessionByID(id); ls != nil {
		writeJSON(w, http.StatusOK, h.status(ls))
		return
	}

	iv, err := h.store.GetInterview(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if iv == nil {
		writeError(w, http.StatusNotFound, "interview not found")
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *Handler) handlePromptComplete(w http.ResponseWriter, r *http.Request) {
	ls := h.liveSessionByID(chi.URLParam(r, "id"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "no live session")
		return
	}
	ls.speaker.Complete()
	writeJSON(w, http.StatusOK, h.status(ls))
}

func (h *Handler) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	ls := h.liveSessionByID(chi.URLParam(r, "id"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "no live session")
		return
	}
	if err := ls.flow.StartRecording(); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.status(ls))
}

type transcriptRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ls := h.liveSessionByID(chi.URLParam(r, "id"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "no live session")
		return
	}
	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ls.recorder.Push(req.Text, req.Final)
	w.WriteHeader(http.StatusNoContent)
}

type stopRecordingResponse struct {
	Score  model.Score     `json:"score"`
	Status interviewStatus `json:"status"`
}

func (h *Handler) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	ls := h.liveSessionByID(chi.URLParam(r, "id"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "no live session")
		return
	}
	score, err := ls.flow.StopRecording(r.Context())
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}

	if ls.flow.State() == session.StateCompleted {
		h.finishSession(ls)
	}
	writeJSON(w, http.StatusOK, stopRecordingResponse{Score: score, Status: h.status(ls)})
}

func (h *Handler) handleRepeat(w http.ResponseWriter, r *http.Request) {
	ls := h.liveSessionByID(chi.URLParam(r, "id"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "no live session")
		return
	}
	if err := ls.flow.Repeat(); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.status(ls))
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	ls := h.liveSessionByID(chi.URLParam(r, "id"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "no live session")
		return
	}
	if err := ls.flow.Abandon(); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	h.finishSession(ls)
	writeJSON(w, http.StatusOK, h.status(ls))
}

// finishSession persists a finished interview and retires the live
// session. Abandoned interviews are stored too, without an overall score.
func (h *Handler) finishSession(ls *liveSession) {
	iv := ls.flow.Interview()
	if err := h.store.SaveInterview(iv); err != nil {
		slog.Error("failed to persist interview", "id", iv.ID, "error", err)
	}
	ls.hub.close()
	h.mu.Lock()
	delete(h.live, iv.ID)
	h.mu.Unlock()
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var iv *model.Interview
	if ls := h.liveSessionByID(id); ls != nil {
		snapshot := ls.flow.Interview()
		iv = &snapshot
	} else {
		stored, err := h.store.GetInterview(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		iv = stored
	}
	if iv == nil {
		writeError(w, http.StatusNotFound, "interview not found")
		return
	}
	if iv.EndedAt == nil {
		writeError(w, http.StatusConflict, "interview still in progress")
		return
	}
	writeJSON(w, http.StatusOK, report.Build(*iv))
}

type categoryInfo struct {
	ID       model.Category `json:"id"`
	Label    string         `json:"label"`
	PoolSize int            `json:"pool_size"`
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	var out []categoryInfo
	for _, c := range model.Categories {
		out = append(out, categoryInfo{ID: c, Label: c.Label(), PoolSize: h.provider.PoolSize(c)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListInterviews()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summaries == nil {
		summaries = []model.InterviewSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

type dashboardResponse struct {
	Stats          store.InterviewStats `json:"stats"`
	LiveSessions   int                  `json:"live_sessions"`
	TotalQuestions int                  `json:"total_questions"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total := 0
	for _, c := range model.Categories {
		total += h.provider.PoolSize(c)
	}
	h.mu.Lock()
	liveCount := len(h.live)
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, dashboardResponse{
		Stats:          stats,
		LiveSessions:   liveCount,
		TotalQuestions: total,
	})
}

func (h *Handler) handleDeleteStored(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteInterview(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeFlowError translates flow sentinels into HTTP responses with a
// localized advisory where one exists.
func (h *Handler) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNoResponse):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  i18n.T(r.Context(), "NoResponseDetected"),
			"advice": i18n.T(r.Context(), "NoResponseAdvice"),
		})
	case errors.Is(err, session.ErrMicrophone):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": i18n.T(r.Context(), "MicrophoneDenied"),
		})
	case errors.Is(err, session.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("flow operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
