package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/apperr"
	"github.com/martin3r-me/platforms-brands-sub000/internal/auth"
	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
	"github.com/martin3r-me/platforms-brands-sub000/internal/projection"
	"github.com/martin3r-me/platforms-brands-sub000/internal/service"
)

const maxBodyBytes = 1 << 20

type Server struct {
	svc      *service.Service
	verifier *auth.Verifier
	logger   *zap.Logger
	timeout  time.Duration
}

// New builds the HTTP surface. timeout bounds each request; publish runs
// that outlive it still finish server side.
func New(svc *service.Service, verifier *auth.Verifier, logger *zap.Logger, timeout time.Duration) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Server{svc: svc, verifier: verifier, logger: logger, timeout: timeout}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.verifier, s.logger))

		r.Post("/boards", s.handleCreateBoard)
		r.Get("/boards/{id}/projection", s.handleProjection)
		r.Post("/boards/{id}/items", s.handleCreateItem)

		r.Route("/items/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetItem)
			r.Post("/schedule", s.handleSchedule)
			r.Post("/unschedule", s.handleUnschedule)
			r.Post("/contracts/generate", s.handleGenerate)
			r.Get("/contracts", s.handleListContracts)
			r.Post("/publish", s.handlePublish)
		})

		r.Patch("/contracts/{id}", s.handleUpdateContract)
		r.Delete("/contracts/{id}", s.handleDeleteContract)

		r.Get("/formats", s.handleListFormats)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Post("/platforms", s.handleCreatePlatform)
			r.Post("/platforms/{id}/formats", s.handleCreateFormat)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.svc.Health(ctx); err != nil {
		status["ok"] = false
		status["db"] = "down"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["db"] = "up"
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req service.BoardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	board, err := s.svc.CreateBoard(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, board)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := projection.Filter{
		Status:   models.ContentStatus(q.Get("status")),
		Platform: q.Get("platform"),
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(w, fmt.Sprintf("%s must be an RFC3339 timestamp", bound.name))
			return
		}
		*bound.dst = &t
	}
	view, err := s.svc.GetStatusProjection(r.Context(), boardID, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req service.ContentItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	item, err := s.svc.CreateContentItem(r.Context(), boardID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := s.svc.GetContentItem(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	item, err := s.svc.ScheduleContentItem(r.Context(), id, req.ScheduledAt)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleUnschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := s.svc.UnscheduleContentItem(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

type generateRequest struct {
	TargetFormatIDs []uuid.UUID                  `json:"targetFormatIds"`
	DraftPayloads   map[uuid.UUID]map[string]any `json:"draftPayloads"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	res, err := s.svc.GenerateContracts(r.Context(), service.GenerateRequest{
		ContentItemID:   id,
		TargetFormatIDs: req.TargetFormatIDs,
		DraftPayloads:   req.DraftPayloads,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	status := models.ContractStatus(r.URL.Query().Get("status"))
	contracts, err := s.svc.ListContracts(r.Context(), id, status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if contracts == nil {
		contracts = []models.Contract{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"contracts": contracts})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.PublishContentItem(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req service.ContractEdit
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	c, err := s.svc.UpdateContract(r.Context(), id, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteContract(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFormats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly := false
	if raw := q.Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(w, "active must be a boolean")
			return
		}
		activeOnly = v
	}
	formats, err := s.svc.ListPlatformFormats(r.Context(), q.Get("platform"), activeOnly)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if formats == nil {
		formats = []models.PlatformFormat{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"formats": formats})
}

func (s *Server) handleCreatePlatform(w http.ResponseWriter, r *http.Request) {
	var req service.PlatformRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	p, err := s.svc.CreatePlatform(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleCreateFormat(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req service.PlatformFormatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	f, err := s.svc.CreatePlatformFormat(r.Context(), platformID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondBadRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error   string      `json:"error"`
	Kind    apperr.Kind `json:"kind"`
	Details interface{} `json:"details,omitempty"`
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: apperr.ValidationError})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error(), Kind: apperr.KindOf(err)}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Details = ae.Details
	}
	status := apperr.HTTPStatus(body.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	respondJSON(w, status, body)
}
