// Package api exposes the operator HTTP surface: session lifecycle,
// alarm acknowledgement, manual coil writes and archived-reading queries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/domain"
	"github.com/nexus-edge/bench-engine/internal/health"
	"github.com/nexus-edge/bench-engine/internal/service"
	"github.com/nexus-edge/bench-engine/internal/store"
)

// Sessions is the session-lifecycle surface consumed by the API.
type Sessions interface {
	Create(ctx context.Context, p service.CreateParams) (*domain.TestRun, error)
	Start(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error)
	Pause(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error)
	Resume(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error)
	Abort(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error)
	Active(ctx context.Context) (*domain.TestRun, error)
	EventLog(ctx context.Context, runID uint) ([]domain.TestEventLog, error)
}

// Alarms is the acknowledgement surface consumed by the API.
type Alarms interface {
	Acknowledge(ctx context.Context, episodeID uint, by string) (*domain.AlarmEpisode, error)
}

// CoilWrites is the synchronous write surface consumed by the API.
type CoilWrites interface {
	Write(ctx context.Context, registerID uint, value bool) error
}

// Readings is the archived-reading query surface consumed by the API.
type Readings interface {
	Readings(ctx context.Context, f store.ReadingsFilter) ([]domain.Reading, error)
}

// Server is the operator HTTP server.
type Server struct {
	sessions Sessions
	alarms   Alarms
	writer   CoilWrites
	readings Readings
	health   *health.Registry
	logger   zerolog.Logger
	router   chi.Router
}

// NewServer creates the operator HTTP server and mounts all routes.
func NewServer(
	sessions Sessions,
	alarms Alarms,
	writer CoilWrites,
	readings Readings,
	healthReg *health.Registry,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		sessions: sessions,
		alarms:   alarms,
		writer:   writer,
		readings: readings,
		health:   healthReg,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/active", s.activeSession)
			r.Post("/{id}/start", s.sessionTransition(s.sessions.Start))
			r.Post("/{id}/pause", s.sessionTransition(s.sessions.Pause))
			r.Post("/{id}/resume", s.sessionTransition(s.sessions.Resume))
			r.Post("/{id}/abort", s.sessionTransition(s.sessions.Abort))
			r.Get("/{id}/events", s.sessionEvents)
		})
		r.Post("/alarms/{id}/ack", s.acknowledgeAlarm)
		r.Post("/registers/{id}/write", s.writeCoil)
		r.Get("/readings", s.queryReadings)
	})

	s.router = r
	return s
}

// Handler returns the mounted router.
func (s *Server) Handler() http.Handler { return s.router }

type createSessionRequest struct {
	Name                  string `json:"name"`
	CustomerName          string `json:"customer_name"`
	ProductDetails        string `json:"product_details"`
	TargetDurationSeconds uint   `json:"target_duration_seconds"`
	ControlRegisterID     *uint  `json:"control_register_id"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	run, err := s.sessions.Create(r.Context(), service.CreateParams{
		Name:                  req.Name,
		CustomerName:          req.CustomerName,
		ProductDetails:        req.ProductDetails,
		TargetDurationSeconds: req.TargetDurationSeconds,
		ControlRegisterID:     req.ControlRegisterID,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, run)
}

func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) {
	run, err := s.sessions.Active(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no active session")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

type transitionRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

func (s *Server) sessionTransition(op func(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.uintParam(w, r, "id")
		if !ok {
			return
		}

		var req transitionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Actor == "" {
			req.Actor = "operator"
		}

		run, err := op(r.Context(), id, req.Actor, req.Notes)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, run)
	}
}

func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "id")
	if !ok {
		return
	}
	events, err := s.sessions.EventLog(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

type ackRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

func (s *Server) acknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "id")
	if !ok {
		return
	}

	var req ackRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.AcknowledgedBy == "" {
		s.writeError(w, http.StatusBadRequest, "acknowledged_by is required")
		return
	}

	ep, err := s.alarms.Acknowledge(r.Context(), id, req.AcknowledgedBy)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ep)
}

type writeCoilRequest struct {
	Value bool `json:"value"`
}

func (s *Server) writeCoil(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "id")
	if !ok {
		return
	}

	var req writeCoilRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.writer.Write(r.Context(), id, req.Value); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"register_id": id,
		"value":       req.Value,
	})
}

func (s *Server) queryReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ReadingsFilter{Limit: 1000}

	if v := q.Get("register_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid register_id")
			return
		}
		f.RegisterID = uint(id)
	}
	if v := q.Get("test_run_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid test_run_id")
			return
		}
		f.TestRunID = uint(id)
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		f.To = t
	}
	if v := q.Get("min_value"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid min_value")
			return
		}
		f.MinValue = &n
	}
	if v := q.Get("max_value"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid max_value")
			return
		}
		f.MaxValue = &n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	readings, err := s.readings.Readings(r.Context(), f)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, readings)
}

func (s *Server) uintParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrEpisodeNotFound),
		errors.Is(err, domain.ErrRegisterNotFound),
		errors.Is(err, domain.ErrDeviceNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionActiveExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidAcknowledgment):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotWritable):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrWriteQueueFull):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
