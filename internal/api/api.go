package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

const defaultAuditLimit = 50

// StatusProvider exposes the snapshot published at the end of each control cycle.
type StatusProvider interface {
	Status() model.StatusSnapshot
}

type Server struct {
	db     *sql.DB
	status StatusProvider
}

type LimitsRequest struct {
	LowLimit  float64 `json:"low_limit"`
	HighLimit float64 `json:"high_limit"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, status StatusProvider) *Server {
	return &Server{
		db:     database,
		status: status,
	}
}

// Handler returns the routed API with CORS headers applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/actuators", s.handleActuators)
	mux.HandleFunc("/api/audit", s.handleAudit)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/config/limits", s.handleLimits)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled. A zero port disables the API.
func (s *Server) Start(ctx context.Context, port int) error {
	if port == 0 {
		log.Info().Msg("REST API disabled")
		return nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("REST API shutdown failed")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rest api: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleActuators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	actuators := s.status.Status().Actuators
	if actuators == nil {
		actuators = []model.ActuatorState{}
	}
	s.writeJSON(w, http.StatusOK, actuators)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := db.GetAuditRecords(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read audit log")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []model.AuditRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg, err := db.GetControlConfig(s.db)
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if _, err := db.ApplyLimits(s.db, req.LowLimit, req.HighLimit); err != nil {
		switch {
		case errors.Is(err, model.ErrConfiguration):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, sql.ErrNoRows):
			s.writeConfigError(w, err)
		default:
			log.Error().Err(err).Float64("low", req.LowLimit).Float64("high", req.HighLimit).Msg("Failed to update limits")
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.Info().Float64("low", req.LowLimit).Float64("high", req.HighLimit).Msg("Limits updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, http.StatusNotFound, "Control config not seeded")
		return
	}
	log.Error().Err(err).Msg("Failed to get control config")
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
