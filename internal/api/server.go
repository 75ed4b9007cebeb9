package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"netwatch/internal/detector"
	"netwatch/internal/ingest"
	"netwatch/internal/model"
	"netwatch/internal/stats"
)

// Server holds the dependencies for the HTTP handlers.
type Server struct {
	ingest   *ingest.Service
	detector *detector.Detector
	stats    *stats.Service
	timeout  time.Duration
}

// NewServer creates the API server front-ending the ingestion, detector and
// aggregation services.
func NewServer(ing *ingest.Service, det *detector.Detector, st *stats.Service, timeout time.Duration) *Server {
	return &Server{ingest: ing, detector: det, stats: st, timeout: timeout}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/packets", s.handleIngest).Methods("POST")
	r.HandleFunc("/packets/recent", s.handleRecentPackets).Methods("GET")
	r.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
	r.HandleFunc("/stats/summary", s.handleSummary).Methods("GET")
	r.HandleFunc("/stats/top-talkers", s.handleTopTalkers).Methods("GET")
	r.HandleFunc("/stats/protocol-distribution", s.handleProtocolDistribution).Methods("GET")
	r.HandleFunc("/stats/traffic-over-time", s.handleTrafficOverTime).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	return r
}

// requestContext caps every store call at the configured request timeout.
// On expiry the store reports the operation as unavailable and the caller
// retries (reads as-is, writes via the agent's backoff).
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var p ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, "failed to decode request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if _, err := s.ingest.Ingest(ctx, p); err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	alerts, err := s.detector.Detect(ctx)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	summary, err := s.stats.Summary(ctx)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTopTalkers(w http.ResponseWriter, r *http.Request) {
	n, err := intQuery(r, "n")
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	talkers, err := s.stats.TopTalkers(ctx, n)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, talkers)
}

func (s *Server) handleProtocolDistribution(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	dist, err := s.stats.ProtocolDistribution(ctx)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (s *Server) handleTrafficOverTime(w http.ResponseWriter, r *http.Request) {
	windowMinutes, err := intQuery(r, "window_minutes")
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	bucketSeconds, err := intQuery(r, "bucket_seconds")
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	series, err := s.stats.TrafficOverTime(ctx, windowMinutes, bucketSeconds)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleRecentPackets(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	events, err := s.stats.RecentPackets(ctx, limit)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// intQuery reads an optional integer query parameter; 0 means "not supplied"
// and lets the service pick its default.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", model.ErrInvalidParameter, name, raw)
	}
	return v, nil
}

// writeTaxonomyError maps the error taxonomy onto HTTP status codes:
// invalid input 400, unavailable store 503, anything else 500.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidEvent), errors.Is(err, model.ErrInvalidParameter):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrStoreUnavailable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Printf("Internal error: %v", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
