// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/celestial/internal/adapters/tabular"
	service "github.com/okian/celestial/internal/app"
	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/internal/domain/schema"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Classify parses, normalizes and classifies a CSV document.
	Classify(ctx context.Context, filename string, r io.Reader) (service.Batch, error)
	ClassifyRow(ctx context.Context, row model.Row) (model.Label, error)

	// Result returns a previously classified batch.
	Result(ctx context.Context, id string) (service.Batch, error)

	// Strategy names the active prediction strategy.
	Strategy() string
}

const defaultMaxUploadBytes int64 = 32 << 20

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes bounds request bodies accepted by the classify
// endpoints.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxUploadBytes int64

	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	classifyHandler *ClassifyHandler
	resultsHandler  *ResultsHandler
	schemaHandler   *SchemaHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.classifyHandler = NewClassifyHandler(deps, s.maxUploadBytes)
	s.resultsHandler = NewResultsHandler(deps)
	s.schemaHandler = NewSchemaHandler()
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/v1/classify", MetricsMiddleware(s.classifyHandler.HandleClassify, "classify"))
	mux.HandleFunc("/api/v1/classify/row", MetricsMiddleware(s.classifyHandler.HandleClassifyRow, "classify_row"))
	mux.HandleFunc("/api/v1/results/", MetricsMiddleware(s.resultsHandler.HandleResult, "results"))
	mux.HandleFunc("/api/v1/schema", MetricsMiddleware(s.schemaHandler.HandleSchema, "schema"))
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status code and error body.
func writeFailure(w http.ResponseWriter, err error) {
	var missing *schema.MissingColumnsError
	if errors.As(err, &missing) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "missing_columns",
			Message: err.Error(),
			Missing: missing.Missing,
		})
		return
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, schema.ErrInvalidValue),
		errors.Is(err, tabular.ErrParse),
		errors.Is(err, tabular.ErrEmpty):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrEmptyResult):
		writeError(w, http.StatusUnprocessableEntity, "empty_result", err)
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
