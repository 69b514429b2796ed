package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/celestial/internal/adapters/chart"
	"github.com/okian/celestial/internal/adapters/tabular"
	service "github.com/okian/celestial/internal/app"
)

// ResultsDependencies defines the interface for reading stored results.
type ResultsDependencies interface {
	Result(ctx context.Context, id string) (service.Batch, error)
}

// ResultsHandler serves exports and charts of classified batches.
type ResultsHandler struct {
	deps ResultsDependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultsDependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

// HandleResult handles GET /api/v1/results/{id} (CSV export) and
// GET /api/v1/results/{id}/chart (SVG pie chart).
func (h *ResultsHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_result"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/results/")
	id, view, _ := strings.Cut(path, "/")
	if id == "" || (view != "" && view != "chart") {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	b, err := h.deps.Result(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	if view == "chart" {
		svg, err := chart.PieSVG(b.Result.Counts())
		if err != nil {
			writeFailure(w, WrapKind(op, ErrEmptyResult, err))
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(svg)
		return
	}

	data, err := tabular.Encode(b.Result)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+tabular.ExportFilename+`"`)
	_, _ = w.Write(data)
}
