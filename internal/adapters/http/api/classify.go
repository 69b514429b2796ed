package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	service "github.com/okian/celestial/internal/app"
	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/internal/domain/schema"
)

// ClassifyDependencies defines the interface for classification.
type ClassifyDependencies interface {
	Classify(ctx context.Context, filename string, r io.Reader) (service.Batch, error)
	ClassifyRow(ctx context.Context, row model.Row) (model.Label, error)
	Strategy() string
}

// ClassifyHandler handles batch and single-row classification requests.
type ClassifyHandler struct {
	deps           ClassifyDependencies
	maxUploadBytes int64
}

// NewClassifyHandler creates a new classify handler.
func NewClassifyHandler(deps ClassifyDependencies, maxUploadBytes int64) *ClassifyHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &ClassifyHandler{deps: deps, maxUploadBytes: maxUploadBytes}
}

type classifyResponse struct {
	ID          string          `json:"id"`
	Strategy    string          `json:"strategy"`
	Rows        int             `json:"rows"`
	Skipped     int             `json:"skipped"`
	Counts      map[string]int  `json:"counts"`
	Renamed     []schema.Rename `json:"renamed"`
	Predictions []string        `json:"predictions"`
}

func newClassifyResponse(b service.Batch) classifyResponse { //nolint:gocritic // hugeParam: Batch is a read-only snapshot
	counts := make(map[string]int, 3)
	for l, n := range b.Result.Counts() {
		counts[l.String()] = n
	}
	preds := make([]string, len(b.Result.Labels))
	for i, l := range b.Result.Labels {
		preds[i] = l.String()
	}
	renamed := b.Renames
	if renamed == nil {
		renamed = []schema.Rename{}
	}
	return classifyResponse{
		ID:          b.ID,
		Strategy:    b.Strategy,
		Rows:        b.Result.Len(),
		Skipped:     b.Skipped,
		Counts:      counts,
		Renamed:     renamed,
		Predictions: preds,
	}
}

// HandleClassify handles POST /api/v1/classify. The CSV arrives either as
// the raw body or as the multipart field "file".
func (h *ClassifyHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	const op = "api.classify"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	body, filename, err := h.upload(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	defer body.Close()

	b, err := h.deps.Classify(r.Context(), filename, body)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newClassifyResponse(b))
}

// upload returns the CSV reader of r and a name for logging.
func (h *ClassifyHandler) upload(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, "body.csv", nil
	}
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", fmt.Errorf("%w: %w", ErrTooLarge, err)
		}
		return nil, "", err
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("multipart field %q: %w", "file", err)
	}
	return f, hdr.Filename, nil
}

type rowResponse struct {
	Prediction string `json:"prediction"`
	Severity   string `json:"severity"`
	Strategy   string `json:"strategy"`
}

// HandleClassifyRow handles POST /api/v1/classify/row with a JSON object
// keyed by canonical column names.
func (h *ClassifyHandler) HandleClassifyRow(w http.ResponseWriter, r *http.Request) {
	const op = "api.classify_row"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var values map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	row, missing := model.RowFromMap(values)
	if len(missing) > 0 {
		writeFailure(w, WrapKind(op, ErrBadRequest,
			fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))))
		return
	}

	label, err := h.deps.ClassifyRow(r.Context(), row)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rowResponse{
		Prediction: label.String(),
		Severity:   label.Severity(),
		Strategy:   h.deps.Strategy(),
	})
}
