// Package site serves the HTML dashboard: the about, upload and manual
// views, the CSV download and the decorative background assets.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/okian/celestial/internal/adapters/chart"
	"github.com/okian/celestial/internal/adapters/http/api"
	"github.com/okian/celestial/internal/adapters/tabular"
	service "github.com/okian/celestial/internal/app"
	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/internal/domain/schema"
	"github.com/okian/celestial/pkg/logger"
)

// Error constants
var (
	ErrRender     = errors.New("render page failed")
	ErrNotCSV     = errors.New("upload must be a .csv file")
	ErrNoFile     = errors.New("no file uploaded")
	ErrFieldValue = errors.New("invalid field value")
)

// Dependencies required by the dashboard.
type Dependencies interface {
	StageUpload(ctx context.Context, filename string, r io.Reader) (service.Upload, error)
	PredictUpload(ctx context.Context, id string) (service.Batch, error)
	Result(ctx context.Context, id string) (service.Batch, error)
	ClassifyRow(ctx context.Context, row model.Row) (model.Label, error)
	Strategy() string
}

const defaultMaxUploadBytes int64 = 32 << 20

const (
	defaultPreviewRows      = 50
	manualDefaultValue      = "1.0"
	manualStep              = "0.000001"
	flashUploaded           = "File uploaded successfully"
	flashPredicted          = "Prediction completed successfully"
	flashMissingColumnsHint = "If column names differ, rename the CSV headers to the canonical names."
)

// Option configures a Handler.
type Option func(*Handler)

// WithPreviewRows sets how many classified rows the result view shows.
func WithPreviewRows(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.previewRows = n
		}
	}
}

// WithMaxUploadBytes bounds accepted uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithDefaultControls sets the controls used when a request carries none.
func WithDefaultControls(c Controls) Option {
	return func(h *Handler) {
		h.defaults = ParseControls(nil, c)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// Handler renders the dashboard pages.
type Handler struct {
	deps           Dependencies
	tmpl           *template.Template
	previewRows    int
	maxUploadBytes int64
	defaults       Controls
	logger         logger.Logger
}

// NewHandler parses the embedded templates and returns a Handler.
func NewHandler(deps Dependencies, opts ...Option) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	h := &Handler{
		deps:           deps,
		tmpl:           tmpl,
		previewRows:    defaultPreviewRows,
		maxUploadBytes: defaultMaxUploadBytes,
		defaults:       DefaultControls(),
		logger:         logger.Get().Named("site"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register attaches the dashboard routes to mux.
func Register(_ context.Context, mux *http.ServeMux, deps Dependencies, opts ...Option) error {
	if mux == nil {
		panic("mux is nil")
	}
	h, err := NewHandler(deps, opts...)
	if err != nil {
		return err
	}
	h.Register(mux)
	return nil
}

// Register attaches h's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", api.MetricsMiddleware(h.HandleIndex, "site_index"))
	mux.HandleFunc("/upload", api.MetricsMiddleware(h.HandleUpload, "site_upload"))
	mux.HandleFunc("/predict", api.MetricsMiddleware(h.HandlePredict, "site_predict"))
	mux.HandleFunc("/manual", api.MetricsMiddleware(h.HandleManual, "site_manual"))
	mux.HandleFunc("/download/", api.MetricsMiddleware(h.HandleDownload, "site_download"))
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(StaticFS())))
}

type flash struct {
	Severity string
	Message  string
}

type uploadView struct {
	ID       string
	Filename string
	Rows     int
	Skipped  int
	Renames  []schema.Rename
	Missing  []string
	Complete bool
}

type labelCount struct {
	Label string
	Count int
	Color string
}

type resultView struct {
	ID        string
	Strategy  string
	Rows      int
	Header    []string
	Preview   [][]string
	Truncated bool
	Counts    []labelCount
	Chart     template.HTML
}

type field struct {
	Name  string
	Value string
}

type manualView struct {
	Fields   []field
	Step     string
	Label    string
	Severity string
}

type page struct {
	View     View
	Controls Controls
	Strategy string
	Flashes  []flash
	Upload   *uploadView
	Result   *resultView
	Manual   *manualView
	Columns  []string
	Aliases  []schema.Alias
}

// Link keeps the controls while switching views.
func (p *page) Link(v string) template.URL { return p.Controls.Link(ParseView(v)) }

// Action keeps the controls across form posts.
func (p *page) Action(path string) template.URL { return p.Controls.Action(path) }

func (p *page) flash(severity, format string, args ...any) {
	p.Flashes = append(p.Flashes, flash{Severity: severity, Message: fmt.Sprintf(format, args...)})
}

func (h *Handler) newPage(r *http.Request, v View) *page {
	p := &page{
		View:     v,
		Controls: ParseControls(r.URL.Query(), h.defaults),
		Strategy: h.deps.Strategy(),
		Columns:  model.Columns(),
		Aliases:  schema.Aliases(),
	}
	if v == ViewManual {
		p.Manual = newManualView(nil)
	}
	return p
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, p *page) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "layout", p); err != nil {
		h.logger.Error(r.Context(), "render page", logger.String("view", string(p.View)), logger.Error(err))
		http.Error(w, ErrRender.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// HandleIndex handles GET /?view=about|upload|manual.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, http.StatusOK, h.newPage(r, ParseView(r.URL.Query().Get(paramView))))
}

// HandleUpload handles POST /upload with a multipart "file" field.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	p := h.newPage(r, ViewUpload)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		p.flash("error", "Could not read the upload: %v", err)
		h.render(w, r, status, p)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		p.flash("error", "%v", ErrNoFile)
		h.render(w, r, http.StatusBadRequest, p)
		return
	}
	defer f.Close()
	if !strings.EqualFold(path.Ext(hdr.Filename), ".csv") {
		p.flash("error", "%v: %s", ErrNotCSV, hdr.Filename)
		h.render(w, r, http.StatusBadRequest, p)
		return
	}

	u, err := h.deps.StageUpload(r.Context(), hdr.Filename, f)
	if err != nil {
		p.flash("error", "Could not parse %s: %v", hdr.Filename, err)
		h.render(w, r, statusFor(err), p)
		return
	}

	p.flash("success", flashUploaded)
	p.Upload = newUploadView(u)
	if !u.Complete() {
		p.flash("warning", "Some required columns missing: %s", strings.Join(u.Missing, ", "))
		p.flash("info", flashMissingColumnsHint)
	}
	h.render(w, r, http.StatusOK, p)
}

// HandlePredict handles POST /predict for a staged upload id.
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	p := h.newPage(r, ViewUpload)
	if err := r.ParseForm(); err != nil {
		p.flash("error", "%v", err)
		h.render(w, r, http.StatusBadRequest, p)
		return
	}
	id := r.PostFormValue("id")

	b, err := h.deps.PredictUpload(r.Context(), id)
	if err != nil {
		var missing *schema.MissingColumnsError
		if errors.As(err, &missing) {
			p.flash("warning", "Some required columns missing: %s", strings.Join(missing.Missing, ", "))
			p.flash("info", flashMissingColumnsHint)
		} else {
			p.flash("error", "Prediction failed: %v", err)
		}
		h.render(w, r, statusFor(err), p)
		return
	}

	p.flash("success", flashPredicted)
	p.Result = h.newResultView(r.Context(), b)
	h.render(w, r, http.StatusOK, p)
}

// HandleManual handles POST /manual with one value per canonical column.
func (h *Handler) HandleManual(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	p := h.newPage(r, ViewManual)
	if err := r.ParseForm(); err != nil {
		p.flash("error", "%v", err)
		h.render(w, r, http.StatusBadRequest, p)
		return
	}
	p.Manual = newManualView(r.PostForm)

	values := make(map[string]float64, model.FeatureCount)
	for _, f := range p.Manual.Fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
		if err != nil {
			p.flash("error", "%v: %s = %q", ErrFieldValue, f.Name, f.Value)
			h.render(w, r, http.StatusBadRequest, p)
			return
		}
		values[f.Name] = v
	}
	row, _ := model.RowFromMap(values)

	label, err := h.deps.ClassifyRow(r.Context(), row)
	if err != nil {
		p.flash("error", "Prediction failed: %v", err)
		h.render(w, r, statusFor(err), p)
		return
	}
	p.Manual.Label = label.String()
	p.Manual.Severity = label.Severity()
	h.render(w, r, http.StatusOK, p)
}

// HandleDownload handles GET /download/{id} with the CSV export.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/download/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	b, err := h.deps.Result(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+tabular.ExportFilename+`"`)
	if err := tabular.Write(w, b.Result); err != nil {
		h.logger.Error(r.Context(), "write export", logger.String("id", id), logger.Error(err))
	}
}

func newUploadView(u service.Upload) *uploadView { //nolint:gocritic // hugeParam: Upload is a read-only snapshot
	return &uploadView{
		ID:       u.ID,
		Filename: u.Filename,
		Rows:     u.Table.Len(),
		Skipped:  u.Skipped,
		Renames:  u.Renames,
		Missing:  u.Missing,
		Complete: u.Complete(),
	}
}

func (h *Handler) newResultView(ctx context.Context, b service.Batch) *resultView { //nolint:gocritic // hugeParam: Batch is a read-only snapshot
	res := b.Result
	n := min(h.previewRows, res.Len())
	preview := make([][]string, n)
	for i := 0; i < n; i++ {
		preview[i] = append(append(make([]string, 0, model.FeatureCount+1), res.Cells[i]...), res.Labels[i].String())
	}

	counts := res.Counts()
	lc := make([]labelCount, 0, len(counts))
	for _, l := range model.Labels() {
		lc = append(lc, labelCount{Label: l.String(), Count: counts[l], Color: chart.Color(l)})
	}

	rv := &resultView{
		ID:        b.ID,
		Strategy:  b.Strategy,
		Rows:      res.Len(),
		Header:    tabular.Header(),
		Preview:   preview,
		Truncated: res.Len() > n,
		Counts:    lc,
	}
	svg, err := chart.PieSVG(counts)
	switch {
	case err == nil:
		rv.Chart = template.HTML(svg) //nolint:gosec // rendered by go-chart from label counts
	case !errors.Is(err, chart.ErrEmpty):
		h.logger.Warn(ctx, "render chart", logger.String("id", b.ID), logger.Error(err))
	}
	return rv
}

func newManualView(form map[string][]string) *manualView {
	mv := &manualView{Step: manualStep}
	for _, c := range model.Columns() {
		v := manualDefaultValue
		if vals, ok := form[c]; ok && len(vals) > 0 {
			v = vals[0]
		}
		mv.Fields = append(mv.Fields, field{Name: c, Value: v})
	}
	return mv
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	var missing *schema.MissingColumnsError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, tabular.ErrParse),
		errors.Is(err, tabular.ErrEmpty),
		errors.Is(err, schema.ErrInvalidValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
