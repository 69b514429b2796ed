package api

import (
	"net/http"

	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/internal/domain/schema"
)

// SchemaHandler describes the accepted input columns.
type SchemaHandler struct{}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler() *SchemaHandler {
	return &SchemaHandler{}
}

type schemaResponse struct {
	Columns          []string       `json:"columns"`
	Aliases          []schema.Alias `json:"aliases"`
	PredictionColumn string         `json:"prediction_column"`
	Labels           []model.Label  `json:"labels"`
}

// HandleSchema handles GET /api/v1/schema requests.
func (h *SchemaHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{
		Columns:          model.Columns(),
		Aliases:          schema.Aliases(),
		PredictionColumn: model.PredictionColumn,
		Labels:           model.Labels(),
	})
}
