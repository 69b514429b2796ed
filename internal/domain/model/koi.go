// Package model contains domain models passed between layers.
package model

import "strings"

// Canonical KOI feature column names, in the order the classifier expects.
const (
	ColPeriod   = "koi_period"
	ColTime0bk  = "koi_time0bk"
	ColImpact   = "koi_impact"
	ColDuration = "koi_duration"
	ColDepth    = "koi_depth"
	ColPrad     = "koi_prad"
	ColTeq      = "koi_teq"
	ColInsol    = "koi_insol"
	ColModelSNR = "koi_model_snr"
	ColSteff    = "koi_steff"
	ColSlogg    = "koi_slogg"
	ColSrad     = "koi_srad"
	ColKepmag   = "koi_kepmag"
)

// PredictionColumn is the column appended to exported results.
const PredictionColumn = "Prediction"

// FeatureCount is the number of features in a Row.
const FeatureCount = 13

var canonical = [FeatureCount]string{
	ColPeriod, ColTime0bk, ColImpact, ColDuration, ColDepth,
	ColPrad, ColTeq, ColInsol, ColModelSNR, ColSteff,
	ColSlogg, ColSrad, ColKepmag,
}

// Columns returns the canonical feature names in classifier order.
// The returned slice is a copy.
func Columns() []string {
	out := make([]string, FeatureCount)
	copy(out, canonical[:])
	return out
}

// Row is a single KOI observation with all required features.
type Row struct {
	Period   float64 `json:"koi_period"`
	Time0bk  float64 `json:"koi_time0bk"`
	Impact   float64 `json:"koi_impact"`
	Duration float64 `json:"koi_duration"`
	Depth    float64 `json:"koi_depth"`
	Prad     float64 `json:"koi_prad"`
	Teq      float64 `json:"koi_teq"`
	Insol    float64 `json:"koi_insol"`
	ModelSNR float64 `json:"koi_model_snr"`
	Steff    float64 `json:"koi_steff"`
	Slogg    float64 `json:"koi_slogg"`
	Srad     float64 `json:"koi_srad"`
	Kepmag   float64 `json:"koi_kepmag"`
}

// Vector returns the features in canonical column order.
func (r Row) Vector() []float64 {
	return []float64{
		r.Period, r.Time0bk, r.Impact, r.Duration, r.Depth,
		r.Prad, r.Teq, r.Insol, r.ModelSNR, r.Steff,
		r.Slogg, r.Srad, r.Kepmag,
	}
}

// RowFromVector builds a Row from values in canonical order.
// It returns false when v does not hold exactly FeatureCount values.
func RowFromVector(v []float64) (Row, bool) {
	if len(v) != FeatureCount {
		return Row{}, false
	}
	return Row{
		Period: v[0], Time0bk: v[1], Impact: v[2], Duration: v[3], Depth: v[4],
		Prad: v[5], Teq: v[6], Insol: v[7], ModelSNR: v[8], Steff: v[9],
		Slogg: v[10], Srad: v[11], Kepmag: v[12],
	}, true
}

// RowFromMap builds a Row from values keyed by canonical name.
// Missing canonical names are returned in canonical order; the Row is only
// usable when missing is empty.
func RowFromMap(values map[string]float64) (row Row, missing []string) {
	v := make([]float64, FeatureCount)
	for i, name := range canonical {
		val, ok := values[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		v[i] = val
	}
	if len(missing) > 0 {
		return Row{}, missing
	}
	row, _ = RowFromVector(v)
	return row, nil
}

// Table is a parsed tabular upload: a header and string cells.
// Every record has exactly len(Header) cells.
type Table struct {
	Header  []string
	Records [][]string
}

// Len returns the number of records.
func (t Table) Len() int { return len(t.Records) }

// Index returns the position of the named column or -1.
func (t Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Has reports whether the named column exists.
func (t Table) Has(name string) bool { return t.Index(name) >= 0 }

// Column returns the cells of the named column, or nil if absent.
func (t Table) Column(name string) []string {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Records))
	for i, rec := range t.Records {
		out[i] = rec[idx]
	}
	return out
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	c := Table{
		Header:  append([]string(nil), t.Header...),
		Records: make([][]string, len(t.Records)),
	}
	for i, rec := range t.Records {
		c.Records[i] = append([]string(nil), rec...)
	}
	return c
}

// String renders the header for log output.
func (t Table) String() string {
	return "[" + strings.Join(t.Header, ", ") + "]"
}
