// Package schema coerces uploaded tables into the canonical KOI feature
// columns using a fixed alias table.
//
// Renaming is best-effort: an alias matches when it is a substring of the
// cleaned column name and the first match wins. Columns that cannot be
// mapped surface only through Missing.
package schema

import (
	"strings"

	"github.com/okian/celestial/internal/domain/model"
)

// Alias maps a substring of a user column name to a canonical column.
type Alias struct {
	Key       string `json:"key"`
	Canonical string `json:"canonical"`
}

// Order matters: the first alias contained in a column name is used.
var aliases = []Alias{
	{"period", model.ColPeriod},
	{"time0bk", model.ColTime0bk},
	{"impact", model.ColImpact},
	{"duration", model.ColDuration},
	{"depth", model.ColDepth},
	{"prad", model.ColPrad},
	{"teq", model.ColTeq},
	{"insol", model.ColInsol},
	{"model_snr", model.ColModelSNR},
	{"steff", model.ColSteff},
	{"slogg", model.ColSlogg},
	{"srad", model.ColSrad},
	{"kepmag", model.ColKepmag},
}

// Aliases returns a copy of the alias table in match order.
func Aliases() []Alias {
	return append([]Alias(nil), aliases...)
}

// Rename records one column rename applied by Normalize.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Report is the outcome of normalizing a table.
type Report struct {
	Table   model.Table
	Renames []Rename
	Missing []string
}

// Complete reports whether every canonical column is present.
func (r Report) Complete() bool { return len(r.Missing) == 0 }

// CleanName trims and lowercases a column name.
func CleanName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalize cleans every header name and renames aliased columns to their
// canonical names. The input table is not modified.
func Normalize(t model.Table) Report {
	out := t.Clone()
	for i, h := range out.Header {
		out.Header[i] = CleanName(h)
	}

	present := make(map[string]bool, len(out.Header))
	for _, h := range out.Header {
		present[h] = true
	}

	var renames []Rename
	for i, col := range out.Header {
		for _, a := range aliases {
			if !strings.Contains(col, a.Key) || present[a.Canonical] {
				continue
			}
			out.Header[i] = a.Canonical
			present[a.Canonical] = true
			// A duplicate header may still carry the old name.
			present[col] = countName(out.Header, col) > 0
			renames = append(renames, Rename{From: col, To: a.Canonical})
			break
		}
	}

	return Report{
		Table:   out,
		Renames: renames,
		Missing: Missing(out),
	}
}

// Missing lists the canonical columns absent from t, in canonical order.
func Missing(t model.Table) []string {
	var missing []string
	for _, c := range model.Columns() {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Complete reports whether t holds every canonical column.
func Complete(t model.Table) bool { return len(Missing(t)) == 0 }

func countName(header []string, name string) int {
	n := 0
	for _, h := range header {
		if h == name {
			n++
		}
	}
	return n
}
