package schema

import (
	"strconv"
	"strings"

	"github.com/okian/celestial/internal/domain/model"
)

// Selection is a table restricted to the canonical columns, in canonical
// order, with each row parsed into features.
type Selection struct {
	Rows  []model.Row
	Cells [][]string
}

// Select restricts t to the canonical columns and parses every value.
// It fails with *MissingColumnsError when a column is absent and with
// *ValueError on the first cell that is not a number.
func Select(t model.Table) (Selection, error) {
	if missing := Missing(t); len(missing) > 0 {
		return Selection{}, &MissingColumnsError{Missing: missing}
	}

	cols := model.Columns()
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.Index(c)
	}

	sel := Selection{
		Rows:  make([]model.Row, 0, t.Len()),
		Cells: make([][]string, 0, t.Len()),
	}
	for r, rec := range t.Records {
		cells := make([]string, len(cols))
		vals := make([]float64, len(cols))
		for i, j := range idx {
			cell := strings.TrimSpace(rec[j])
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return Selection{}, &ValueError{Row: r + 1, Column: cols[i], Value: rec[j]}
			}
			cells[i] = cell
			vals[i] = v
		}
		row, _ := model.RowFromVector(vals)
		sel.Rows = append(sel.Rows, row)
		sel.Cells = append(sel.Cells, cells)
	}
	return sel, nil
}
