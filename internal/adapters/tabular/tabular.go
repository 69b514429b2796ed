// Package tabular decodes uploaded KOI tables and encodes prediction exports
// as CSV.
package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/okian/celestial/internal/domain/model"
)

// Delimiters tried in order.
const (
	Comma     = ','
	Semicolon = ';'
)

// ExportFilename is the download name of an exported result.
const ExportFilename = "exoplanet_predictions.csv"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parsed is a decoded upload.
type Parsed struct {
	Table model.Table
	// Delimiter is the separator that produced Table.
	Delimiter rune
	// Skipped counts records whose field count differed from the header.
	Skipped int
}

// Fallback reports whether the semicolon retry was needed.
func (p Parsed) Fallback() bool { return p.Delimiter == Semicolon }

// Parse reads a whole CSV document. It tries a comma delimiter first and
// retries once with a semicolon when the comma pass fails or yields a
// single header column that contains ';'. Records with the wrong number of
// fields or that cannot be read are skipped and counted; a bare quote inside
// a record is kept as a literal character.
func Parse(ctx context.Context, r io.Reader) (Parsed, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Parsed{}, fmt.Errorf("read upload: %w", err)
	}
	return ParseBytes(ctx, data)
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(ctx context.Context, data []byte) (Parsed, error) {
	if err := ctx.Err(); err != nil {
		return Parsed{}, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	p, err := decode(data, Comma)
	if err == nil && !suspectSingleColumn(p.Table.Header) {
		return p, nil
	}
	if errors.Is(err, ErrEmpty) {
		return Parsed{}, err
	}
	firstErr := err

	p, err = decode(data, Semicolon)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return Parsed{}, fmt.Errorf("%w: %w", ErrParse, firstErr)
	}
	return p, nil
}

// suspectSingleColumn is true when a comma pass likely read a
// semicolon-separated header as one field.
func suspectSingleColumn(header []string) bool {
	return len(header) == 1 && strings.ContainsRune(header[0], Semicolon)
}

func decode(data []byte, comma rune) (Parsed, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Parsed{}, ErrEmpty
	}
	if err != nil {
		return Parsed{}, fmt.Errorf("header: %w", err)
	}

	p := Parsed{
		Table:     model.Table{Header: append([]string(nil), header...)},
		Delimiter: comma,
	}
	// The header must be well formed; records may carry stray quotes.
	r.LazyQuotes = true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			p.Skipped++
			continue
		}
		if err != nil {
			return Parsed{}, err
		}
		if len(rec) != len(header) {
			p.Skipped++
			continue
		}
		p.Table.Records = append(p.Table.Records, rec)
	}
	return p, nil
}

// Header returns the export header: the canonical columns and Prediction.
func Header() []string {
	return append(model.Columns(), model.PredictionColumn)
}

// Write encodes res as CSV: the canonical columns of every row followed by
// its label.
func Write(w io.Writer, res model.Result) error {
	if len(res.Cells) != len(res.Labels) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrExport, len(res.Cells), len(res.Labels))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	rec := make([]string, model.FeatureCount+1)
	for i, cells := range res.Cells {
		if len(cells) != model.FeatureCount {
			return fmt.Errorf("%w: row %d has %d cells", ErrExport, i+1, len(cells))
		}
		copy(rec, cells)
		rec[model.FeatureCount] = res.Labels[i].String()
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("%w: %w", ErrExport, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}

// Encode is Write into a byte slice.
func Encode(res model.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
