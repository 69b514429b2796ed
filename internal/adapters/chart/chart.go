// Package chart renders the label distribution of a prediction batch.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/okian/celestial/internal/domain/model"
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("chart: no labelled rows")

const (
	defaultWidth  = 420
	defaultHeight = 420
)

// palette maps each label to its slice colour.
var palette = map[model.Label]string{
	model.LabelConfirmed:     "7bd389",
	model.LabelFalsePositive: "ff6b6b",
	model.LabelCandidate:     "ffd166",
}

// Color returns the hex colour (without '#') used for l.
func Color(l model.Label) string { return palette[l] }

type options struct {
	width, height int
}

// Option configures rendering.
type Option func(*options)

// WithSize sets the canvas size in pixels. Non-positive values are ignored.
func WithSize(width, height int) Option {
	return func(o *options) {
		if width > 0 {
			o.width = width
		}
		if height > 0 {
			o.height = height
		}
	}
}

// Pie writes an SVG pie chart of counts to w. Labels with no rows are
// left out; ErrEmpty is returned when every count is zero.
func Pie(w io.Writer, counts map[model.Label]int, opts ...Option) error {
	o := options{width: defaultWidth, height: defaultHeight}
	for _, opt := range opts {
		opt(&o)
	}

	values := make([]gochart.Value, 0, len(palette))
	for _, l := range model.Labels() {
		n := counts[l]
		if n <= 0 {
			continue
		}
		fill := drawing.ColorFromHex(palette[l])
		values = append(values, gochart.Value{
			Label: fmt.Sprintf("%s (%d)", l, n),
			Value: float64(n),
			Style: gochart.Style{
				FillColor:   fill,
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 2,
				FontColor:   drawing.ColorFromHex("1b1f3b"),
			},
		})
	}
	if len(values) == 0 {
		return ErrEmpty
	}

	pie := gochart.PieChart{
		Width:  o.width,
		Height: o.height,
		Background: gochart.Style{
			FillColor: drawing.ColorTransparent,
		},
		Canvas: gochart.Style{
			FillColor: drawing.ColorTransparent,
		},
		Values: values,
	}
	// A lone value is drawn as a full circle with SliceStyle, not its own Style.
	if len(values) == 1 {
		pie.SliceStyle = values[0].Style
	}
	if err := pie.Render(gochart.SVG, w); err != nil {
		return fmt.Errorf("render pie chart: %w", err)
	}
	return nil
}

// PieSVG renders Pie into memory.
func PieSVG(counts map[model.Label]int, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Pie(&buf, counts, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
