package site

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/celestial/internal/config"
)

// View is one of the mutually exclusive dashboard panels.
type View string

// The dashboard panels.
const (
	ViewAbout  View = "about"
	ViewUpload View = "upload"
	ViewManual View = "manual"
)

// ParseView maps a query value to a View. Anything unknown is ViewAbout.
func ParseView(s string) View {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewAbout, ViewUpload, ViewManual:
		return v
	default:
		return ViewAbout
	}
}

// Query parameter names carrying the visual controls.
const (
	paramView   = "view"
	paramSpeed  = "speed"
	paramStars  = "stars"
	paramTrails = "trails"
)

// Controls drive the decorative background only.
type Controls struct {
	OrbitSpeed     float64
	StarBrightness float64
	ShowTrails     bool
}

// DefaultControls returns the controls used when a request carries none.
func DefaultControls() Controls {
	return Controls{
		OrbitSpeed:     config.DefaultOrbitSpeed,
		StarBrightness: config.DefaultStarBrightness,
		ShowTrails:     true,
	}
}

// ParseControls reads the controls from q, falling back to def for absent
// or unparsable values. Numeric values are clamped to their ranges. The
// last trails value wins so a checkbox can follow a hidden "off" input.
func ParseControls(q url.Values, def Controls) Controls {
	c := def
	if v, err := strconv.ParseFloat(q.Get(paramSpeed), 64); err == nil {
		c.OrbitSpeed = v
	}
	if v, err := strconv.ParseFloat(q.Get(paramStars), 64); err == nil {
		c.StarBrightness = v
	}
	if vals := q[paramTrails]; len(vals) > 0 {
		switch strings.ToLower(vals[len(vals)-1]) {
		case "on", "true", "1":
			c.ShowTrails = true
		case "off", "false", "0":
			c.ShowTrails = false
		}
	}
	c.OrbitSpeed = config.ClampOrbitSpeed(c.OrbitSpeed)
	c.StarBrightness = config.ClampStarBrightness(c.StarBrightness)
	return c
}

// Values encodes c as query parameters.
func (c Controls) Values() url.Values {
	trails := "off"
	if c.ShowTrails {
		trails = "on"
	}
	return url.Values{
		paramSpeed:  {strconv.FormatFloat(c.OrbitSpeed, 'f', -1, 64)},
		paramStars:  {strconv.FormatFloat(c.StarBrightness, 'f', -1, 64)},
		paramTrails: {trails},
	}
}

// Link returns a dashboard URL for view that keeps the controls.
func (c Controls) Link(v View) template.URL {
	q := c.Values()
	q.Set(paramView, string(v))
	return template.URL("/?" + q.Encode()) //nolint:gosec // built from parsed, clamped values
}

// Action returns a form target for path that keeps the controls.
func (c Controls) Action(path string) template.URL {
	return template.URL(path + "?" + c.Values().Encode()) //nolint:gosec // path is a route constant
}
