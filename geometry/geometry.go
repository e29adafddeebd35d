// Package geometry answers the companion's pixels-per-millimetre queries from
// the active viewport.
//
// pixelMM is the number of screen pixels per millimetre scaled by 1000 and
// rounded up, which is what DLPrecise expects in the second reply element.
package geometry

import (
	"math"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/plugin"
)

// Mode selects how the scale is derived
type Mode string

const (
	// ModeCanvas measures the world distance spanned by 100 canvas pixels
	ModeCanvas Mode = "canvas"
	// ModeSpacing uses the row pixel spacing reported by the viewport
	ModeSpacing Mode = "spacing"
)

// ParseMode validates a configured mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCanvas, ModeSpacing:
		return Mode(s), nil
	default:
		return "", errors.NewInvalidRequestError("unknown geometry mode %q (want canvas or spacing)", s)
	}
}

// Measurement is the answer to one MeasureQuery
type Measurement struct {
	InsideImageFrame uint32
	PixelMM          uint32
}

// Measurer answers measurement queries
type Measurer interface {
	Measure(x, y float64) (Measurement, error)
}

// Calculator measures against the host's active viewport
type Calculator struct {
	mode      Mode
	viewports plugin.ViewportService
}

// New creates a calculator. An empty mode means ModeCanvas.
func New(mode Mode, viewports plugin.ViewportService) *Calculator {
	if mode == "" {
		mode = ModeCanvas
	}
	return &Calculator{mode: mode, viewports: viewports}
}

// Mode returns the calculation mode
func (c *Calculator) Mode() Mode {
	return c.mode
}

// Measure returns whether (x, y) is inside the image and the current scale.
// Degenerate geometry is an error wrapping ErrDegenerateGeometry.
func (c *Calculator) Measure(x, y float64) (Measurement, error) {
	vp, err := c.viewports.ActiveViewport()
	if err != nil {
		return Measurement{}, errors.Wrap(errors.ErrNoActiveViewport, err.Error())
	}

	var pixelMM float64
	switch c.mode {
	case ModeSpacing:
		row, _ := vp.PixelSpacing()
		if !(row > 0) || math.IsInf(row, 0) {
			return Measurement{}, errors.Wrapf(errors.ErrDegenerateGeometry, "row spacing %v", row)
		}
		pixelMM = math.Ceil(1000 / row)
	default:
		d := distance(vp.CanvasToWorld(0, 100), vp.CanvasToWorld(0, 200))
		if !(d > 0) || math.IsInf(d, 0) {
			return Measurement{}, errors.Wrapf(errors.ErrDegenerateGeometry, "100 canvas pixels span %v mm", d)
		}
		pixelMM = math.Ceil(100000 / d)
	}
	if pixelMM > math.MaxUint32 {
		return Measurement{}, errors.Wrapf(errors.ErrDegenerateGeometry, "scale %v does not fit in uint32", pixelMM)
	}

	m := Measurement{PixelMM: uint32(pixelMM)}
	if vp.Contains(x, y) {
		m.InsideImageFrame = 1
	}
	return m, nil
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
