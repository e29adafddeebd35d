package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/plugin"
)

// linearViewport maps canvas pixels to world mm with a uniform scale
type linearViewport struct {
	mmPerPixel float64
	rowSpacing float64
	width      float64
	height     float64
}

func (v linearViewport) CanvasToWorld(x, y float64) [3]float64 {
	return [3]float64{x * v.mmPerPixel, y * v.mmPerPixel, 42}
}

func (v linearViewport) PixelSpacing() (float64, float64) {
	return v.rowSpacing, v.rowSpacing
}

func (v linearViewport) Contains(x, y float64) bool {
	return x >= 0 && y >= 0 && x < v.width && y < v.height
}

type staticViewports struct {
	vp  plugin.Viewport
	err error
}

func (s staticViewports) ActiveViewport() (plugin.Viewport, error) {
	return s.vp, s.err
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("canvas")
	require.NoError(t, err)
	assert.Equal(t, ModeCanvas, m)

	m, err = ParseMode("spacing")
	require.NoError(t, err)
	assert.Equal(t, ModeSpacing, m)

	_, err = ParseMode("bogus")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestCalculator_Canvas(t *testing.T) {
	tests := []struct {
		name       string
		mmPerPixel float64
		want       uint32
	}{
		// 100 px span 50 mm: 2 px/mm
		{"half millimetre pixels", 0.5, 2000},
		{"one millimetre pixels", 1, 1000},
		// 100 px span 30 mm: 3.333 px/mm, rounded up
		{"rounds up", 0.3, 3334},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := linearViewport{mmPerPixel: tt.mmPerPixel, width: 512, height: 512}
			c := New(ModeCanvas, staticViewports{vp: vp})

			m, err := c.Measure(10, 20)
			require.NoError(t, err)
			assert.Equal(t, uint32(1), m.InsideImageFrame)
			assert.Equal(t, tt.want, m.PixelMM)
		})
	}
}

func TestCalculator_Spacing(t *testing.T) {
	vp := linearViewport{rowSpacing: 0.7, width: 512, height: 512}
	c := New(ModeSpacing, staticViewports{vp: vp})

	m, err := c.Measure(10, 20)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.Ceil(1000/0.7)), m.PixelMM)
	assert.Equal(t, ModeSpacing, c.Mode())
}

func TestCalculator_OutsideImageFrame(t *testing.T) {
	vp := linearViewport{mmPerPixel: 1, width: 100, height: 100}
	c := New("", staticViewports{vp: vp})

	m, err := c.Measure(150, 20)
	require.NoError(t, err)
	assert.Zero(t, m.InsideImageFrame)
	assert.Equal(t, uint32(1000), m.PixelMM)
	assert.Equal(t, ModeCanvas, c.Mode())
}

func TestCalculator_Degenerate(t *testing.T) {
	t.Run("zero canvas distance", func(t *testing.T) {
		c := New(ModeCanvas, staticViewports{vp: linearViewport{mmPerPixel: 0}})
		_, err := c.Measure(0, 0)
		assert.True(t, errors.Is(err, errors.ErrDegenerateGeometry))
	})

	t.Run("zero spacing", func(t *testing.T) {
		c := New(ModeSpacing, staticViewports{vp: linearViewport{rowSpacing: 0}})
		_, err := c.Measure(0, 0)
		assert.True(t, errors.Is(err, errors.ErrDegenerateGeometry))
	})

	t.Run("NaN spacing", func(t *testing.T) {
		c := New(ModeSpacing, staticViewports{vp: linearViewport{rowSpacing: math.NaN()}})
		_, err := c.Measure(0, 0)
		assert.True(t, errors.Is(err, errors.ErrDegenerateGeometry))
	})

	t.Run("scale overflows", func(t *testing.T) {
		c := New(ModeCanvas, staticViewports{vp: linearViewport{mmPerPixel: 1e-12}})
		_, err := c.Measure(0, 0)
		assert.True(t, errors.Is(err, errors.ErrDegenerateGeometry))
	})
}

func TestCalculator_NoActiveViewport(t *testing.T) {
	c := New(ModeCanvas, staticViewports{err: errors.New("grid empty")})
	_, err := c.Measure(0, 0)
	assert.True(t, errors.Is(err, errors.ErrNoActiveViewport))
}
