package host

import (
	"sync"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/plugin"
)

// ViewportConfig describes the single headless viewport
type ViewportConfig struct {
	Width  float64
	Height float64
	// MMPerPixel is the world distance one canvas pixel spans
	MMPerPixel float64
	// RowSpacing and ColumnSpacing are the image pixel spacing in mm
	RowSpacing    float64
	ColumnSpacing float64
}

// DefaultViewportConfig is a 512x512 canvas showing 0.5 mm pixels
func DefaultViewportConfig() ViewportConfig {
	return ViewportConfig{
		Width:         512,
		Height:        512,
		MMPerPixel:    0.5,
		RowSpacing:    0.5,
		ColumnSpacing: 0.5,
	}
}

// StaticViewport maps canvas pixels linearly to world space
type StaticViewport struct {
	cfg ViewportConfig
}

// NewStaticViewport creates a viewport from cfg
func NewStaticViewport(cfg ViewportConfig) *StaticViewport {
	return &StaticViewport{cfg: cfg}
}

func (v *StaticViewport) CanvasToWorld(x, y float64) [3]float64 {
	return [3]float64{x * v.cfg.MMPerPixel, y * v.cfg.MMPerPixel, 0}
}

func (v *StaticViewport) PixelSpacing() (float64, float64) {
	return v.cfg.RowSpacing, v.cfg.ColumnSpacing
}

func (v *StaticViewport) Contains(x, y float64) bool {
	return x >= 0 && y >= 0 && x < v.cfg.Width && y < v.cfg.Height
}

// Viewports holds the active viewport, if any
type Viewports struct {
	mu     sync.RWMutex
	active plugin.Viewport
}

// NewViewports creates the service with vp active. vp may be nil.
func NewViewports(vp plugin.Viewport) *Viewports {
	return &Viewports{active: vp}
}

// SetActive replaces the active viewport. nil clears it.
func (s *Viewports) SetActive(vp plugin.Viewport) {
	s.mu.Lock()
	s.active = vp
	s.mu.Unlock()
}

// ActiveViewport implements plugin.ViewportService
func (s *Viewports) ActiveViewport() (plugin.Viewport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, errors.ErrNoActiveViewport
	}
	return s.active, nil
}
