package am

import (
	"net"

	"github.com/teranos/lookbridge/errors"
)

// Validate checks that the configuration is valid. Extension sections are
// checked by converting them, so the rules live with the extensions.
func (c *Config) Validate() error {
	if c.DeepLook.Enabled {
		dl, err := c.ToDeepLook()
		if err != nil {
			return errors.Wrap(err, "deeplook")
		}
		if err := dl.Validate(); err != nil {
			return errors.Wrap(err, "deeplook")
		}
	}
	if c.Segmentation.Enabled {
		if err := c.ToSegmentation().Validate(); err != nil {
			return errors.Wrap(err, "segmentation")
		}
	}

	// Notify: 0 per minute = unlimited, negative = invalid
	if c.Notify.PerMinute < 0 {
		return errors.Newf("notify.per_minute must be >= 0, got %d", c.Notify.PerMinute)
	}
	if c.Notify.PerMinute > 0 && c.Notify.Burst < 1 {
		return errors.Newf("notify.burst must be >= 1 when rate limiting, got %d", c.Notify.Burst)
	}
	if c.Notify.History < 0 {
		return errors.Newf("notify.history must be >= 0, got %d", c.Notify.History)
	}

	vp := c.Host.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		return errors.Newf("host.viewport must have a positive size, got %gx%g", vp.Width, vp.Height)
	}
	if vp.MMPerPixel <= 0 {
		return errors.Newf("host.viewport.mm_per_pixel must be > 0, got %g", vp.MMPerPixel)
	}
	if c.Host.PrimaryTool != "" && !contains(c.Host.Tools, c.Host.PrimaryTool) {
		return errors.Newf("host.primary_tool %q is not in host.tools", c.Host.PrimaryTool)
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return errors.Wrapf(err, "metrics.addr %q", c.Metrics.Addr)
		}
	}
	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
