package deeplook

import (
	"time"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/geometry"
	"github.com/teranos/lookbridge/handoff"
	"github.com/teranos/lookbridge/launcher"
	"github.com/teranos/lookbridge/plugin"
	"github.com/teranos/lookbridge/protocol"
	"github.com/teranos/lookbridge/supervisor"
)

// DefaultPort is where DLPrecise listens
const DefaultPort = 44458

// Config is the resolved configuration of the extension
type Config struct {
	Host        string
	Port        int
	DialTimeout time.Duration

	// Protocol is the wire variant; DLPrecise speaks "tag"
	Protocol string
	Geometry geometry.Mode

	// NotificationDuration is how long status notifications stay up
	NotificationDuration time.Duration

	Supervisor supervisor.Config
	Handoff    handoff.Config
	Launcher   launcher.Config
}

// DefaultConfig returns the DLPrecise defaults
func DefaultConfig() Config {
	return Config{
		Host:                 "localhost",
		Port:                 DefaultPort,
		Protocol:             "tag",
		Geometry:             geometry.ModeCanvas,
		NotificationDuration: 2 * time.Second,
		Supervisor:           supervisor.DefaultConfig(),
		Handoff:              handoff.DefaultConfig(),
		Launcher:             launcher.DefaultConfig(),
	}
}

// Overlay applies the deeplook and launcher sections on top of c
func (c Config) Overlay(section, launcherSection plugin.Config) (Config, error) {
	if section != nil {
		if section.IsSet("host") {
			c.Host = section.GetString("host")
		}
		if section.IsSet("port") {
			c.Port = section.GetInt("port")
		}
		if section.IsSet("dial_timeout") {
			c.DialTimeout = section.GetDuration("dial_timeout")
		}
		if section.IsSet("protocol") {
			c.Protocol = section.GetString("protocol")
		}
		if section.IsSet("geometry_mode") {
			mode, err := geometry.ParseMode(section.GetString("geometry_mode"))
			if err != nil {
				return c, err
			}
			c.Geometry = mode
		}
		if section.IsSet("notification_duration") {
			c.NotificationDuration = section.GetDuration("notification_duration")
		}
		c.Supervisor = c.Supervisor.Overlay(section, "supervisor.")
		c.Handoff = c.Handoff.Overlay(section, "handoff.")
	}
	if launcherSection != nil {
		c.Launcher = c.Launcher.Overlay(launcherSection)
	}
	return c, c.Validate()
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.NewInvalidRequestError("deeplook host is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewInvalidRequestError("deeplook port %d out of range", c.Port)
	}
	if _, err := protocol.ForVariant(c.Protocol); err != nil {
		return err
	}
	if _, err := geometry.ParseMode(string(c.Geometry)); err != nil {
		return err
	}
	if c.Handoff.ResetOnCameraChange && c.Handoff.ResetDebounce < 0 {
		return errors.NewInvalidRequestError("reset debounce must not be negative")
	}
	return errors.Wrap(c.Supervisor.Validate(), "deeplook supervisor")
}
