package segmentation

import (
	"net"
	"strconv"
	"time"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/internal/httpclient"
	"github.com/teranos/lookbridge/plugin"
	"github.com/teranos/lookbridge/protocol"
	"github.com/teranos/lookbridge/supervisor"
)

// DefaultPort is where the segmentation server listens, for both its
// WebSocket and its HTTP endpoints
const DefaultPort = 9000

// Config is the resolved configuration of the extension
type Config struct {
	Host        string
	Port        int
	DialTimeout time.Duration
	Protocol    string

	// HTTPURL is the base of processSeries and downloadSegmentation.
	// Empty means http://<host>:<port>.
	HTTPURL string
	// HTTPTimeout bounds one HTTP request; processing a series is slow
	HTTPTimeout time.Duration

	NotificationDuration time.Duration

	Supervisor supervisor.Config
}

// DefaultConfig returns the segmentation server defaults. The server is only
// polled: it is never launched and takes no heartbeat.
func DefaultConfig() Config {
	sup := supervisor.DefaultConfig()
	sup.Escalate = false
	sup.Heartbeat = false
	return Config{
		Host:                 "localhost",
		Port:                 DefaultPort,
		Protocol:             "json",
		HTTPTimeout:          10 * time.Minute,
		NotificationDuration: 2 * time.Second,
		Supervisor:           sup,
	}
}

// BaseURL returns where the HTTP endpoints live
func (c Config) BaseURL() string {
	if c.HTTPURL != "" {
		return c.HTTPURL
	}
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Overlay applies the segmentation section on top of c
func (c Config) Overlay(section plugin.Config) (Config, error) {
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
		if section.IsSet("http_url") {
			c.HTTPURL = section.GetString("http_url")
		}
		if section.IsSet("http_timeout") {
			c.HTTPTimeout = section.GetDuration("http_timeout")
		}
		if section.IsSet("notification_duration") {
			c.NotificationDuration = section.GetDuration("notification_duration")
		}
		c.Supervisor = c.Supervisor.Overlay(section, "supervisor.")
	}
	return c, c.Validate()
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.NewInvalidRequestError("segmentation host is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewInvalidRequestError("segmentation port %d out of range", c.Port)
	}
	if _, err := protocol.ForVariant(c.Protocol); err != nil {
		return err
	}
	if c.HTTPTimeout <= 0 {
		return errors.NewInvalidRequestError("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	if _, err := httpclient.New(c.HTTPTimeout).ValidateURL(c.BaseURL()); err != nil {
		return errors.WithHint(errors.Wrap(err, "segmentation http_url"),
			"the segmentation server must run on this machine")
	}
	return errors.Wrap(c.Supervisor.Validate(), "segmentation supervisor")
}
