// Package httpclient provides an HTTP client that only talks to the local machine.
//
// Companion processes expose their HTTP endpoints on loopback. The client
// refuses any other destination, both when validating the URL and again at
// dial time, so a hostname that resolves elsewhere (DNS rebinding) or a
// redirect to a remote host cannot leak study identifiers off the machine.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/lookbridge/errors"
)

// LoopbackClient wraps http.Client with loopback-only destination checks
type LoopbackClient struct {
	*http.Client
	allowedSchemes []string
	maxRedirects   int
}

// Options customizes a LoopbackClient
type Options struct {
	AllowedSchemes []string // Default: ["http", "https"]
	MaxRedirects   *int     // Default: 10
}

// New creates a loopback-only client with default options
func New(timeout time.Duration) *LoopbackClient {
	return NewWithOptions(timeout, Options{})
}

// NewWithOptions creates a loopback-only client
func NewWithOptions(timeout time.Duration, opts Options) *LoopbackClient {
	maxRedirects := 10
	if opts.MaxRedirects != nil {
		maxRedirects = *opts.MaxRedirects
	}

	allowedSchemes := []string{"http", "https"}
	if opts.AllowedSchemes != nil {
		allowedSchemes = opts.AllowedSchemes
	}

	client := &LoopbackClient{
		Client: &http.Client{
			Timeout: timeout,
		},
		allowedSchemes: allowedSchemes,
		maxRedirects:   maxRedirects,
	}

	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= client.maxRedirects {
			return errors.Newf("stopped after %d redirects", client.maxRedirects)
		}
		if err := client.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "invalid address")
			}

			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve host %q", host)
			}
			for _, ip := range ips {
				if !ip.IsLoopback() {
					return nil, errors.Wrapf(errors.ErrNotLoopback, "%s resolves to %s", host, ip)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return client
}

// validateURL checks scheme and host before a request is made
func (c *LoopbackClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}

	// http://localhost@evil.example/ would otherwise pass the host check below
	if u.User != nil {
		return errors.New("URL contains user info")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if !IsLoopbackHost(hostname) {
		return errors.Wrapf(errors.ErrNotLoopback, "%s", hostname)
	}
	return nil
}

// ValidateURL parses and validates a URL string
func (c *LoopbackClient) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// IsLoopbackHost reports whether hostname names this machine: localhost
// variants or a literal loopback IP
func IsLoopbackHost(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	if hostname == "localhost" || hostname == "localhost.localdomain" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// Do executes a request after validating its destination.
// For POST requests, use http.NewRequestWithContext() then call Do().
func (c *LoopbackClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return c.Client.Do(req)
}

// Get is a convenience wrapper for http.Get with destination checks
func (c *LoopbackClient) Get(urlStr string) (*http.Response, error) {
	if _, err := c.ValidateURL(urlStr); err != nil {
		return nil, err
	}
	return c.Client.Get(urlStr)
}
