// Package segmentation integrates the local AI segmentation server.
//
// The server listens on localhost:9000. Its WebSocket pushes information,
// file and error events, which become notifications. Its HTTP endpoints
// segment a series and hand back the result, which is passed to the host's
// segmentation sink. Unlike DLPrecise the server is never launched from here.
package segmentation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/metrics"
	"github.com/teranos/lookbridge/plugin"
	"github.com/teranos/lookbridge/protocol"
	"github.com/teranos/lookbridge/supervisor"
	"github.com/teranos/lookbridge/transport"
	"github.com/teranos/lookbridge/version"
	"go.uber.org/zap"
)

// Name is the extension and configuration section name
const Name = "segmentation"

// NotificationTitle heads every notification of this extension
const NotificationTitle = "TotalSegmentator integration"

// Command names
const (
	CommandIsConnected    = "isSegmentationConnected"
	CommandSendToProcess  = "sendToProcess"
	CommandDownloadResult = "downloadResult"
	CommandRequestSeries  = "requestSeries"
	CommandStatus         = "segmentationStatus"
)

// Recorder receives everything the extension measures. metrics.Registry satisfies it.
type Recorder interface {
	supervisor.Recorder
	HTTPRecorder
	FrameDecoded(extension, codec, kind string)
	DecodeFailed(extension, codec string)
}

// Option customizes an Extension
type Option func(*Extension)

// WithConfig uses cfg instead of reading the host configuration
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.fixed = &cfg }
}

// WithDialer replaces the WebSocket dialer
func WithDialer(d transport.Dialer) Option {
	return func(e *Extension) { e.dialer = d }
}

// WithRecorder replaces the process-wide metrics registry
func WithRecorder(r Recorder) Option {
	return func(e *Extension) { e.rec = r }
}

// Extension implements plugin.Extension for the segmentation server
type Extension struct {
	fixed  *Config
	dialer transport.Dialer
	rec    Recorder

	cfg        Config
	services   plugin.HostServices
	loop       plugin.Loop
	logger     *zap.SugaredLogger
	codec      protocol.Codec
	client     *transport.Client
	supervisor *supervisor.Supervisor
	processor  *Processor

	// Jobs run HTTP requests off the loop and post their result back
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
	inflight   int

	connected   atomic.Bool
	initialized bool
}

// New creates the extension
func New(opts ...Option) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	if e.rec == nil {
		e.rec = metrics.Get()
	}
	return e
}

// Metadata implements plugin.Extension
func (e *Extension) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        Name,
		Version:     version.APIVersion,
		HostVersion: ">= 1.0.0",
		Description: "AI segmentation server notifications and results",
		Author:      "lookbridge",
	}
}

// Initialize resolves the configuration, builds the connection and starts polling it
func (e *Extension) Initialize(ctx context.Context, services plugin.HostServices) error {
	cfg := DefaultConfig()
	if e.fixed != nil {
		cfg = *e.fixed
		if err := cfg.Validate(); err != nil {
			return err
		}
	} else {
		var err error
		if cfg, err = cfg.Overlay(services.Config(Name)); err != nil {
			return err
		}
	}

	codec, err := protocol.ForVariant(cfg.Protocol)
	if err != nil {
		return err
	}

	e.cfg = cfg
	e.services = services
	e.loop = services.Loop()
	e.logger = services.Logger(Name)
	e.codec = codec

	e.processor, err = NewProcessor(cfg.BaseURL(), cfg.HTTPTimeout, e.rec, e.logger.Named("http"))
	if err != nil {
		return err
	}

	e.client = transport.NewClient(transport.Config{
		Name:        "AI Server",
		Host:        cfg.Host,
		Port:        cfg.Port,
		DialTimeout: cfg.DialTimeout,
	}, e.dialer, e.loop, transport.Handlers{
		OnOpen:    func() { e.connected.Store(true) },
		OnError:   e.onError,
		OnClose:   func(transport.DisconnectKind) { e.connected.Store(false) },
		OnMessage: e.onMessage,
		OnStatus:  e.notify,
	}, e.logger.Named("transport"))

	e.supervisor = supervisor.New(Name, cfg.Supervisor, e.client, nil, e.loop, e.rec, e.logger.Named("supervisor"))
	e.jobCtx, e.cancelJobs = context.WithCancel(context.Background())

	err = e.loop.Call(ctx, func() {
		e.supervisor.Start()
		e.initialized = true
	})
	if err != nil {
		e.cancelJobs()
		return errors.Wrap(err, "failed to start segmentation supervisor")
	}

	e.logger.Infow("Segmentation extension initialized",
		logger.FieldEndpoint, e.client.URL(),
		logger.FieldURL, cfg.BaseURL(),
		logger.FieldCodec, codec.Name(),
	)
	return nil
}

// Shutdown closes the socket, stops polling and waits for running jobs to
// notice their cancellation
func (e *Extension) Shutdown(ctx context.Context) error {
	if e.loop == nil {
		return nil
	}
	err := e.loop.Call(ctx, func() {
		if !e.initialized {
			return
		}
		e.cancelJobs()
		// Closed first so the supervisor has nothing to send on the way out
		e.client.Close()
		e.supervisor.Stop()
		e.connected.Store(false)
		e.initialized = false
	})
	if err != nil {
		return errors.Wrap(err, "segmentation shutdown did not run")
	}
	e.jobs.Wait()
	e.logger.Infow("Segmentation extension shut down")
	return nil
}

// Health implements plugin.Extension
func (e *Extension) Health(ctx context.Context) plugin.HealthStatus {
	connected := e.connected.Load()
	status := plugin.HealthStatus{
		Healthy: true,
		Message: "AI Server not connected",
		Details: map[string]interface{}{
			"connected": connected,
			"http_url":  e.cfg.BaseURL(),
		},
	}
	if e.client != nil {
		status.Details["endpoint"] = e.client.URL()
	}
	if connected {
		status.Message = "AI Server connected"
	}
	return status
}

// Reconfigure applies a new polling policy without reconnecting
func (e *Extension) Reconfigure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.loop.Call(ctx, func() {
		e.cfg.Supervisor = cfg.Supervisor
		e.cfg.NotificationDuration = cfg.NotificationDuration
		e.supervisor.Reconfigure(cfg.Supervisor)
	})
}

func (e *Extension) onError(err error) {
	e.connected.Store(false)
	e.logger.Debugw("AI Server transport error", logger.FieldError, err)
}

func (e *Extension) notify(isInfo bool, message string) {
	kind := plugin.NotificationError
	if isInfo {
		kind = plugin.NotificationInfo
	}
	e.services.Notifications().Show(plugin.Notification{
		Title:    NotificationTitle,
		Message:  message,
		Type:     kind,
		Duration: e.cfg.NotificationDuration,
	})
}
