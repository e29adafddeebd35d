// Package deeplook integrates the DLPrecise companion application.
//
// DLPrecise listens on ws://localhost:44458 and drives the viewer with
// tag-delimited commands: it asks for the screen scale at a cursor position
// and takes or returns pointer control ("mass view"). The extension keeps
// the connection alive, launches DLPrecise when it is missing, answers
// queries from the active viewport and hands the primary mouse tool back and
// forth.
package deeplook

import (
	"context"
	"sync/atomic"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/geometry"
	"github.com/teranos/lookbridge/handoff"
	"github.com/teranos/lookbridge/launcher"
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
const Name = "deeplook"

// NotificationTitle heads every status notification
const NotificationTitle = "DeepLook integration"

// Command names
const (
	CommandIsConnected = "isDeepLookConnected"
	CommandCloseURL    = "closeDeepLookURL"
	CommandLaunch      = "launchDeepLook"
	CommandReset       = "resetDeepLook"
	CommandClose       = "closeDeepLook"
	CommandHeartbeat   = "heartbeatDeepLook"
	CommandStatus      = "deepLookStatus"
)

// Recorder receives everything the extension measures. metrics.Registry satisfies it.
type Recorder interface {
	supervisor.Recorder
	handoff.Recorder
	FrameDecoded(extension, codec, kind string)
	DecodeFailed(extension, codec string)
	ReplySent(extension, kind string)
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

// WithOpener replaces the URL opener used to launch DLPrecise
func WithOpener(o launcher.Opener) Option {
	return func(e *Extension) { e.opener = o }
}

// WithProcessLister replaces the process listing used to detect a running DLPrecise
func WithProcessLister(fn func() ([]string, error)) Option {
	return func(e *Extension) { e.listProcesses = fn }
}

// WithRecorder replaces the process-wide metrics registry
func WithRecorder(r Recorder) Option {
	return func(e *Extension) { e.rec = r }
}

// Extension implements plugin.Extension for DLPrecise
type Extension struct {
	fixed         *Config
	dialer        transport.Dialer
	opener        launcher.Opener
	listProcesses func() ([]string, error)
	rec           Recorder

	// Set by Initialize, then only touched on the loop
	cfg         Config
	services    plugin.HostServices
	loop        plugin.Loop
	logger      *zap.SugaredLogger
	codec       protocol.Codec
	client      *transport.Client
	supervisor  *supervisor.Supervisor
	launcher    *launcher.Launcher
	handoff     *handoff.Coordinator
	measurer    geometry.Measurer
	unsubscribe func()

	// connected mirrors client.IsConnected for Health, which runs off-loop
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
		Description: "DLPrecise measurement and mass view integration",
		Author:      "lookbridge",
	}
}

// Initialize resolves the configuration, builds the connection stack and
// starts supervising it
func (e *Extension) Initialize(ctx context.Context, services plugin.HostServices) error {
	cfg := DefaultConfig()
	if e.fixed != nil {
		cfg = *e.fixed
		if err := cfg.Validate(); err != nil {
			return err
		}
	} else {
		var err error
		if cfg, err = cfg.Overlay(services.Config(Name), services.Config("launcher")); err != nil {
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

	e.client = transport.NewClient(transport.Config{
		Name:        "DeepLook",
		Host:        cfg.Host,
		Port:        cfg.Port,
		DialTimeout: cfg.DialTimeout,
	}, e.dialer, e.loop, transport.Handlers{
		OnOpen:    e.onOpen,
		OnError:   e.onError,
		OnClose:   e.onClose,
		OnMessage: e.onMessage,
		OnStatus:  e.notify,
	}, e.logger.Named("transport"))

	e.launcher = launcher.New(cfg.Launcher, e.opener, e.logger.Named("launcher"))
	if e.listProcesses != nil {
		e.launcher.ListProcesses = e.listProcesses
	}

	e.supervisor = supervisor.New(Name, cfg.Supervisor, e.client, e.launcher, e.loop, e.rec, e.logger.Named("supervisor"))
	e.handoff = handoff.New(Name, cfg.Handoff, services.ToolGroups(), e.client, e.loop, e.rec, e.logger.Named("handoff"))
	e.measurer = geometry.New(cfg.Geometry, services.Viewports())

	err = e.loop.Call(ctx, func() {
		e.supervisor.Start()
		e.unsubscribe = services.Events().Subscribe(plugin.TopicCameraModified, func(interface{}) {
			e.handoff.CameraModified()
		})
		e.initialized = true
	})
	if err != nil {
		return errors.Wrap(err, "failed to start deeplook supervisor")
	}

	e.logger.Infow("DeepLook extension initialized",
		logger.FieldEndpoint, e.client.URL(),
		logger.FieldCodec, codec.Name(),
		"geometry", string(cfg.Geometry),
	)
	return nil
}

// Shutdown sends Close to DLPrecise if connected and cancels every timer
func (e *Extension) Shutdown(ctx context.Context) error {
	if e.loop == nil {
		return nil
	}
	err := e.loop.Call(ctx, func() {
		if !e.initialized {
			return
		}
		if e.unsubscribe != nil {
			e.unsubscribe()
			e.unsubscribe = nil
		}
		e.handoff.Stop()
		e.supervisor.Stop()
		e.client.Close()
		e.initialized = false
	})
	if err != nil {
		return errors.Wrap(err, "deeplook shutdown did not run")
	}
	e.logger.Infow("DeepLook extension shut down")
	return nil
}

// Health implements plugin.Extension
func (e *Extension) Health(ctx context.Context) plugin.HealthStatus {
	connected := e.connected.Load()
	status := plugin.HealthStatus{
		Healthy: true,
		Message: "DLPrecise not connected",
		Details: map[string]interface{}{
			"connected": connected,
		},
	}
	if e.client != nil {
		status.Details["endpoint"] = e.client.URL()
	}
	if connected {
		status.Message = "DLPrecise connected"
	}
	return status
}

// Reconfigure applies new supervisor and handoff policies without reconnecting
func (e *Extension) Reconfigure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.loop.Call(ctx, func() {
		e.cfg.Supervisor = cfg.Supervisor
		e.cfg.Handoff = cfg.Handoff
		e.cfg.NotificationDuration = cfg.NotificationDuration
		e.supervisor.Reconfigure(cfg.Supervisor)
		e.handoff.Reconfigure(cfg.Handoff)
	})
}

func (e *Extension) onOpen() {
	e.connected.Store(true)
}

func (e *Extension) onError(err error) {
	e.connected.Store(false)
	e.logger.Debugw("DeepLook transport error", logger.FieldError, err)
	e.release()
}

func (e *Extension) onClose(kind transport.DisconnectKind) {
	e.connected.Store(false)
	e.release()
}

func (e *Extension) release() {
	if err := e.handoff.Release(); err != nil {
		e.logger.Warnw("Failed to restore viewer tool", logger.FieldError, err)
	}
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
