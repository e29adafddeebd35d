// Package host is a headless implementation of plugin.HostServices.
//
// It stands in for the viewer so the companion extensions can run as a
// standalone bridge process from the CLI, and it backs the end-to-end tests:
// one static viewport, in-memory tool groups, a topic event bus, a static
// study and a segmentation store. Notifications are logged and rate limited.
package host

import (
	"github.com/spf13/viper"
	"github.com/teranos/lookbridge/eventloop"
	"github.com/teranos/lookbridge/plugin"
	"go.uber.org/zap"
)

// Config describes the simulated viewer
type Config struct {
	Viewport ViewportConfig
	Study    StudyConfig
	Notify   NotifyConfig

	// ToolGroupID names the single tool group
	ToolGroupID string
	// Tools are registered in the group; PrimaryTool starts on the primary button
	Tools       []string
	PrimaryTool string

	// SegmentationDir receives segmentation results; empty keeps them in memory
	SegmentationDir string
}

// DefaultConfig mirrors a default viewer layout
func DefaultConfig() Config {
	return Config{
		Viewport:    DefaultViewportConfig(),
		Notify:      DefaultNotifyConfig(),
		ToolGroupID: "default",
		Tools:       []string{"WindowLevel", "Pan", "Zoom", "Length"},
		PrimaryTool: "WindowLevel",
	}
}

// Host implements plugin.HostServices
type Host struct {
	loop   *eventloop.Loop
	viper  *viper.Viper
	logger *zap.SugaredLogger

	notifier      *Notifier
	viewports     *Viewports
	toolGroups    *ToolGroups
	group         *ToolGroup
	bus           *Bus
	studies       *Studies
	segmentations *SegmentationStore
}

// New builds the host. v supplies per-extension configuration and may be nil.
// rec may be nil.
func New(cfg Config, v *viper.Viper, loop *eventloop.Loop, rec NotifyRecorder, log *zap.SugaredLogger) (*Host, error) {
	if cfg.ToolGroupID == "" {
		cfg.ToolGroupID = "default"
	}
	group := NewToolGroup(cfg.ToolGroupID, cfg.Tools...)
	if cfg.PrimaryTool != "" {
		if err := group.SetToolActive(cfg.PrimaryTool, plugin.Binding{MouseButton: plugin.MouseButtonPrimary}); err != nil {
			return nil, err
		}
	}

	h := &Host{
		loop:          loop,
		viper:         v,
		logger:        log,
		notifier:      NewNotifier(cfg.Notify, rec, log.Named("notify")),
		viewports:     NewViewports(NewStaticViewport(cfg.Viewport)),
		toolGroups:    NewToolGroups(group),
		group:         group,
		bus:           NewBus(loop),
		studies:       NewStudies(cfg.Study),
		segmentations: NewSegmentationStore(cfg.SegmentationDir, log.Named("segmentations")),
	}
	log.Debugw("Headless host ready",
		"tool_group", cfg.ToolGroupID,
		"primary_tool", cfg.PrimaryTool,
		"canvas_width", cfg.Viewport.Width,
		"canvas_height", cfg.Viewport.Height,
	)
	return h, nil
}

func (h *Host) Logger(domain string) *zap.SugaredLogger {
	return h.logger.Named(domain)
}

func (h *Host) Config(domain string) plugin.Config {
	return newSectionConfig(h.viper, domain)
}

func (h *Host) Loop() plugin.Loop { return h.loop }

func (h *Host) Notifications() plugin.NotificationService { return h.notifier }

func (h *Host) Viewports() plugin.ViewportService { return h.viewports }

func (h *Host) ToolGroups() plugin.ToolGroupService { return h.toolGroups }

func (h *Host) Events() plugin.EventBus { return h.bus }

func (h *Host) Studies() plugin.StudyService { return h.studies }

func (h *Host) Segmentations() plugin.SegmentationSink { return h.segmentations }

// Notifier returns the concrete notifier so callers can render or inspect notifications
func (h *Host) Notifier() *Notifier { return h.notifier }

// ToolGroup returns the host's single tool group
func (h *Host) ToolGroup() *ToolGroup { return h.group }

// Bus returns the concrete event bus
func (h *Host) Bus() *Bus { return h.bus }

// SegmentationStore returns the concrete segmentation sink
func (h *Host) SegmentationStore() *SegmentationStore { return h.segmentations }

// CameraModified publishes a camera change, as the viewer does on pan or zoom
func (h *Host) CameraModified() {
	h.bus.Publish(plugin.TopicCameraModified, nil)
}
