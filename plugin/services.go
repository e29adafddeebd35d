package plugin

import (
	"context"
	"time"

	"github.com/teranos/lookbridge/eventloop"
	"go.uber.org/zap"
)

// HostServices provides access to host collaborators for extensions.
// Extensions use it to look up the services they need.
type HostServices interface {
	// Logger returns a logger for this extension
	Logger(domain string) *zap.SugaredLogger

	// Config returns extension-specific configuration
	Config(domain string) Config

	// Loop returns the event loop that owns all extension state
	Loop() Loop

	// Notifications shows user-facing status messages
	Notifications() NotificationService

	// Viewports exposes the active viewport geometry
	Viewports() ViewportService

	// ToolGroups exposes the pointer tools bound in each tool group
	ToolGroups() ToolGroupService

	// Events is the host event bus
	Events() EventBus

	// Studies describes the study on display and its DICOMweb source
	Studies() StudyService

	// Segmentations accepts segmentation results produced by a companion
	Segmentations() SegmentationSink
}

// Loop posts work to the host's event loop and schedules timers on it.
// *eventloop.Loop satisfies it.
type Loop interface {
	eventloop.Scheduler
	Post(fn func()) bool
	Call(ctx context.Context, fn func()) error
}

// Config provides access to extension configuration
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
}

// NotificationType is the severity shown by the host
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is one user-facing message
type Notification struct {
	Title    string
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// NotificationService shows notifications
type NotificationService interface {
	Show(n Notification)
}

// Viewport is the geometry of one displayed image
type Viewport interface {
	// CanvasToWorld maps a canvas position to patient space in millimetres
	CanvasToWorld(x, y float64) [3]float64

	// PixelSpacing returns the row and column spacing of the displayed image in mm
	PixelSpacing() (row, col float64)

	// Contains reports whether a canvas position lies inside the image frame
	Contains(x, y float64) bool
}

// ViewportService resolves the active viewport
type ViewportService interface {
	ActiveViewport() (Viewport, error)
}

// MouseButton uses the host's bitmask values
type MouseButton int

const (
	MouseButtonPrimary   MouseButton = 1
	MouseButtonSecondary MouseButton = 2
	MouseButtonAuxiliary MouseButton = 4
)

// Binding attaches a tool to an input
type Binding struct {
	MouseButton MouseButton
}

// ToolGroup is the set of tools bound to a group of viewports
type ToolGroup interface {
	ID() string

	// ActivePrimaryTool returns the tool bound to the primary button, or ""
	ActivePrimaryTool() string

	SetToolDisabled(name string) error

	// SetToolActive activates name. Without bindings the tool keeps whatever
	// binding the host gives it by default.
	SetToolActive(name string, bindings ...Binding) error
}

// ToolGroupService resolves tool groups
type ToolGroupService interface {
	// ActiveToolGroup returns the group of the active viewport
	ActiveToolGroup() (ToolGroup, error)

	// ToolGroup looks a group up by id
	ToolGroup(id string) (ToolGroup, bool)
}

// TopicCameraModified is published whenever the active viewport pans, zooms or scrolls
const TopicCameraModified = "CAMERA_MODIFIED"

// EventBus is the host's publish/subscribe channel
type EventBus interface {
	// Subscribe registers fn for topic. Handlers run on the event loop.
	Subscribe(topic string, fn func(payload interface{})) (unsubscribe func())
	Publish(topic string, payload interface{})
}

// SeriesRef identifies one series in a study
type SeriesRef struct {
	StudyUID  string
	SeriesUID string
}

// StudyService describes what is on display
type StudyService interface {
	// WadoRoot returns the DICOMweb root of the active data source
	WadoRoot() string

	// ActiveSeries returns the series shown in the active viewport
	ActiveSeries() (SeriesRef, error)
}

// SegmentationSink receives segmentation objects produced by a companion
type SegmentationSink interface {
	LoadSegmentation(ctx context.Context, ref SeriesRef, data []byte) error
}
