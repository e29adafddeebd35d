// Package am loads the lookbridge configuration.
//
// Files are merged in precedence order (lowest first):
//
//	/etc/lookbridge/am.toml
//	~/.lookbridge/am.toml
//	am.toml found walking up from the working directory
//	LOOKBRIDGE_* environment variables
//
// Every key has a built-in default taken from the package that consumes it,
// so an empty configuration is a working one.
package am

import "time"

// Config represents the lookbridge configuration
type Config struct {
	DeepLook     DeepLookConfig     `mapstructure:"deeplook"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	Launcher     LauncherConfig     `mapstructure:"launcher"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Host         HostConfig         `mapstructure:"host"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Log          LogConfig          `mapstructure:"log"`
}

// SupervisorConfig configures polling, escalation and heartbeat of one companion
type SupervisorConfig struct {
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	NumberOfTries     int           `mapstructure:"number_of_tries"`  // failed polls before escalating
	EscalationGrace   time.Duration `mapstructure:"escalation_grace"` // wait after launch before the installer
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Heartbeat         bool          `mapstructure:"heartbeat"`
	Escalate          bool          `mapstructure:"escalate"`
}

// HandoffConfig configures the pointer-control handoff
type HandoffConfig struct {
	ResetOnCameraChange bool          `mapstructure:"reset_on_camera_change"`
	ResetDebounce       time.Duration `mapstructure:"reset_debounce"`
}

// DeepLookConfig configures the DLPrecise integration
type DeepLookConfig struct {
	Enabled              bool             `mapstructure:"enabled"`
	Host                 string           `mapstructure:"host"`
	Port                 int              `mapstructure:"port"`
	DialTimeout          time.Duration    `mapstructure:"dial_timeout"` // 0 = transport default
	Protocol             string           `mapstructure:"protocol"`     // tag or json
	GeometryMode         string           `mapstructure:"geometry_mode"`
	NotificationDuration time.Duration    `mapstructure:"notification_duration"`
	Supervisor           SupervisorConfig `mapstructure:"supervisor"`
	Handoff              HandoffConfig    `mapstructure:"handoff"`
}

// SegmentationConfig configures the AI segmentation server integration
type SegmentationConfig struct {
	Enabled              bool             `mapstructure:"enabled"`
	Host                 string           `mapstructure:"host"`
	Port                 int              `mapstructure:"port"`
	DialTimeout          time.Duration    `mapstructure:"dial_timeout"`
	Protocol             string           `mapstructure:"protocol"`
	HTTPURL              string           `mapstructure:"http_url"` // empty = http://<host>:<port>
	HTTPTimeout          time.Duration    `mapstructure:"http_timeout"`
	NotificationDuration time.Duration    `mapstructure:"notification_duration"`
	Supervisor           SupervisorConfig `mapstructure:"supervisor"`
}

// LauncherConfig configures how DLPrecise is started out of band
type LauncherConfig struct {
	LaunchURL     string `mapstructure:"launch_url"`
	StopURL       string `mapstructure:"stop_url"`
	InstallerURL  string `mapstructure:"installer_url"`
	ProcessName   string `mapstructure:"process_name"`
	OpenerCommand string `mapstructure:"opener_command"` // empty = platform default (open, xdg-open, start)
}

// NotifyConfig rate limits user notifications per title
type NotifyConfig struct {
	PerMinute int `mapstructure:"per_minute"` // 0 = unlimited
	Burst     int `mapstructure:"burst"`
	History   int `mapstructure:"history"`
}

// ViewportConfig describes the simulated viewport
type ViewportConfig struct {
	Width         float64 `mapstructure:"width"`
	Height        float64 `mapstructure:"height"`
	MMPerPixel    float64 `mapstructure:"mm_per_pixel"`
	RowSpacing    float64 `mapstructure:"row_spacing"`
	ColumnSpacing float64 `mapstructure:"column_spacing"`
}

// StudyConfig names the study the headless host displays
type StudyConfig struct {
	WadoRoot  string `mapstructure:"wado_root"`
	StudyUID  string `mapstructure:"study_uid"`
	SeriesUID string `mapstructure:"series_uid"`
}

// HostConfig configures the headless viewer
type HostConfig struct {
	ToolGroupID     string         `mapstructure:"tool_group_id"`
	Tools           []string       `mapstructure:"tools"`
	PrimaryTool     string         `mapstructure:"primary_tool"`
	SegmentationDir string         `mapstructure:"segmentation_dir"` // empty = keep results in memory
	Viewport        ViewportConfig `mapstructure:"viewport"`
	Study           StudyConfig    `mapstructure:"study"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty = disabled
	Path string `mapstructure:"path"`
}

// LogConfig configures logging
type LogConfig struct {
	JSON      bool `mapstructure:"json"`
	Verbosity int  `mapstructure:"verbosity"` // 0 warn, 1 info, 2 debug, 3+ frames
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Config locations
const (
	ConfigFileName = "am.toml"
	SystemConfig   = "/etc/lookbridge/am.toml"
	UserConfigDir  = ".lookbridge"
	EnvPrefix      = "LOOKBRIDGE"
)
