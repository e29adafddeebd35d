package am

import (
	"github.com/spf13/viper"
	"github.com/teranos/lookbridge/deeplook"
	"github.com/teranos/lookbridge/handoff"
	"github.com/teranos/lookbridge/host"
	"github.com/teranos/lookbridge/launcher"
	"github.com/teranos/lookbridge/segmentation"
	"github.com/teranos/lookbridge/supervisor"
)

// DefaultMetricsPath is where the Prometheus handler is mounted
const DefaultMetricsPath = "/metrics"

// SetDefaults configures default values for all configuration options.
// Values come from the packages that consume them.
func SetDefaults(v *viper.Viper) {
	dl := deeplook.DefaultConfig()
	v.SetDefault("deeplook.enabled", true)
	v.SetDefault("deeplook.host", dl.Host)
	v.SetDefault("deeplook.port", dl.Port)
	v.SetDefault("deeplook.dial_timeout", dl.DialTimeout)
	v.SetDefault("deeplook.protocol", dl.Protocol)
	v.SetDefault("deeplook.geometry_mode", string(dl.Geometry))
	v.SetDefault("deeplook.notification_duration", dl.NotificationDuration)
	setSupervisorDefaults(v, "deeplook.supervisor.", dl.Supervisor)
	setHandoffDefaults(v, "deeplook.handoff.", dl.Handoff)

	seg := segmentation.DefaultConfig()
	v.SetDefault("segmentation.enabled", true)
	v.SetDefault("segmentation.host", seg.Host)
	v.SetDefault("segmentation.port", seg.Port)
	v.SetDefault("segmentation.dial_timeout", seg.DialTimeout)
	v.SetDefault("segmentation.protocol", seg.Protocol)
	v.SetDefault("segmentation.http_url", seg.HTTPURL)
	v.SetDefault("segmentation.http_timeout", seg.HTTPTimeout)
	v.SetDefault("segmentation.notification_duration", seg.NotificationDuration)
	setSupervisorDefaults(v, "segmentation.supervisor.", seg.Supervisor)

	l := launcher.DefaultConfig()
	v.SetDefault("launcher.launch_url", l.LaunchURL)
	v.SetDefault("launcher.stop_url", l.StopURL)
	v.SetDefault("launcher.installer_url", l.InstallerURL)
	v.SetDefault("launcher.process_name", l.ProcessName)
	v.SetDefault("launcher.opener_command", l.OpenerCommand)

	n := host.DefaultNotifyConfig()
	v.SetDefault("notify.per_minute", n.PerMinute)
	v.SetDefault("notify.burst", n.Burst)
	v.SetDefault("notify.history", n.History)

	h := host.DefaultConfig()
	v.SetDefault("host.tool_group_id", h.ToolGroupID)
	v.SetDefault("host.tools", h.Tools)
	v.SetDefault("host.primary_tool", h.PrimaryTool)
	v.SetDefault("host.segmentation_dir", "")
	v.SetDefault("host.viewport.width", h.Viewport.Width)
	v.SetDefault("host.viewport.height", h.Viewport.Height)
	v.SetDefault("host.viewport.mm_per_pixel", h.Viewport.MMPerPixel)
	v.SetDefault("host.viewport.row_spacing", h.Viewport.RowSpacing)
	v.SetDefault("host.viewport.column_spacing", h.Viewport.ColumnSpacing)
	v.SetDefault("host.study.wado_root", "")
	v.SetDefault("host.study.study_uid", "")
	v.SetDefault("host.study.series_uid", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", DefaultMetricsPath)

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 1)
}

func setSupervisorDefaults(v *viper.Viper, prefix string, c supervisor.Config) {
	v.SetDefault(prefix+"initial_delay", c.InitialDelay)
	v.SetDefault(prefix+"poll_interval", c.PollInterval)
	v.SetDefault(prefix+"number_of_tries", c.NumberOfTries)
	v.SetDefault(prefix+"escalation_grace", c.EscalationGrace)
	v.SetDefault(prefix+"heartbeat_interval", c.HeartbeatInterval)
	v.SetDefault(prefix+"heartbeat", c.Heartbeat)
	v.SetDefault(prefix+"escalate", c.Escalate)
}

func setHandoffDefaults(v *viper.Viper, prefix string, c handoff.Config) {
	v.SetDefault(prefix+"reset_on_camera_change", c.ResetOnCameraChange)
	v.SetDefault(prefix+"reset_debounce", c.ResetDebounce)
}
