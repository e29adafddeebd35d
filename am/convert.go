package am

import (
	"github.com/teranos/lookbridge/deeplook"
	"github.com/teranos/lookbridge/geometry"
	"github.com/teranos/lookbridge/handoff"
	"github.com/teranos/lookbridge/host"
	"github.com/teranos/lookbridge/launcher"
	"github.com/teranos/lookbridge/segmentation"
	"github.com/teranos/lookbridge/supervisor"
)

// ToSupervisor converts a supervisor section
func (s SupervisorConfig) ToSupervisor() supervisor.Config {
	return supervisor.Config{
		InitialDelay:      s.InitialDelay,
		PollInterval:      s.PollInterval,
		NumberOfTries:     s.NumberOfTries,
		EscalationGrace:   s.EscalationGrace,
		HeartbeatInterval: s.HeartbeatInterval,
		Heartbeat:         s.Heartbeat,
		Escalate:          s.Escalate,
	}
}

// ToLauncher converts the launcher section
func (c *Config) ToLauncher() launcher.Config {
	return launcher.Config{
		LaunchURL:     c.Launcher.LaunchURL,
		StopURL:       c.Launcher.StopURL,
		InstallerURL:  c.Launcher.InstallerURL,
		ProcessName:   c.Launcher.ProcessName,
		OpenerCommand: c.Launcher.OpenerCommand,
	}
}

// ToDeepLook converts the deeplook and launcher sections
func (c *Config) ToDeepLook() (deeplook.Config, error) {
	mode, err := geometry.ParseMode(c.DeepLook.GeometryMode)
	if err != nil {
		return deeplook.Config{}, err
	}
	d := c.DeepLook
	return deeplook.Config{
		Host:                 d.Host,
		Port:                 d.Port,
		DialTimeout:          d.DialTimeout,
		Protocol:             d.Protocol,
		Geometry:             mode,
		NotificationDuration: d.NotificationDuration,
		Supervisor:           d.Supervisor.ToSupervisor(),
		Handoff: handoff.Config{
			ResetOnCameraChange: d.Handoff.ResetOnCameraChange,
			ResetDebounce:       d.Handoff.ResetDebounce,
		},
		Launcher: c.ToLauncher(),
	}, nil
}

// ToSegmentation converts the segmentation section
func (c *Config) ToSegmentation() segmentation.Config {
	s := c.Segmentation
	return segmentation.Config{
		Host:                 s.Host,
		Port:                 s.Port,
		DialTimeout:          s.DialTimeout,
		Protocol:             s.Protocol,
		HTTPURL:              s.HTTPURL,
		HTTPTimeout:          s.HTTPTimeout,
		NotificationDuration: s.NotificationDuration,
		Supervisor:           s.Supervisor.ToSupervisor(),
	}
}

// ToHost converts the host and notify sections
func (c *Config) ToHost() host.Config {
	h := c.Host
	return host.Config{
		Viewport: host.ViewportConfig{
			Width:         h.Viewport.Width,
			Height:        h.Viewport.Height,
			MMPerPixel:    h.Viewport.MMPerPixel,
			RowSpacing:    h.Viewport.RowSpacing,
			ColumnSpacing: h.Viewport.ColumnSpacing,
		},
		Study: host.StudyConfig{
			WadoRoot:  h.Study.WadoRoot,
			StudyUID:  h.Study.StudyUID,
			SeriesUID: h.Study.SeriesUID,
		},
		Notify: host.NotifyConfig{
			PerMinute: c.Notify.PerMinute,
			Burst:     c.Notify.Burst,
			History:   c.Notify.History,
		},
		ToolGroupID:     h.ToolGroupID,
		Tools:           h.Tools,
		PrimaryTool:     h.PrimaryTool,
		SegmentationDir: h.SegmentationDir,
	}
}
