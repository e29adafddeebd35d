package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, cfg *am.Config, extensions []string) {
	info := version.Get()

	lines := []string{
		fmt.Sprintf("Version:    %s (commit %s)", info.Version, info.Short()),
		fmt.Sprintf("Built:      %s", info.BuildTime),
		fmt.Sprintf("Verbosity:  %s", logger.LevelName(verbosity)),
		fmt.Sprintf("Extensions: %s", strings.Join(extensions, ", ")),
	}
	if cfg.DeepLook.Enabled {
		lines = append(lines, fmt.Sprintf("DLPrecise:  ws://%s:%d (%s)", cfg.DeepLook.Host, cfg.DeepLook.Port, cfg.DeepLook.Protocol))
	}
	if cfg.Segmentation.Enabled {
		lines = append(lines, fmt.Sprintf("AI server:  ws://%s:%d (%s)", cfg.Segmentation.Host, cfg.Segmentation.Port, cfg.Segmentation.Protocol))
	}
	if cfg.Metrics.Addr != "" {
		lines = append(lines, fmt.Sprintf("Metrics:    http://%s%s", cfg.Metrics.Addr, cfg.Metrics.Path))
	}

	pterm.DefaultBox.WithTitle("lookbridge").Println(strings.Join(lines, "\n"))
	pterm.Info.Println("Press Ctrl+C to stop")
}
