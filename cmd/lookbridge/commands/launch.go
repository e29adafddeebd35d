package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/launcher"
	"github.com/teranos/lookbridge/logger"
)

// LaunchCmd drives the DLPrecise URL handlers
var LaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Open or close DLPrecise, or its installer page",
	Long: `Hand the configured DLPrecise URLs to the operating system.

Examples:
  lookbridge launch open        # Start DLPrecise through deeplook://open
  lookbridge launch close       # Ask DLPrecise to quit
  lookbridge launch installer   # Open the installer download page
  lookbridge launch running     # Report whether the DLPrecise process exists`,
}

var launchOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Start DLPrecise",
	RunE: withLauncher(func(l *launcher.Launcher) error {
		if err := l.Launch(); err != nil {
			return err
		}
		pterm.Success.Printfln("Opened %s", l.Config().LaunchURL)
		return nil
	}),
}

var launchCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Ask DLPrecise to quit",
	RunE: withLauncher(func(l *launcher.Launcher) error {
		if err := l.Stop(); err != nil {
			return err
		}
		pterm.Success.Printfln("Opened %s", l.Config().StopURL)
		return nil
	}),
}

var launchInstallerCmd = &cobra.Command{
	Use:   "installer",
	Short: "Open the installer download page",
	RunE: withLauncher(func(l *launcher.Launcher) error {
		if err := l.OpenInstaller(); err != nil {
			return err
		}
		pterm.Success.Printfln("Opened %s", l.Config().InstallerURL)
		return nil
	}),
}

var launchRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "Report whether the DLPrecise process exists",
	RunE: withLauncher(func(l *launcher.Launcher) error {
		running, err := l.CompanionRunning()
		if err != nil {
			return err
		}
		if running {
			pterm.Success.Printfln("%s is running", l.Config().ProcessName)
		} else {
			pterm.Warning.Printfln("%s is not running", l.Config().ProcessName)
		}
		return nil
	}),
}

func init() {
	LaunchCmd.AddCommand(launchOpenCmd)
	LaunchCmd.AddCommand(launchCloseCmd)
	LaunchCmd.AddCommand(launchInstallerCmd)
	LaunchCmd.AddCommand(launchRunningCmd)
}

func withLauncher(fn func(l *launcher.Launcher) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		return fn(launcher.New(cfg.ToLauncher(), nil, logger.ComponentLogger("launcher")))
	}
}
