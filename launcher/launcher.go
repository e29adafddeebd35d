// Package launcher starts and stops the companion application out of band,
// through its custom URL scheme, and opens the installer page when it is missing.
package launcher

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"go.uber.org/zap"
)

// URLPlaceholder in an opener command line is replaced by the target URL.
// Without it the URL is appended as the last argument.
const URLPlaceholder = "{url}"

// Opener hands a URL to the operating system
type Opener interface {
	Open(target string) error
}

// PlatformCommand returns the default URL opener for goos
func PlatformCommand(goos string) string {
	switch goos {
	case "darwin":
		return "open"
	case "windows":
		return "rundll32 url.dll,FileProtocolHandler"
	default:
		return "xdg-open"
	}
}

// CommandOpener runs a command line to open URLs
type CommandOpener struct {
	// Command is a shell-quoted command line; empty means PlatformCommand
	Command string
}

// Open starts the opener and does not wait for it
func (o CommandOpener) Open(target string) error {
	line := o.Command
	if line == "" {
		line = PlatformCommand(runtime.GOOS)
	}
	args, err := BuildArgs(line, target)
	if err != nil {
		return err
	}

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(errors.ErrLaunchFailed, "%s: %s", args[0], err.Error())
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

// BuildArgs splits the command line and places target in it
func BuildArgs(line, target string) ([]string, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrLaunchFailed, "invalid opener command %q: %s", line, err.Error())
	}
	if len(args) == 0 {
		return nil, errors.Wrap(errors.ErrLaunchFailed, "empty opener command")
	}

	substituted := false
	for i, a := range args {
		if strings.Contains(a, URLPlaceholder) {
			args[i] = strings.ReplaceAll(a, URLPlaceholder, target)
			substituted = true
		}
	}
	if !substituted {
		args = append(args, target)
	}
	return args, nil
}

// Config names the URLs and process of one companion application
type Config struct {
	LaunchURL    string
	StopURL      string
	InstallerURL string

	// ProcessName is matched case-insensitively, with or without .exe
	ProcessName string

	// OpenerCommand overrides the platform URL opener (see CommandOpener)
	OpenerCommand string
}

// DefaultConfig returns the DLPrecise settings
func DefaultConfig() Config {
	return Config{
		LaunchURL:    "deeplook://open",
		StopURL:      "deeplook://close",
		InstallerURL: "https://emory.deeplook-medical.com/installer.html",
		ProcessName:  "DLPrecise",
	}
}

// Launcher implements supervisor.Escalator
type Launcher struct {
	cfg    Config
	opener Opener
	logger *zap.SugaredLogger

	// ListProcesses returns running process names. Defaults to RunningProcessNames.
	ListProcesses func() ([]string, error)
}

// New creates a launcher. A nil opener means a CommandOpener running
// cfg.OpenerCommand.
func New(cfg Config, opener Opener, log *zap.SugaredLogger) *Launcher {
	if opener == nil {
		opener = CommandOpener{Command: cfg.OpenerCommand}
	}
	return &Launcher{
		cfg:           cfg,
		opener:        opener,
		logger:        log,
		ListProcesses: RunningProcessNames,
	}
}

// Config returns the launcher settings
func (l *Launcher) Config() Config {
	return l.cfg
}

// Launch asks the OS to open the companion's launch URL
func (l *Launcher) Launch() error {
	return l.open(l.cfg.LaunchURL)
}

// Stop asks the OS to open the companion's stop URL
func (l *Launcher) Stop() error {
	return l.open(l.cfg.StopURL)
}

// OpenInstaller opens the installer page in the default browser
func (l *Launcher) OpenInstaller() error {
	return l.open(l.cfg.InstallerURL)
}

func (l *Launcher) open(target string) error {
	if target == "" {
		return errors.Wrap(errors.ErrLaunchFailed, "no URL configured")
	}
	l.logger.Infow("Opening URL", logger.FieldURL, target)
	if err := l.opener.Open(target); err != nil {
		return errors.Wrapf(err, "failed to open %s", target)
	}
	return nil
}

// CompanionRunning reports whether a process named ProcessName exists
func (l *Launcher) CompanionRunning() (bool, error) {
	if l.cfg.ProcessName == "" || l.ListProcesses == nil {
		return false, nil
	}
	names, err := l.ListProcesses()
	if err != nil {
		return false, errors.Wrap(err, "failed to list processes")
	}

	want := normalizeProcessName(l.cfg.ProcessName)
	for _, name := range names {
		if normalizeProcessName(name) == want {
			l.logger.Debugw("Companion process found", logger.FieldProcess, name)
			return true, nil
		}
	}
	return false, nil
}

func normalizeProcessName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

// RunningProcessNames lists the names of processes visible to this user
func RunningProcessNames() ([]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate processes")
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// Processes can exit between listing and inspection
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
