package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/deeplook"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/launcher"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/segmentation"
	"github.com/teranos/lookbridge/transport"
)

var (
	statusTimeout time.Duration
	statusJSON    bool
)

// StatusCmd probes the configured companions
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the configured companions",
	Long: `Dial every enabled companion once and report whether it answers.

The probe opens a WebSocket and closes it again without sending any opcode,
so a running DLPrecise session is left alone.`,
	RunE: runStatus,
}

func init() {
	StatusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Second, "Dial timeout per companion")
	StatusCmd.Flags().BoolVarP(&statusJSON, "json", "j", false, "Output status as JSON")
}

// companionStatus is one probed endpoint
type companionStatus struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
	// Process is set for companions with a known process name
	Process string `json:"process,omitempty"`
	Running *bool  `json:"running,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	statuses := dialCompanions(cmd.Context(), cfg, transport.GorillaDialer{HandshakeTimeout: statusTimeout}, launcher.RunningProcessNames)
	if statusJSON {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal status")
		}
		fmt.Println(string(data))
		return nil
	}

	data := pterm.TableData{{"Companion", "Endpoint", "Reachable", "Process"}}
	for _, s := range statuses {
		reachable := pterm.Green("yes")
		if !s.Reachable {
			reachable = pterm.Red("no")
		}
		process := "-"
		if s.Running != nil {
			process = fmt.Sprintf("%s (running: %t)", s.Process, *s.Running)
		}
		data = append(data, []string{s.Name, s.Endpoint, reachable, process})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// dialCompanions dials each enabled companion once
func dialCompanions(ctx context.Context, cfg *am.Config, dialer transport.Dialer, list func() ([]string, error)) []companionStatus {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.ComponentLogger("status")
	var out []companionStatus

	if cfg.DeepLook.Enabled {
		s := probe(ctx, dialer, deeplook.Name, cfg.DeepLook.Host, cfg.DeepLook.Port)
		l := launcher.New(cfg.ToLauncher(), nil, log)
		l.ListProcesses = list
		if running, err := l.CompanionRunning(); err == nil && cfg.Launcher.ProcessName != "" {
			s.Process = cfg.Launcher.ProcessName
			s.Running = &running
		}
		out = append(out, s)
	}
	if cfg.Segmentation.Enabled {
		out = append(out, probe(ctx, dialer, segmentation.Name, cfg.Segmentation.Host, cfg.Segmentation.Port))
	}
	return out
}

func probe(ctx context.Context, dialer transport.Dialer, name, host string, port int) companionStatus {
	endpoint := transport.Config{Host: host, Port: port}.URL()
	s := companionStatus{Name: name, Endpoint: endpoint}
	sock, err := dialer.DialContext(ctx, endpoint)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	sock.Close()
	s.Reachable = true
	return s
}
