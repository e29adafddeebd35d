package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/deeplook"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/segmentation"
)

var (
	sendWait time.Duration
	runWait  time.Duration
	runHold  time.Duration
)

// opcodeCommands maps send arguments to DeepLook commands
var opcodeCommands = map[string]string{
	"reset":     deeplook.CommandReset,
	"close":     deeplook.CommandClose,
	"heartbeat": deeplook.CommandHeartbeat,
}

// SendCmd sends one opcode to DLPrecise
var SendCmd = &cobra.Command{
	Use:       "send <reset|close|heartbeat>",
	Short:     "Send one opcode to DLPrecise",
	Long:      "Connect to DLPrecise, send one opcode and end the session.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"reset", "close", "heartbeat"},
	RunE:      runSend,
}

// RunCmd runs any extension command once its companion is connected
var RunCmd = &cobra.Command{
	Use:   "run <command> [key=value...]",
	Short: "Run an extension command",
	Long: `Connect, run one extension command and print its result.

Arguments are key=value pairs. Values stay strings except true and false.

Examples:
  lookbridge run deepLookStatus
  lookbridge run sendToProcess study_uid=1.2.3 series_uid=1.2.3.4 --hold 2m`,
	Args: cobra.MinimumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return knownCommands(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runRun,
}

func init() {
	SendCmd.Flags().DurationVar(&sendWait, "wait", 5*time.Second, "How long to wait for the connection")
	RunCmd.Flags().DurationVar(&runWait, "wait", 5*time.Second, "How long to wait for the connection")
	RunCmd.Flags().DurationVar(&runHold, "hold", 0, "Keep the session open afterwards to receive notifications")
}

func runSend(cmd *cobra.Command, args []string) error {
	command := opcodeCommands[args[0]]
	out, err := runOnce(cmd.Context(), command, nil, sendWait, 0)
	if err != nil {
		return err
	}
	if sent, _ := out.(bool); !sent {
		return errors.Wrapf(errors.ErrNotConnected, "%s was not sent", args[0])
	}
	pterm.Success.Printfln("Sent %s", args[0])
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	params, err := parseCommandArgs(args[1:])
	if err != nil {
		return err
	}
	out, err := runOnce(cmd.Context(), args[0], params, runWait, runHold)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to format result")
	}
	fmt.Println(string(data))
	return nil
}

// runOnce starts the extension owning command, waits for its companion,
// runs the command and shuts down after hold
func runOnce(ctx context.Context, command string, params map[string]interface{}, wait, hold time.Duration) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ext, err := commandOwner(command)
	if err != nil {
		return nil, err
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	rt, err := startRuntime(ctx, cfg, runtimeOptions{only: ext},
		logger.ChildLogger(logger.ComponentLogger("bridge"), logger.FieldCommand, command))
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.shutdown(shutdownCtx)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := rt.waitConnected(waitCtx, ext); err != nil {
		return nil, err
	}

	out, err := rt.registry.RunCommand(ctx, command, params)
	if err != nil {
		return nil, err
	}
	if hold > 0 {
		pterm.Info.Printfln("Holding the session for %s", hold)
		select {
		case <-ctx.Done():
		case <-time.After(hold):
		}
	}
	return out, nil
}

// commandOwners maps every runnable command to its extension
var commandOwners = map[string]string{
	deeplook.CommandIsConnected: deeplook.Name,
	deeplook.CommandCloseURL:    deeplook.Name,
	deeplook.CommandLaunch:      deeplook.Name,
	deeplook.CommandReset:       deeplook.Name,
	deeplook.CommandClose:       deeplook.Name,
	deeplook.CommandHeartbeat:   deeplook.Name,
	deeplook.CommandStatus:      deeplook.Name,

	segmentation.CommandIsConnected:    segmentation.Name,
	segmentation.CommandSendToProcess:  segmentation.Name,
	segmentation.CommandDownloadResult: segmentation.Name,
	segmentation.CommandRequestSeries:  segmentation.Name,
	segmentation.CommandStatus:         segmentation.Name,
}

// commandOwner names the extension that registers command
func commandOwner(command string) (string, error) {
	if ext, ok := commandOwners[command]; ok {
		return ext, nil
	}
	return "", errors.NewNotFoundError("command %s", command)
}

// parseCommandArgs turns key=value pairs into command arguments
func parseCommandArgs(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.NewInvalidRequestError("argument %q is not key=value", pair)
		}
		params[key] = parseValue(value)
	}
	return params, nil
}

// parseValue keeps values as strings so UIDs survive unchanged; only true
// and false become booleans
func parseValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// knownCommands lists every command run accepts, sorted
func knownCommands() []string {
	names := make([]string, 0, len(commandOwners))
	for c := range commandOwners {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}
