package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/errors"
	"gopkg.in/yaml.v3"
)

// ConfigCmd represents the config ("I am") command
var ConfigCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"am"},
	Short:   "Manage configuration",
	Long: `config - Manage lookbridge configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (LOOKBRIDGE_* prefix)
2. Project config (./am.toml, searched up the directory tree)
3. User config (~/.lookbridge/am.toml)
4. System config (/etc/lookbridge/am.toml)
5. Default values

Examples:
  lookbridge config show                        # Show current configuration
  lookbridge config show --format json          # Show configuration as JSON
  lookbridge config get deeplook.port           # Get one value
  lookbridge config set deeplook.port 44459     # Write one value to am.toml
  lookbridge config init                        # Write every default to am.toml
  lookbridge config validate                    # Validate current configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., deeplook.port, segmentation.http_timeout)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one value to the active am.toml",
	Long: `Write one value to the project am.toml, or to ~/.lookbridge/am.toml when
there is no project file. The previous file is kept as a rotating backup.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runConfigValidate,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which source every setting came from.

Lists all configuration sources in order of precedence.`,
	RunE: runConfigWhere,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings, err := am.EffectiveSettings()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# lookbridge configuration\n%s", string(data))
	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# lookbridge configuration\n%s", string(data))
	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value := am.Get(args[0])
	if value == nil {
		return fmt.Errorf("configuration key %q not found", args[0])
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := am.WritablePath()
	if path == "" {
		return errors.New("no home directory for the user configuration")
	}
	if err := am.SetValue(path, args[0], configValue(args[1])); err != nil {
		return err
	}

	// The edit is kept even when it leaves the configuration invalid
	am.Reset()
	cfg, err := am.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		pterm.Warning.Printfln("%s now holds an invalid configuration: %v", path, err)
		return nil
	}
	pterm.Success.Printfln("Set %s in %s", args[0], path)
	return nil
}

// configValue types a command line value for TOML: integers, floats and
// booleans keep their type, everything else (durations included) is a string
func configValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := am.WritablePath()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.New("no home directory for the user configuration")
	}
	if err := am.WriteDefault(path); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote defaults to %s", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [DEFAULT]  Built-in defaults")
	fmt.Printf("  2. [SYSTEM]   %s\n", am.SystemConfig)
	fmt.Printf("  3. [USER]     ~/%s/%s\n", am.UserConfigDir, am.ConfigFileName)
	fmt.Printf("  4. [PROJECT]  ./%s (searches up directories)\n", am.ConfigFileName)
	fmt.Printf("  5. [ENV]      %s_* environment variables\n", am.EnvPrefix)
	fmt.Println()

	// Group settings by source, then by file
	type fileGroup struct {
		source   am.ConfigSource
		path     string
		settings []am.SettingInfo
	}
	groups := make(map[string]*fileGroup)
	for _, setting := range intro.Settings {
		key := string(setting.Source) + "|" + setting.SourcePath
		if setting.Source == am.SourceEnvironment {
			key = string(setting.Source)
		}
		group, ok := groups[key]
		if !ok {
			group = &fileGroup{source: setting.Source, path: setting.SourcePath}
			groups[key] = group
		}
		group.settings = append(group.settings, setting)
	}

	sourceOrder := []am.ConfigSource{
		am.SourceDefault,
		am.SourceSystem,
		am.SourceUser,
		am.SourceProject,
		am.SourceEnvironment,
	}

	fmt.Println("Active configuration:")
	for _, source := range sourceOrder {
		var ordered []*fileGroup
		for _, group := range groups {
			if group.source == source {
				ordered = append(ordered, group)
			}
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].path < ordered[j].path })

		for _, group := range ordered {
			switch source {
			case am.SourceDefault:
				fmt.Printf("\n%s: %d settings\n", source, len(group.settings))
			case am.SourceEnvironment:
				fmt.Printf("\n%s: %d settings from environment variables\n", source, len(group.settings))
			default:
				fmt.Printf("\n%s: %d settings from %s\n", source, len(group.settings), group.path)
			}
			for _, setting := range group.settings {
				valueStr := fmt.Sprintf("%v", setting.Value)
				if len(valueStr) > 50 {
					valueStr = valueStr[:47] + "..."
				}
				fmt.Printf("  %s = %s\n", setting.Key, valueStr)
			}
		}
	}

	if len(intro.Files) == 0 {
		fmt.Fprintln(os.Stderr, "\nNo configuration file found; run 'lookbridge config init' to create one.")
	}
	return nil
}
