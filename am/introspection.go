package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/lookbridge/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/lookbridge/am.toml
	SourceUser        ConfigSource = "user"        // ~/.lookbridge/am.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceEnvironment ConfigSource = "environment" // LOOKBRIDGE_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// ConfigSources maps each key read from a file to that file. Keys absent
// here come from defaults or the environment.
var ConfigSources = make(map[string]SourceInfo)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// ConfigIntrospection provides metadata about the active configuration
type ConfigIntrospection struct {
	Files    []string      `json:"files"`
	Settings []SettingInfo `json:"settings"`
}

// GetConfigIntrospection returns every effective setting with its source
func GetConfigIntrospection() (*ConfigIntrospection, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}
	v := GetViper()

	introspection := &ConfigIntrospection{Settings: make([]SettingInfo, 0)}
	for _, f := range configFiles() {
		introspection.Files = append(introspection.Files, f.Path)
	}

	keys := v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := ConfigSources[key]; ok {
			info = si
		}
		if env := EnvKey(key); os.Getenv(env) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: env}
		}
		introspection.Settings = append(introspection.Settings, SettingInfo{
			Key:        key,
			Value:      v.Get(key),
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return introspection, nil
}

// EnvKey returns the environment variable that overrides key
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// GetConfigSummary counts effective settings by source
func GetConfigSummary() map[ConfigSource]int {
	summary := make(map[ConfigSource]int)
	introspection, err := GetConfigIntrospection()
	if err != nil {
		return summary
	}
	for _, setting := range introspection.Settings {
		summary[setting.Source]++
	}
	return summary
}

// EffectiveSettings returns the loaded configuration as nested maps ready
// for TOML or JSON output
func EffectiveSettings() (map[string]interface{}, error) {
	if _, err := Load(); err != nil {
		return nil, err
	}
	return tomlValues(GetViper().AllSettings()).(map[string]interface{}), nil
}

// Get returns the effective value of a dotted key, or nil if it is unknown
func Get(key string) interface{} {
	if _, err := Load(); err != nil {
		return nil
	}
	v := GetViper()
	if !v.IsSet(key) {
		return nil
	}
	return tomlValues(v.Get(key))
}
