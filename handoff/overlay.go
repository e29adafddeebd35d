package handoff

import "time"

// Source is a configuration section. plugin.Config satisfies it.
type Source interface {
	IsSet(key string) bool
	GetBool(key string) bool
	GetDuration(key string) time.Duration
}

// Overlay returns c with every key set in src under prefix applied
func (c Config) Overlay(src Source, prefix string) Config {
	if src == nil {
		return c
	}
	if src.IsSet(prefix + "reset_on_camera_change") {
		c.ResetOnCameraChange = src.GetBool(prefix + "reset_on_camera_change")
	}
	if src.IsSet(prefix + "reset_debounce") {
		c.ResetDebounce = src.GetDuration(prefix + "reset_debounce")
	}
	return c
}
