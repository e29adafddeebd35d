package supervisor

import "time"

// Source is a configuration section. plugin.Config satisfies it.
type Source interface {
	IsSet(key string) bool
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
}

// Overlay returns c with every key set in src applied. Keys are read under
// prefix, e.g. "supervisor." for the nested table of an extension section.
func (c Config) Overlay(src Source, prefix string) Config {
	if src == nil {
		return c
	}
	durations := map[string]*time.Duration{
		"initial_delay":      &c.InitialDelay,
		"poll_interval":      &c.PollInterval,
		"escalation_grace":   &c.EscalationGrace,
		"heartbeat_interval": &c.HeartbeatInterval,
	}
	for key, dst := range durations {
		if src.IsSet(prefix + key) {
			*dst = src.GetDuration(prefix + key)
		}
	}
	if src.IsSet(prefix + "number_of_tries") {
		c.NumberOfTries = src.GetInt(prefix + "number_of_tries")
	}
	if src.IsSet(prefix + "heartbeat") {
		c.Heartbeat = src.GetBool(prefix + "heartbeat")
	}
	if src.IsSet(prefix + "escalate") {
		c.Escalate = src.GetBool(prefix + "escalate")
	}
	return c
}
