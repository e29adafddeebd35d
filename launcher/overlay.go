package launcher

// Source is a configuration section. plugin.Config satisfies it.
type Source interface {
	IsSet(key string) bool
	GetString(key string) string
}

// Overlay returns c with every key set in src applied
func (c Config) Overlay(src Source) Config {
	if src == nil {
		return c
	}
	if src.IsSet("launch_url") {
		c.LaunchURL = src.GetString("launch_url")
	}
	if src.IsSet("stop_url") {
		c.StopURL = src.GetString("stop_url")
	}
	if src.IsSet("installer_url") {
		c.InstallerURL = src.GetString("installer_url")
	}
	if src.IsSet("process_name") {
		c.ProcessName = src.GetString("process_name")
	}
	if src.IsSet("opener_command") {
		c.OpenerCommand = src.GetString("opener_command")
	}
	return c
}
