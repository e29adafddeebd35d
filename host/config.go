package host

import (
	"time"

	"github.com/spf13/viper"
)

// sectionConfig exposes one viper sub-tree as plugin.Config
type sectionConfig struct {
	v *viper.Viper
}

func newSectionConfig(root *viper.Viper, domain string) sectionConfig {
	if root == nil {
		return sectionConfig{v: viper.New()}
	}
	sub := root.Sub(domain)
	if sub == nil {
		sub = viper.New()
	}
	return sectionConfig{v: sub}
}

func (c sectionConfig) GetString(key string) string          { return c.v.GetString(key) }
func (c sectionConfig) GetInt(key string) int                { return c.v.GetInt(key) }
func (c sectionConfig) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c sectionConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c sectionConfig) IsSet(key string) bool                { return c.v.IsSet(key) }
