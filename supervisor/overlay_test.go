package supervisor

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Overlay(t *testing.T) {
	v := viper.New()
	v.Set("supervisor.poll_interval", "750ms")
	v.Set("supervisor.number_of_tries", 9)
	v.Set("supervisor.escalate", false)
	v.Set("poll_interval", "1h") // outside the prefix

	base := DefaultConfig()
	got := base.Overlay(v, "supervisor.")

	assert.Equal(t, 750*time.Millisecond, got.PollInterval)
	assert.Equal(t, 9, got.NumberOfTries)
	assert.False(t, got.Escalate)
	assert.Equal(t, base.InitialDelay, got.InitialDelay, "unset keys keep their value")
	assert.Equal(t, base.Heartbeat, got.Heartbeat)

	assert.Equal(t, base, base.Overlay(nil, "supervisor."))
}
