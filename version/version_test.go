package version

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIVersionIsSemver(t *testing.T) {
	_, err := semver.NewVersion(APIVersion)
	require.NoError(t, err)
}

func TestInfo(t *testing.T) {
	info := Get()
	assert.Equal(t, APIVersion, info.APIVersion)
	assert.Contains(t, info.String(), "lookbridge dev")

	assert.Equal(t, "abcdef1", Info{CommitHash: "abcdef1234"}.Short())
	assert.Equal(t, "abc", Info{CommitHash: "abc"}.Short())
	assert.Contains(t, Info{Version: "1.2.0", CommitHash: "c", BuildTime: "t", APIVersion: "1.0.0"}.String(), "lookbridge 1.2.0")
}
