package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo_String(t *testing.T) {
	info := Info{CommitHash: "abcdef0123", BuildTime: "now", Version: "dev"}
	assert.Equal(t, "lpharvest dev (commit abcdef0123, built now)", info.String())

	info.Version = "1.2.0"
	assert.Equal(t, "lpharvest 1.2.0 (commit abcdef0123, built now)", info.String())
}

func TestInfo_UserAgent(t *testing.T) {
	info := Info{CommitHash: "abcdef0123", Version: "1.2.0", Platform: "linux/amd64"}
	assert.Equal(t, "lpharvest/1.2.0 (abcdef0; linux/amd64)", info.UserAgent())
	assert.True(t, strings.HasPrefix(Get().UserAgent(), "lpharvest/"))
}

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890ab"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}

	info := Info{CommitHash: "dev", BuildTime: "unknown", Version: "dev"}
	info.fillFromBuildInfo(bi)
	assert.Equal(t, "v0.3.1", info.Version)
	assert.Equal(t, "1234567890ab", info.CommitHash)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.BuildTime)

	// ldflags values win
	info = Info{CommitHash: "feedface", BuildTime: "then", Version: "1.0.0"}
	info.fillFromBuildInfo(bi)
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "feedface", info.CommitHash)
	assert.Equal(t, "then", info.BuildTime)

	info = Info{Version: "dev"}
	info.fillFromBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, "dev", info.Version)
}
