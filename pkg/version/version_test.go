package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setBuildInfo(t *testing.T, v, built, commit string) {
	t.Helper()
	origVersion, origBuildTime, origCommit := Version, BuildTime, Commit
	t.Cleanup(func() {
		Version, BuildTime, Commit = origVersion, origBuildTime, origCommit
	})
	Version, BuildTime, Commit = v, built, commit
}

func TestInfo(t *testing.T) {
	setBuildInfo(t, "1.2.0", "2025-10-28", "abcdef0123456789")

	info := Info()
	assert.True(t, strings.HasPrefix(info, "labconf 1.2.0 "), info)
	assert.Contains(t, info, "(abcdef01)")
	assert.NotContains(t, info, "abcdef0123")
	assert.Contains(t, info, "2025-10-28")
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)

	Commit = "abc123"
	assert.Contains(t, Info(), "(abc123)")
}

func TestMap(t *testing.T) {
	setBuildInfo(t, "1.2.0", "2025-10-28", "abcdef0123456789")

	m := Map()
	assert.Equal(t, "1.2.0", m["version"])
	assert.Equal(t, "2025-10-28", m["buildTime"])
	assert.Equal(t, "abcdef0123456789", m["commit"])
	assert.Equal(t, runtime.GOOS, m["os"])
	assert.Equal(t, runtime.GOARCH, m["arch"])
	assert.True(t, strings.HasPrefix(m["goVersion"], "go1."))
}

func TestUserAgent(t *testing.T) {
	setBuildInfo(t, "1.2.0", "2025-10-28", "abcdef0123456789")
	assert.Equal(t, "labconf/1.2.0 (abcdef01)", UserAgent())
}
