package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestString(t *testing.T) {
	info := Info{Version: "1.2.3", Commit: "abc123", BuildDate: "2026-01-01"}
	s := info.String()
	assert.True(t, strings.Contains(s, "1.2.3"))
	assert.True(t, strings.Contains(s, "abc123"))
}
