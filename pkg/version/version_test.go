package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringContainsAllFields(t *testing.T) {
	s := String()
	assert.Contains(t, s, "bookrag")
	assert.Contains(t, s, Version)
	assert.Contains(t, s, Commit)
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.NotEmpty(t, info.GoVersion)
}
