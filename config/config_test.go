package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, "viewer", GetAppType())
	assert.Equal(t, 30, GetDefaultFPS())
	assert.Equal(t, 3*time.Millisecond, GetMinDelay())
	assert.Equal(t, 5*time.Second, GetRequestTimeout())
	assert.Equal(t, float32(2), GetQuadDistance())
	assert.Equal(t, time.Second, GetFadeDuration())
	assert.True(t, GetVPRT())
	assert.Equal(t, "memory", GetSurfaceBackend())
	assert.Equal(t, "shm", GetRemoteSurfaceBackend())
	assert.False(t, GetProxyProtocol())

	d := Defaults()
	assert.Contains(t, d, "capture")
	assert.Contains(t, d, "compositor")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOLOCAST_FPS", "60")
	t.Setenv("HOLOCAST_SURFACE_BACKEND", "shm")
	t.Setenv("HOLOCAST_VPRT", "false")
	t.Setenv("HOLOCAST_REMOTE_SURFACE_BACKEND", "memory")

	assert.Equal(t, 60, GetDefaultFPS())
	assert.Equal(t, "shm", GetSurfaceBackend())
	assert.False(t, GetVPRT())
	assert.Equal(t, "memory", GetRemoteSurfaceBackend())
}
