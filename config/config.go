package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("HOLOCAST")
	v.AutomaticEnv()
	v.BindEnv("holocast.home", "HOLOCAST_HOME")
	v.BindEnv("producer.listen", "HOLOCAST_LISTEN")
	v.BindEnv("producer.proxy_protocol", "HOLOCAST_PROXY_PROTOCOL")
	v.BindEnv("channel.transport", "HOLOCAST_TRANSPORT")
	v.BindEnv("session.apptype", "HOLOCAST_APPTYPE")
	v.BindEnv("capture.default_fps", "HOLOCAST_FPS")
	v.BindEnv("surface.backend", "HOLOCAST_SURFACE_BACKEND")
	v.BindEnv("surface.remote_backend", "HOLOCAST_REMOTE_SURFACE_BACKEND")
	v.BindEnv("surface.shm_dir", "HOLOCAST_SHM_DIR")
	v.BindEnv("compositor.vprt", "HOLOCAST_VPRT")

	// Config file
	v.SetConfigName("config")

	// Look for config in the following paths
	configPaths := []string{
		".",
		"$HOME/.holocast",
		"/etc/holocast",
	}

	for _, path := range configPaths {
		expandedPath := os.ExpandEnv(path)
		v.AddConfigPath(expandedPath)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; ignore error and use defaults
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("holocast.home", filepath.Join(xdg.Home, ".holocast"))

	v.SetDefault("producer.listen", "127.0.0.1:29960")
	v.SetDefault("producer.proxy_protocol", false)
	v.SetDefault("channel.transport", "websocket")
	v.SetDefault("channel.request_timeout", "5s")

	v.SetDefault("session.apptype", "viewer")

	v.SetDefault("capture.default_fps", 30)
	v.SetDefault("capture.min_delay_ms", 3)
	v.SetDefault("capture.smoothing", 0.1)
	v.SetDefault("capture.feedback_buffer", 4)

	v.SetDefault("surface.backend", "memory")
	v.SetDefault("surface.remote_backend", "shm")
	v.SetDefault("surface.shm_dir", defaultShmDir())

	v.SetDefault("compositor.distance", 2.0)
	v.SetDefault("compositor.fade_seconds", 1.0)
	v.SetDefault("compositor.vprt", true)
}

func defaultShmDir() string {
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		return "/dev/shm/holocast"
	}
	return filepath.Join(os.TempDir(), "holocast")
}

// Defaults returns the built-in settings keyed the same way as the config file.
func Defaults() map[string]any {
	d := viper.New()
	setDefaults(d)
	return d.AllSettings()
}

// GetHome returns the holocast home directory
func GetHome() string {
	return v.GetString("holocast.home")
}

// GetListenAddr returns the address the producer listens on
func GetListenAddr() string {
	return v.GetString("producer.listen")
}

// GetProxyProtocol reports whether the producer expects a PROXY protocol
// header on every accepted connection
func GetProxyProtocol() bool {
	return v.GetBool("producer.proxy_protocol")
}

// GetTransport returns the message channel transport name (websocket or smux)
func GetTransport() string {
	return v.GetString("channel.transport")
}

// GetRequestTimeout returns how long a request waits for its acknowledgement
func GetRequestTimeout() time.Duration {
	return v.GetDuration("channel.request_timeout")
}

// GetAppType returns the application-type tag producers accept during negotiation
func GetAppType() string {
	return v.GetString("session.apptype")
}

func GetDefaultFPS() int {
	return v.GetInt("capture.default_fps")
}

// GetMinDelay returns the lower bound of the adaptive frame delay
func GetMinDelay() time.Duration {
	return time.Duration(v.GetInt("capture.min_delay_ms")) * time.Millisecond
}

// GetSmoothing returns the weight of the newest sample in the fps estimate
func GetSmoothing() float64 {
	return v.GetFloat64("capture.smoothing")
}

func GetFeedbackBuffer() int {
	return v.GetInt("capture.feedback_buffer")
}

// GetSurfaceBackend returns where shared surfaces live when producer and
// consumer run in one process (memory or shm)
func GetSurfaceBackend() string {
	return v.GetString("surface.backend")
}

// GetRemoteSurfaceBackend returns where shared surfaces live when producer
// and consumer are separate processes
func GetRemoteSurfaceBackend() string {
	return v.GetString("surface.remote_backend")
}

func GetShmDir() string {
	return v.GetString("surface.shm_dir")
}

// GetQuadDistance returns the gaze distance of the hologram in meters
func GetQuadDistance() float32 {
	return float32(v.GetFloat64("compositor.distance"))
}

// GetFadeDuration returns the length of a full fade in or out
func GetFadeDuration() time.Duration {
	return time.Duration(v.GetFloat64("compositor.fade_seconds") * float64(time.Second))
}

// GetVPRT reports whether the presenter may use single-pass instanced stereo
func GetVPRT() bool {
	return v.GetBool("compositor.vprt")
}

// AllSettings returns the effective settings, merged from defaults,
// environment and the config file.
func AllSettings() map[string]any {
	return v.AllSettings()
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}
