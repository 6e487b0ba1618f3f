// internal/config/defaults.go
package config

import (
	"github.com/cmux-cli/uiverify/internal/browser"
)

// Default wait settings
const (
	DefaultTimeoutMs      = 30000 // 30 seconds
	DefaultPollIntervalMs = 100
	DefaultSettleQuietMs  = 500
)

// Default browser settings
const (
	DefaultWindowWidth  = 1280
	DefaultWindowHeight = 720
)

const (
	DefaultBaseURL   = "http://localhost:5000"
	DefaultOutputDir = "artifacts"
)

// DefaultBrowserConfig returns default browser configuration
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Window: browser.Viewport{
			Width:  DefaultWindowWidth,
			Height: DefaultWindowHeight,
		},
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Home: HomeDir(),

		Target: TargetConfig{
			BaseURL: DefaultBaseURL,
			Credentials: CredentialsConfig{
				Email:    "${UIVERIFY_EMAIL}",
				Password: "${UIVERIFY_PASSWORD}",
			},
		},

		Wait: WaitConfig{
			TimeoutMs:      DefaultTimeoutMs,
			PollIntervalMs: DefaultPollIntervalMs,
			SettleQuietMs:  DefaultSettleQuietMs,
		},

		Browser: DefaultBrowserConfig(),

		Output: OutputConfig{Dir: DefaultOutputDir},

		Run: RunConfig{Parallel: 1},

		Vars: map[string]string{},

		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
