// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/wait"
)

// Config is the global uiverify configuration
type Config struct {
	// uiverify home directory
	Home string `yaml:"-"`

	// Target application settings
	Target TargetConfig `yaml:"target" json:"target"`

	// Wait bounds applied to every step
	Wait WaitConfig `yaml:"wait" json:"wait"`

	// Browser settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Output holds where screenshots and reports go
	Output OutputConfig `yaml:"output" json:"output"`

	Warmup WarmupConfig `yaml:"warmup" json:"warmup"`

	Run RunConfig `yaml:"run" json:"run"`

	// Vars are available to every scenario as ${name}
	Vars map[string]string `yaml:"vars" json:"vars"`

	Log LogConfig `yaml:"log" json:"log"`
}

// TargetConfig describes the application under test
type TargetConfig struct {
	// BaseURL is the target host; relative step URLs join it
	BaseURL     string            `yaml:"base_url" json:"base_url"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
}

// CredentialsConfig holds the login used by scenarios as ${email} and ${password}.
// Either value can be an env var reference like ${UIVERIFY_PASSWORD}.
type CredentialsConfig struct {
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
}

type WaitConfig struct {
	TimeoutMs      int `yaml:"timeout_ms" json:"timeout_ms"`
	PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	SettleQuietMs  int `yaml:"settle_quiet_ms" json:"settle_quiet_ms"`
}

// BrowserConfig holds Chrome settings
type BrowserConfig struct {
	Headless bool `yaml:"headless" json:"headless"`

	// ExecPath overrides Chrome discovery
	ExecPath string `yaml:"exec_path" json:"exec_path,omitempty"`

	// RemoteURL connects to an already running Chrome DevTools endpoint instead of
	// starting one
	RemoteURL string `yaml:"remote_url" json:"remote_url,omitempty"`

	Window    browser.Viewport `yaml:"window" json:"window"`
	UserAgent string           `yaml:"user_agent" json:"user_agent,omitempty"`
}

type OutputConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

type WarmupConfig struct {
	DelayMs int `yaml:"delay_ms" json:"delay_ms"`
}

type RunConfig struct {
	Parallel int `yaml:"parallel" json:"parallel"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// HomeDir returns the uiverify home directory
func HomeDir() string {
	if home := os.Getenv("UIVERIFY_HOME"); home != "" {
		return home
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".uiverify")
}

// Load loads the configuration from $UIVERIFY_HOME/config.yaml or returns defaults.
// An explicit path must exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(HomeDir(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg = expandConfigPaths(cfg)
			return cfg, cfg.applyEnv()
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg = expandConfigPaths(cfg)
	return cfg, cfg.applyEnv()
}

// expandConfigPaths expands all path fields in the config
func expandConfigPaths(cfg *Config) *Config {
	cfg.Home = HomeDir()
	cfg.Output.Dir = expandPath(cfg.Output.Dir)
	cfg.Browser.ExecPath = expandPath(cfg.Browser.ExecPath)
	return cfg
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// applyEnv applies UIVERIFY_* overrides.
func (c *Config) applyEnv() error {
	if v := os.Getenv("UIVERIFY_BASE_URL"); v != "" {
		c.Target.BaseURL = v
	}
	for name, dst := range map[string]*int{
		"UIVERIFY_TIMEOUT_MS":       &c.Wait.TimeoutMs,
		"UIVERIFY_POLL_INTERVAL_MS": &c.Wait.PollIntervalMs,
	} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %q is not a number", name, v)
			}
			*dst = n
		}
	}
	if v := os.Getenv("UIVERIFY_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UIVERIFY_HEADLESS: %q is not a boolean", v)
		}
		c.Browser.Headless = b
	}
	return nil
}

// resolveEnvRef resolves a ${NAME} reference from the environment. Other values are
// returned unchanged.
func resolveEnvRef(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}"))
	}
	return v
}

// BaseURL returns the target base URL without a trailing slash
func (c *Config) BaseURL() string {
	return strings.TrimRight(resolveEnvRef(c.Target.BaseURL), "/")
}

// Email returns the login email from config or environment
func (c *Config) Email() string {
	if c.Target.Credentials.Email != "" {
		return resolveEnvRef(c.Target.Credentials.Email)
	}
	return os.Getenv("UIVERIFY_EMAIL")
}

// Password returns the login password from config or environment
func (c *Config) Password() string {
	if c.Target.Credentials.Password != "" {
		return resolveEnvRef(c.Target.Credentials.Password)
	}
	return os.Getenv("UIVERIFY_PASSWORD")
}

// ScenarioVars returns the configured vars with env references resolved
func (c *Config) ScenarioVars() map[string]string {
	out := make(map[string]string, len(c.Vars))
	for k, v := range c.Vars {
		out[k] = resolveEnvRef(v)
	}
	return out
}

// WaitSpec returns the default wait bounds for steps
func (c *Config) WaitSpec() wait.Spec {
	return wait.Spec{
		Timeout:      time.Duration(c.Wait.TimeoutMs) * time.Millisecond,
		PollInterval: time.Duration(c.Wait.PollIntervalMs) * time.Millisecond,
	}
}

func (c *Config) SettleQuiet() time.Duration {
	return time.Duration(c.Wait.SettleQuietMs) * time.Millisecond
}

func (c *Config) WarmupDelay() time.Duration {
	return time.Duration(c.Warmup.DelayMs) * time.Millisecond
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []string

	if c.Wait.TimeoutMs <= 0 {
		errs = append(errs, "wait.timeout_ms must be positive")
	}
	if c.Wait.PollIntervalMs <= 0 {
		errs = append(errs, "wait.poll_interval_ms must be positive")
	} else if c.Wait.TimeoutMs > 0 && c.Wait.PollIntervalMs > c.Wait.TimeoutMs {
		errs = append(errs, "wait.poll_interval_ms must not exceed wait.timeout_ms")
	}
	if c.Wait.SettleQuietMs < 0 {
		errs = append(errs, "wait.settle_quiet_ms must not be negative")
	}

	if base := c.BaseURL(); base == "" {
		errs = append(errs, "target.base_url is required")
	} else if u, err := url.Parse(base); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("target.base_url %q must be an absolute http(s) URL", base))
	}

	if c.Browser.Window.Width < 1 || c.Browser.Window.Height < 1 {
		errs = append(errs, "browser.window width and height must be positive")
	}
	if c.Run.Parallel < 1 {
		errs = append(errs, "run.parallel must be at least 1")
	}
	if c.Warmup.DelayMs < 0 {
		errs = append(errs, "warmup.delay_ms must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
