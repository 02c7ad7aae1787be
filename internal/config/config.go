package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ibeckermayer/hcrenew/internal/locator"
)

// DefaultTargetURL is the server page of the free panel. Unauthenticated
// requests are redirected to the login form.
const DefaultTargetURL = "https://freepanel.hidencloud.com/server/2870cdbb"

// Config holds all application configuration
type Config struct {
	Version    int            `toml:"version"`
	TargetURL  string         `toml:"target_url"`
	Screenshot string         `toml:"screenshot"`
	Timeouts   TimeoutsConfig `toml:"timeouts"`
	Browser    BrowserConfig  `toml:"browser"`
	Schedule   ScheduleConfig `toml:"schedule"`
	Locators   locator.Set    `toml:"locators"`
}

// TimeoutsConfig bounds every wait in the flow.
type TimeoutsConfig struct {
	// Settle is the fixed pause after navigation for interstitial challenges.
	Settle Duration `toml:"settle"`
	// Locator bounds each element wait.
	Locator Duration `toml:"locator"`
	// HumanCheck bounds the frame and checkbox waits.
	HumanCheck Duration `toml:"human_check"`
	// Restart is the pause after clicking start/restart.
	Restart Duration `toml:"restart"`
	// Run bounds a whole renewal, browser launch included.
	Run Duration `toml:"run"`
}

type BrowserConfig struct {
	Headless     bool        `toml:"headless"`
	ExecPath     string      `toml:"exec_path"`
	UserAgent    string      `toml:"user_agent"`
	WindowWidth  int         `toml:"window_width"`
	WindowHeight int         `toml:"window_height"`
	Fingerprint  Fingerprint `toml:"fingerprint"`
}

// Fingerprint is the navigator/WebGL identity presented to the site.
type Fingerprint struct {
	Languages     []string `toml:"languages"`
	Vendor        string   `toml:"vendor"`
	Platform      string   `toml:"platform"`
	WebGLVendor   string   `toml:"webgl_vendor"`
	WebGLRenderer string   `toml:"webgl_renderer"`
	FixHairline   bool     `toml:"fix_hairline"`
}

type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

// Duration lets TOML carry values like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version:    1,
		TargetURL:  DefaultTargetURL,
		Screenshot: "error_screenshot.png",
		Timeouts: TimeoutsConfig{
			Settle:     Duration{10 * time.Second},
			Locator:    Duration{30 * time.Second},
			HumanCheck: Duration{10 * time.Second},
			Restart:    Duration{15 * time.Second},
			Run:        Duration{5 * time.Minute},
		},
		Browser: BrowserConfig{
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:  1920,
			WindowHeight: 1080,
			Fingerprint: Fingerprint{
				Languages:     []string{"en-US", "en"},
				Vendor:        "Google Inc.",
				Platform:      "Win32",
				WebGLVendor:   "Intel Inc.",
				WebGLRenderer: "Intel Iris OpenGL Engine",
				FixHairline:   true,
			},
		},
		Schedule: ScheduleConfig{
			Cron:     "0 9 * * *",
			Timezone: "UTC",
		},
		Locators: locator.Default(),
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.TargetURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("target_url %q is not an absolute URL", c.TargetURL))
	}
	if c.Screenshot == "" {
		errs = append(errs, errors.New("screenshot path is required"))
	}

	for name, d := range map[string]Duration{
		"settle":      c.Timeouts.Settle,
		"human_check": c.Timeouts.HumanCheck,
		"restart":     c.Timeouts.Restart,
	} {
		if d.Duration < 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must not be negative", name))
		}
	}
	if c.Timeouts.Locator.Duration <= 0 {
		errs = append(errs, errors.New("timeouts.locator must be positive"))
	}
	if c.Timeouts.Run.Duration <= 0 {
		errs = append(errs, errors.New("timeouts.run must be positive"))
	}

	if err := c.Locators.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "hcrenew"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from the default location. A missing file yields the
// defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path on top of the defaults, so a file only
// needs the keys it changes. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// An explicit empty list would leave the login step nothing to try.
	if md.IsDefined("locators", "login") && len(cfg.Locators.Login) == 0 {
		return nil, fmt.Errorf("%s: locators.login is defined but empty", path)
	}

	return cfg, nil
}

// SaveTo writes config to path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
