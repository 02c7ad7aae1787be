// Package browser provides the chromedp-backed browser session with anti-bot-detection measures.
package browser

import (
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/hcrenew/internal/config"
)

// Flags returns the Chrome command-line switches for cfg. A false value
// removes a switch that chromedp would otherwise pass.
func Flags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless": cfg.Headless,

		// Prevent navigator.webdriver = true detection
		"disable-blink-features": "AutomationControlled",
		// chromedp passes --enable-automation by default, which shows the
		// "controlled by automated software" bar and sets webdriver flags.
		"enable-automation": false,

		// Containers and CI runners
		"no-sandbox":            true,
		"disable-dev-shm-usage": true,
		"disable-gpu":           true,

		"start-maximized":          true,
		"disable-extensions":       true,
		"disable-default-apps":     true,
		"disable-infobars":         true,
		"no-first-run":             true,
		"no-default-browser-check": true,
	}

	if langs := cfg.Fingerprint.Languages; len(langs) > 0 {
		flags["lang"] = langs[0]
	}

	return flags
}

// Options returns chromedp allocator options with anti-bot-detection measures.
// All browser instances should use this to ensure consistent stealth configuration.
func Options(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	for name, value := range Flags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}

	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	return opts
}
