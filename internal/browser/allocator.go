package browser

import (
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// allocatorFlag is a single Chrome command-line switch.
type allocatorFlag struct {
	Name  string
	Value interface{}
}

// baseFlags mirrors chromedp's default allocator flags with enable-automation
// removed, since it shows the "controlled by automated software" infobar and
// sets navigator.webdriver.
var baseFlags = []allocatorFlag{
	{"disable-background-networking", true},
	{"enable-features", "NetworkService,NetworkServiceInProcess"},
	{"disable-background-timer-throttling", true},
	{"disable-backgrounding-occluded-windows", true},
	{"disable-breakpad", true},
	{"disable-client-side-phishing-detection", true},
	{"disable-default-apps", true},
	{"disable-hang-monitor", true},
	{"disable-ipc-flooding-protection", true},
	{"disable-popup-blocking", true},
	{"disable-prompt-on-repost", true},
	{"disable-renderer-backgrounding", true},
	{"disable-sync", true},
	{"force-color-profile", "srgb"},
	{"metrics-recording-only", true},
	{"safebrowsing-disable-auto-update", true},
	{"password-store", "basic"},
	{"use-mock-keychain", true},
}

// allocatorFlags assembles the switches for the browser process.
func allocatorFlags(cfg config.BrowserConfig, goos string) []allocatorFlag {
	flags := append([]allocatorFlag(nil), baseFlags...)
	flags = append(flags,
		allocatorFlag{"headless", cfg.Headless},
		allocatorFlag{"disable-blink-features", "AutomationControlled"},
		allocatorFlag{"disable-extensions", true},
		allocatorFlag{"disable-gpu", cfg.Headless},
	)
	if cfg.Headless {
		flags = append(flags, allocatorFlag{"hide-scrollbars", true}, allocatorFlag{"mute-audio", true})
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags,
			allocatorFlag{"ignore-certificate-errors", true},
			allocatorFlag{"allow-insecure-localhost", true},
		)
	}
	if cfg.DisableCache {
		flags = append(flags,
			allocatorFlag{"disk-cache-size", "1"},
			allocatorFlag{"media-cache-size", "1"},
			allocatorFlag{"disable-cache", true},
		)
	}

	// Flags required for running inside containers.
	if goos == "linux" {
		flags = append(flags,
			allocatorFlag{"no-sandbox", true},
			allocatorFlag{"disable-dev-shm-usage", true},
			allocatorFlag{"disable-setuid-sandbox", true},
		)
	}

	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if found {
			flags = append(flags, allocatorFlag{name, value})
		} else {
			flags = append(flags, allocatorFlag{name, true})
		}
	}
	return flags
}

// windowSize resolves the browser window size from the viewport override or
// the persona.
func windowSize(cfg config.BrowserConfig, persona schemas.Persona) (int, int) {
	w, h := cfg.Viewport["width"], cfg.Viewport["height"]
	if w > 0 && h > 0 {
		return w, h
	}
	return int(persona.Width), int(persona.Height)
}

// DefaultAllocatorOptions builds the chromedp allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig, persona schemas.Persona) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	for _, f := range allocatorFlags(cfg, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if persona.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(persona.UserAgent))
	}
	if w, h := windowSize(cfg, persona); w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	return opts
}
