package scraper

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/racefetch/config"
	"github.com/use-agent/racefetch/models"
)

// Scraper owns the headless browser behind the render strategies and its
// reusable page pool. It is safe for concurrent use.
type Scraper struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	cfg         config.BrowserConfig
	activePages atomic.Int32
}

// launchFlags hide automation markers and keep background tabs running at
// full speed. A nil value sets a bare switch.
var launchFlags = []struct {
	name   flags.Flag
	values []string
}{
	{"disable-blink-features", []string{"AutomationControlled"}},
	{"disable-features", []string{"AudioServiceOutOfProcess,TranslateUI"}},
	{"disable-background-timer-throttling", nil},
	{"disable-renderer-backgrounding", nil},
	{"disable-component-update", nil},
	{"disable-default-apps", nil},
	{"disable-dev-shm-usage", nil},
	{"disable-extensions", nil},
	{"no-first-run", nil},
}

func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	for _, f := range launchFlags {
		l = l.Set(f.name, f.values...)
	}
	return l.Delete("enable-automation")
}

// NewScraper launches the browser and sizes the page pool by cfg.MaxPages.
func NewScraper(cfg config.BrowserConfig) (*Scraper, error) {
	l := newLauncher(cfg)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("scraper: launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("scraper: connect to browser at %s: %w", controlURL, err)
	}

	cfg.MaxPages = max(cfg.MaxPages, 1)
	slog.Info("browser ready", "max_pages", cfg.MaxPages, "proxy", cfg.Proxy != "")

	return &Scraper{
		browser:  browser,
		pagePool: rod.NewPagePool(cfg.MaxPages),
		cfg:      cfg,
	}, nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    s.cfg.MaxPages,
		ActivePages: int(s.activePages.Load()),
	}
}

// Close closes every pooled tab, then the browser.
func (s *Scraper) Close() {
	s.pagePool.Cleanup(func(p *rod.Page) { _ = p.Close() })
	if err := s.browser.Close(); err != nil {
		slog.Warn("close browser", "error", err)
		return
	}
	slog.Info("browser closed")
}
