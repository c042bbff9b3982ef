// Package app assembles the racing stack from configuration. It is shared
// by the HTTP server and the CLI.
package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/racefetch/cache"
	"github.com/use-agent/racefetch/config"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/scraper"
)

// Stack owns every long-lived component behind a Dispatcher.
type Stack struct {
	Dispatcher *engine.Dispatcher
	Memory     *engine.DomainMemory

	// Scraper is nil when no render strategy is enabled or the browser
	// failed to launch.
	Scraper *scraper.Scraper

	// Cache is nil when caching is disabled.
	Cache *cache.Cache
}

// Build creates the stack described by cfg. A browser that fails to launch
// drops the render strategies instead of failing the whole stack.
func Build(cfg *config.Config) (*Stack, error) {
	st := &Stack{}

	var tc engine.TextCache
	if cfg.Cache.Enabled {
		st.Cache = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		tc = st.Cache
	}

	var render engine.RenderFunc
	if cfg.Browser.Enabled && wantsRender(cfg.Race.Strategies) {
		sc, err := scraper.NewScraper(cfg.Browser)
		if err != nil {
			slog.Warn("browser unavailable, render strategies disabled", "error", err)
		} else {
			st.Scraper = sc
			render = sc.Render
		}
	}

	strategies, err := BuildStrategies(cfg, render, tc)
	if err != nil {
		st.Close()
		return nil, err
	}

	st.Memory = engine.NewDomainMemory(cfg.Race.MemoryTTL, time.Hour)
	st.Dispatcher, err = engine.NewDispatcher(strategies, engine.RaceConfig{
		PerStrategyTimeout: cfg.Race.PerStrategyTimeout,
		OverallTimeout:     cfg.Race.OverallTimeout,
	}, st.Memory)
	if err != nil {
		st.Close()
		return nil, err
	}

	slog.Info("strategies registered", "strategies", st.Dispatcher.Strategies())
	return st, nil
}

// BuildStrategies turns the configured strategy kinds into strategies, in
// order. render may be nil, in which case render kinds are skipped. tc may
// be nil to disable caching.
func BuildStrategies(cfg *config.Config, render engine.RenderFunc, tc engine.TextCache) ([]engine.Strategy, error) {
	var out []engine.Strategy
	add := func(s engine.Strategy) {
		if tc != nil && cfg.Cache.MaxAge > 0 {
			s = engine.Cached(s, tc, cfg.Cache.MaxAge)
		}
		out = append(out, s)
	}

	for _, kind := range cfg.Race.Strategies {
		switch k := strings.ToLower(strings.TrimSpace(kind)); k {
		case "direct":
			s, err := engine.NewDirectStrategy()
			if err != nil {
				return nil, err
			}
			add(s)

		case "proxy":
			if cfg.Proxy == "" {
				slog.Debug("no proxy configured, skipping proxy strategy")
				continue
			}
			s, err := engine.NewDirectStrategy(engine.WithProxy(cfg.Proxy))
			if err != nil {
				return nil, err
			}
			add(s)

		case "relay":
			for _, rc := range cfg.Relays {
				s, err := engine.NewRelayStrategy(engine.RelayConfig{
					Name:              rc.Name,
					Endpoint:          rc.Endpoint,
					Envelope:          rc.Envelope,
					RequestsPerSecond: rc.RequestsPerSecond,
					Burst:             rc.Burst,
				}, nil)
				if err != nil {
					return nil, err
				}
				add(s)
			}

		case "render", "render-stealth":
			if render == nil {
				slog.Debug("no browser, skipping strategy", "strategy", k)
				continue
			}
			add(engine.NewRenderStrategy(render, k == "render-stealth"))

		default:
			return nil, fmt.Errorf("%w: unknown strategy kind %q", engine.ErrConfiguration, kind)
		}
	}
	return out, nil
}

func wantsRender(kinds []string) bool {
	for _, k := range kinds {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "render", "render-stealth":
			return true
		}
	}
	return false
}

// Close releases the browser, cache and memory goroutines.
func (s *Stack) Close() {
	if s.Memory != nil {
		s.Memory.Stop()
	}
	if s.Cache != nil {
		s.Cache.Stop()
	}
	if s.Scraper != nil {
		s.Scraper.Close()
	}
}
