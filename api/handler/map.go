package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/racefetch/cleaner"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/models"
	"github.com/use-agent/racefetch/validate"
	"golang.org/x/sync/errgroup"
)

const (
	// maxSitemapFetches bounds child sitemaps raced after the first round.
	maxSitemapFetches = 16

	// sitemapConcurrency bounds concurrent child-sitemap races.
	sitemapConcurrency = 4

	// maxMapURLs caps the number of URLs returned.
	maxMapURLs = 5000
)

// PostMap returns a handler for POST /api/v1/map.
//
// Discovery flow:
//  1. Race /sitemap.xml and /robots.txt concurrently.
//  2. Follow sitemap indexes and robots Sitemap lines (bounded).
//  3. With no sitemap URLs, race the page itself and keep same-host links.
func PostMap(d *engine.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		parsed, err := url.Parse(req.URL)
		if err != nil || parsed.Host == "" {
			badRequest(c, "invalid URL")
			return
		}
		origin := parsed.Scheme + "://" + parsed.Host

		urls, err := discover(c.Request.Context(), d, origin)
		if err != nil {
			respondMapError(c, err)
			return
		}
		source := "sitemap"

		if len(urls) == 0 {
			source = "links"
			urls, err = homeLinks(c.Request.Context(), d, req.URL)
			if err != nil {
				respondMapError(c, err)
				return
			}
		}

		if len(urls) > maxMapURLs {
			urls = urls[:maxMapURLs]
		}
		c.JSON(http.StatusOK, models.MapResponse{
			Success: true,
			URLs:    urls,
			Total:   len(urls),
			Source:  source,
		})
	}
}

// urlSet collects unique URLs in discovery order.
type urlSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
	list []string
}

func (s *urlSet) add(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		if _, ok := s.seen[u]; ok {
			continue
		}
		s.seen[u] = struct{}{}
		s.list = append(s.list, u)
	}
}

// discover races the well-known discovery documents of origin and returns
// every page URL found in its sitemaps. Only caller cancellation is an error;
// a missing sitemap or robots file just yields fewer URLs.
func discover(ctx context.Context, d *engine.Dispatcher, origin string) ([]string, error) {
	rootSitemap := origin + "/sitemap.xml"
	var sitemapText, robotsText string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := raceDocument(gctx, d, rootSitemap, "sitemap")
		sitemapText = text
		return err
	})
	g.Go(func() error {
		text, err := raceDocument(gctx, d, origin+"/robots.txt", "robots")
		robotsText = text
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := &urlSet{seen: make(map[string]struct{})}
	visited := map[string]struct{}{rootSitemap: {}}
	var pending []string

	if sitemapText != "" {
		urls, isIndex, err := cleaner.SitemapURLs(sitemapText)
		switch {
		case err != nil:
			slog.Debug("map: unparsable sitemap", "url", rootSitemap, "error", err)
		case isIndex:
			pending = append(pending, urls...)
		default:
			found.add(urls...)
		}
	}
	pending = append(pending, cleaner.RobotsSitemaps(robotsText)...)

	// ── Follow child sitemaps, breadth first ────────────────────────
	fetches := 0
	for len(pending) > 0 && fetches < maxSitemapFetches {
		var next []string
		var nextMu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(sitemapConcurrency)
		for _, sm := range pending {
			if _, ok := visited[sm]; ok {
				continue
			}
			if fetches >= maxSitemapFetches {
				break
			}
			visited[sm] = struct{}{}
			fetches++

			g.Go(func() error {
				text, err := raceDocument(gctx, d, sm, "sitemap")
				if err != nil || text == "" {
					return err
				}
				urls, isIndex, perr := cleaner.SitemapURLs(text)
				if perr != nil {
					return nil
				}
				if isIndex {
					nextMu.Lock()
					next = append(next, urls...)
					nextMu.Unlock()
					return nil
				}
				found.add(urls...)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		pending = next
	}

	return found.list, nil
}

// homeLinks races the page as HTML and returns its same-host links.
func homeLinks(ctx context.Context, d *engine.Dispatcher, pageURL string) ([]string, error) {
	gate, _ := validate.ByName("html")
	result, err := d.Dispatch(ctx, pageURL, gate.Validate, engine.RaceConfig{Describe: gate.Describe})
	if err != nil {
		return nil, err
	}
	return cleaner.ExtractLinks(result.Text, pageURL).Internal, nil
}

// raceDocument races target under the named gate. A failed race yields ""
// with no error; caller cancellation is returned.
func raceDocument(ctx context.Context, d *engine.Dispatcher, target, gateName string) (string, error) {
	gate, _ := validate.ByName(gateName)
	result, err := d.Dispatch(ctx, target, gate.Validate, engine.RaceConfig{Describe: gate.Describe})
	if err != nil {
		if errors.Is(err, engine.ErrExternallyCancelled) {
			return "", err
		}
		slog.Debug("map: discovery document unavailable", "url", target, "error", err)
		return "", nil
	}
	return result.Text, nil
}

func respondMapError(c *gin.Context, err error) {
	ae := toAcquireError(err)
	slog.Warn("map failed", "code", ae.Code, "error", err)
	c.JSON(mapErrorToStatus(ae), models.MapResponse{
		Success: false,
		URLs:    []string{},
		Error:   ae.ToDetail(),
	})
}
