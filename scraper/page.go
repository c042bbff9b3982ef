package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// rawFetchJS re-reads the current document with a same-origin fetch so the
// caller gets the served bytes rather than the browser's rendering of them.
// Cookies set while passing a challenge page are sent along.
const rawFetchJS = `async (u) => {
	const r = await fetch(u, { credentials: "include", cache: "no-store" });
	if (!r.ok) throw new Error("HTTP " + r.status);
	return await r.text();
}`

// serializeJS is the fallback when the raw fetch fails: plain-text documents
// are read from the body, everything else is serialized.
const serializeJS = `() => {
	const ct = document.contentType || "";
	if (ct.startsWith("text/plain") || ct.startsWith("application/json")) {
		return document.body ? document.body.innerText : "";
	}
	return new XMLSerializer().serializeToString(document);
}`

// Render loads target in a pooled browser tab and returns the document text.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Acquire page     – borrow a tab from the pool (or create one)
//  2. DEFER: cleanup   – about:blank + return to pool
//  3. Stealth          – mask navigator.webdriver etc. (before navigation!)
//  4. Headers + hijack – Referer, blocked resource types, ad domains
//  5. Navigate         – bound to ctx so the race can cancel it
//  6. Settle           – wait for load and a stable DOM (challenge pages
//     usually redirect to the real document here)
//  7. Read             – raw same-origin fetch, falling back to serialization
func (s *Scraper) Render(ctx context.Context, target string, useStealth bool) (string, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return "", fmt.Errorf("invalid target: %w", err)
	}

	// ── 1. Acquire page from pool ─────────────────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, err := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return "", fmt.Errorf("acquire page: %w", err)
	}

	// ── 2. Cleanup uses the page without ctx so it runs after cancellation.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		s.pagePool.Put(page)
	}()

	// ── 3. Stealth injection ──────────────────────────────────────────
	if useStealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 4. Headers + hijack ───────────────────────────────────────────
	if u, parseErr := url.Parse(target); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
			}),
		}.Call(page)
	}
	router := setupHijack(page, s.cfg.BlockedResourceTypes, s.cfg.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)
	if s.cfg.NavigationTimeout > 0 {
		p = p.Timeout(s.cfg.NavigationTimeout)
	}

	// ── 5. Navigate ───────────────────────────────────────────────────
	if err := p.Navigate(target); err != nil {
		return "", categorizeError(err, "navigation failed")
	}

	// ── 6. Settle ─────────────────────────────────────────────────────
	if err := p.WaitLoad(); err != nil {
		return "", categorizeError(err, "page load failed")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	// ── 7. Read the document ──────────────────────────────────────────
	rp := page.Context(ctx)
	res, err := rp.Eval(rawFetchJS, target)
	if err == nil {
		return res.Value.Str(), nil
	}
	if ctx.Err() != nil {
		return "", categorizeError(err, "raw fetch interrupted")
	}
	slog.Debug("in-page fetch failed, serializing document", "target", target, "error", err)

	res, err = rp.Eval(serializeJS)
	if err != nil {
		return "", categorizeError(err, "read document")
	}
	return res.Value.Str(), nil
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError keeps cancellation recognizable to the race while giving
// other browser failures a readable prefix.
func categorizeError(err error, msg string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", msg, context.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: browser timed out: %w", msg, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
