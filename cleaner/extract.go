package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Links separates the links of a page by whether they stay on its host.
type Links struct {
	Internal []string
	External []string
}

// ExtractLinks returns the absolute http(s) links of an HTML document,
// deduplicated, with fragments removed.
func ExtractLinks(rawHTML string, sourceURL string) Links {
	result := Links{
		Internal: []string{},
		External: []string{},
	}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return result
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return result
	}

	// A <base href> changes how relative links resolve.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}

		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		// Skip javascript:, mailto:, tel: etc.
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""

		absURL := resolved.String()
		if _, ok := seen[absURL]; ok {
			return
		}
		seen[absURL] = struct{}{}

		if strings.EqualFold(resolved.Host, base.Host) {
			result.Internal = append(result.Internal, absURL)
		} else {
			result.External = append(result.External, absURL)
		}
	})

	return result
}
