package cleaner

import (
	"encoding/xml"
	"strings"
)

type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// SitemapURLs returns the page locations of a urlset, or the child sitemap
// locations of a sitemapindex with isIndex set.
func SitemapURLs(text string) (urls []string, isIndex bool, err error) {
	var doc sitemapDoc
	if err := xml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, false, err
	}

	isIndex = doc.XMLName.Local == "sitemapindex"
	locs := doc.URLs
	if isIndex {
		locs = doc.Sitemaps
	}
	urls = make([]string, 0, len(locs))
	for _, l := range locs {
		if loc := strings.TrimSpace(l.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, isIndex, nil
}

// RobotsSitemaps returns the URLs of every Sitemap directive in a robots.txt.
func RobotsSitemaps(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "sitemap") {
			continue
		}
		if v := strings.TrimSpace(value); v != "" {
			out = append(out, v)
		}
	}
	return out
}
