package cleaner

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var articleHTML = `<!DOCTYPE html><html><head><title>Release notes</title></head><body>
<nav><a href="/">Home</a> <a href="/docs">Docs</a></nav>
<article><h1>Release notes</h1>
<p>` + strings.Repeat("This release improves the fetch pipeline considerably. ", 12) + `</p>
<p>See the <a href="/changelog#v2">changelog</a> for details.</p></article>
<footer>Copyright</footer></body></html>`

func TestClean_NonHTMLUnchanged(t *testing.T) {
	c := NewCleaner()
	sitemap := `<?xml version="1.0"?><urlset><url><loc>https://example.com/</loc></url></urlset>`

	out, err := c.Clean(sitemap, "https://example.com/sitemap.xml", Options{OutputFormat: FormatMarkdown, ExtractMode: ModeReadability})
	require.NoError(t, err)
	assert.Equal(t, sitemap, out)
}

func TestClean_RawPassThrough(t *testing.T) {
	out, err := NewCleaner().Clean(articleHTML, "https://example.com/notes", Options{})
	require.NoError(t, err)
	assert.Equal(t, articleHTML, out)
}

func TestClean_ReadabilityMarkdown(t *testing.T) {
	out, err := NewCleaner().Clean(articleHTML, "https://example.com/notes", Options{
		OutputFormat: FormatMarkdown,
		ExtractMode:  ModeReadability,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "This release improves the fetch pipeline")
	assert.Contains(t, out, "https://example.com/changelog")
	assert.NotContains(t, out, "<p>")
}

func TestClean_Selector(t *testing.T) {
	out, err := NewCleaner().Clean(articleHTML, "https://example.com/notes", Options{CSSSelector: "footer"})
	require.NoError(t, err)
	assert.Equal(t, "<footer>Copyright</footer>", out)

	_, err = NewCleaner().Clean(articleHTML, "https://example.com/notes", Options{CSSSelector: "[[["})
	assert.Error(t, err)
}

func TestClean_UnknownFormat(t *testing.T) {
	_, err := NewCleaner().Clean(articleHTML, "https://example.com/", Options{OutputFormat: "pdf"})
	assert.Error(t, err)
}

func TestExtractContent_ShortFallsBack(t *testing.T) {
	src, _ := url.Parse("https://example.com/")
	doc := "<html><body><p>tiny</p></body></html>"

	out, ok := ExtractContent(doc, src)
	assert.False(t, ok)
	assert.Equal(t, doc, out)

	_, ok = ExtractContent(articleHTML, src)
	assert.True(t, ok)
}

func TestApplyCSSSelector_NoMatch(t *testing.T) {
	out, err := ApplyCSSSelector(articleHTML, "table.missing")
	require.NoError(t, err)
	assert.Equal(t, articleHTML, out)
}

func TestApplyCSSSelector_Group(t *testing.T) {
	out, err := ApplyCSSSelector(`<html><body><h1>T</h1><p class="a">one</p><div>skip</div><p class="b">two</p></body></html>`, "p.b, p.a")
	require.NoError(t, err)
	assert.Equal(t, `<p class="a">one</p><p class="b">two</p>`, out, "document order, not selector order")
}

func TestExtractLinks(t *testing.T) {
	page := `<html><body>
<a href="/docs">Docs</a>
<a href="/docs#install">Install</a>
<a href="https://EXAMPLE.com/blog">Blog</a>
<a href="https://github.com/example">GitHub</a>
<a href="mailto:hi@example.com">Mail</a>
<a href="javascript:void(0)">JS</a>
<a href="">Empty</a>
</body></html>`

	links := ExtractLinks(page, "https://example.com/index.html")
	assert.Equal(t, []string{"https://example.com/docs", "https://EXAMPLE.com/blog"}, links.Internal)
	assert.Equal(t, []string{"https://github.com/example"}, links.External)
}

func TestExtractLinks_BaseHref(t *testing.T) {
	page := `<html><head><base href="https://example.com/v2/"></head><body><a href="guide">Guide</a></body></html>`
	links := ExtractLinks(page, "https://example.com/")
	assert.Equal(t, []string{"https://example.com/v2/guide"}, links.Internal)
}

func TestSitemapURLs(t *testing.T) {
	urls, isIndex, err := SitemapURLs(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc> https://example.com/a </loc></url>
  <url><loc>https://example.com/b</loc></url>
  <url><loc></loc></url>
</urlset>`)
	require.NoError(t, err)
	assert.False(t, isIndex)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)

	urls, isIndex, err = SitemapURLs(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
</sitemapindex>`)
	require.NoError(t, err)
	assert.True(t, isIndex)
	assert.Equal(t, []string{"https://example.com/sitemap-1.xml"}, urls)

	_, _, err = SitemapURLs("<html>")
	assert.Error(t, err)
}

func TestRobotsSitemaps(t *testing.T) {
	robots := "User-agent: *\nDisallow: /private\n# Sitemap: https://example.com/commented.xml\nsitemap: https://example.com/sitemap.xml # main\nSitemap:\n"
	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, RobotsSitemaps(robots))
	assert.Empty(t, RobotsSitemaps("User-agent: *"))
}
