package cleaner

import (
	"fmt"
	"net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/use-agent/racefetch/validate"
)

// Output formats and extract modes accepted by Clean.
const (
	FormatRaw      = "raw"
	FormatMarkdown = "markdown"

	ModeRaw         = "raw"
	ModeReadability = "readability"
)

// Options selects the post-processing applied to an acquired document.
type Options struct {
	OutputFormat string
	ExtractMode  string
	CSSSelector  string
}

// Cleaner post-processes the winning document of a race. The markdown
// converter is created once and shared by all requests.
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// Clean applies opts to text acquired from sourceURL.
//
// Only HTML documents are transformed. Sitemaps, robots files, JSON and
// plain text are returned unchanged whatever the options say.
//
// Flow:
//  1. Narrow to CSSSelector matches (if set).
//  2. ExtractMode "readability": keep the main article.
//  3. OutputFormat "markdown": convert to Markdown.
func (c *Cleaner) Clean(text string, sourceURL string, opts Options) (string, error) {
	if !validate.LooksLikeHTML(text) {
		return text, nil
	}
	source, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("cleaner: source url: %w", err)
	}

	// ── 1. Selector ─────────────────────────────────────────────────
	doc := text
	if opts.CSSSelector != "" {
		doc, err = ApplyCSSSelector(doc, opts.CSSSelector)
		if err != nil {
			return "", fmt.Errorf("cleaner: css selector %q: %w", opts.CSSSelector, err)
		}
	}

	// ── 2. Extraction ───────────────────────────────────────────────
	if opts.ExtractMode == ModeReadability {
		doc, _ = ExtractContent(doc, source)
	}

	// ── 3. Format ───────────────────────────────────────────────────
	switch opts.OutputFormat {
	case FormatMarkdown:
		return c.markdown(doc, source)
	case FormatRaw, "":
		return doc, nil
	default:
		return "", fmt.Errorf("cleaner: unknown output format %q", opts.OutputFormat)
	}
}
