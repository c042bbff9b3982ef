package cleaner

import (
	"log/slog"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the shortest readable text accepted from readability.
// Anything shorter means the main content was not found.
const minContentLength = 50

// ExtractContent returns the main-content HTML of an acquired document.
// It reports false and returns rawHTML unchanged when readability cannot
// locate an article; acquisition never fails because extraction did.
func ExtractContent(rawHTML string, source *url.URL) (string, bool) {
	article, err := readability.FromReader(strings.NewReader(rawHTML), source)
	if err != nil {
		slog.Warn("readability: extraction failed, keeping document",
			"url", source.String(), "error", err,
		)
		return rawHTML, false
	}

	if n := len(strings.TrimSpace(article.TextContent)); n < minContentLength {
		slog.Debug("readability: extracted content too short, keeping document",
			"url", source.String(), "length", n,
		)
		return rawHTML, false
	}
	return article.Content, true
}
