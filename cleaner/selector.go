package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ApplyCSSSelector keeps only the elements of rawHTML matched by selector,
// concatenated in document order. A selector matching nothing leaves the
// document untouched.
func ApplyCSSSelector(rawHTML string, selector string) (string, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	matched := doc.FindMatcher(matcher)
	if matched.Length() == 0 {
		return rawHTML, nil
	}

	var b strings.Builder
	for i := range matched.Nodes {
		outer, err := goquery.OuterHtml(matched.Eq(i))
		if err != nil {
			return "", err
		}
		b.WriteString(outer)
	}
	return b.String(), nil
}
