package validate

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
)

// sniffLen bounds how much of a document is inspected for HTML markers.
const sniffLen = 1024

// minArticleLength is the minimum readable text for the article gate.
const minArticleLength = 200

// challengeSelectors match elements injected by common bot-defense and
// captcha interstitials.
var challengeSelectors = []cascadia.Selector{
	cascadia.MustCompile("#challenge-form, #challenge-running, #cf-challenge-running, .cf-browser-verification"),
	cascadia.MustCompile("#cf-wrapper #cf-error-details, .cf-error-overview"),
	cascadia.MustCompile(".g-recaptcha, .h-captcha, #px-captcha, #distil_ident_block"),
	cascadia.MustCompile(`iframe[src*="captcha"], script[src*="challenge-platform"]`),
}

// challengeTitles are lower-cased title fragments of interstitial pages.
var challengeTitles = []string{
	"just a moment",
	"attention required",
	"access denied",
	"are you a robot",
	"verify you are human",
	"ddos-guard",
	"security check",
	"captcha",
	"please wait while we verify",
}

// placeholderURL gives readability a base when the real target is unknown.
var placeholderURL = &url.URL{Scheme: "https", Host: "document.invalid", Path: "/"}

// LooksLikeHTML sniffs the head of text for HTML markers.
func LooksLikeHTML(text string) bool {
	head := strings.TrimSpace(text)
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	head = strings.ToLower(head)
	return strings.HasPrefix(head, "<!doctype html") ||
		strings.Contains(head, "<html") ||
		strings.Contains(head, "<head") ||
		strings.Contains(head, "<body")
}

// isChallenge reports whether an HTML text is a bot challenge or captcha page.
func isChallenge(text string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return false
	}
	return challengeDoc(doc)
}

func challengeDoc(doc *goquery.Document) bool {
	for _, sel := range challengeSelectors {
		if doc.FindMatcher(sel).Length() > 0 {
			return true
		}
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, frag := range challengeTitles {
		if strings.Contains(title, frag) {
			return true
		}
	}
	return false
}

// HTMLPage accepts an HTML document with a body that is not a bot challenge.
func HTMLPage(text string) bool {
	if !LooksLikeHTML(text) {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return false
	}
	if challengeDoc(doc) {
		return false
	}
	return strings.TrimSpace(doc.Find("body").Text()) != ""
}

// Article accepts an HTML page from which readability extracts a
// reasonably long article.
func Article(text string) bool {
	if !HTMLPage(text) {
		return false
	}
	article, err := readability.FromReader(strings.NewReader(text), placeholderURL)
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(article.TextContent)) >= minArticleLength
}

func describePage(text string) string {
	switch {
	case strings.TrimSpace(text) == "":
		return "empty response"
	case !LooksLikeHTML(text):
		return "not an HTML page"
	case isChallenge(text):
		return "bot challenge page"
	default:
		return "HTML page without body content"
	}
}

func describeArticle(text string) string {
	if HTMLPage(text) {
		return "no readable article content"
	}
	return describePage(text)
}
