// Package validate holds the gates that decide whether a fetched text is the
// document we asked for. Every gate is pure and tolerates arbitrary input.
package validate

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/use-agent/racefetch/engine"
)

// Gate pairs a validator with the describer used for its rejections.
type Gate struct {
	Name     string
	Validate engine.Validator
	Describe engine.Describer
}

var gates = map[string]Gate{
	"any":     {Name: "any", Validate: NonEmpty, Describe: Describe},
	"sitemap": {Name: "sitemap", Validate: Sitemap, Describe: Describe},
	"robots":  {Name: "robots", Validate: Robots, Describe: Describe},
	"json":    {Name: "json", Validate: JSON, Describe: Describe},
	"llms":    {Name: "llms", Validate: LLMsTxt, Describe: Describe},
	"html":    {Name: "html", Validate: HTMLPage, Describe: describePage},
	"article": {Name: "article", Validate: Article, Describe: describeArticle},
}

// ByName resolves a gate by its API name.
func ByName(name string) (Gate, bool) {
	g, ok := gates[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// Names lists the registered gate names, sorted.
func Names() []string {
	names := make([]string, 0, len(gates))
	for n := range gates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NonEmpty accepts any text with non-whitespace content that is not a bot
// challenge page.
func NonEmpty(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return !(LooksLikeHTML(text) && isChallenge(text))
}

// Sitemap accepts a well-formed XML document whose root is <urlset> or
// <sitemapindex>.
func Sitemap(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true
	root := ""
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false
		}
		if se, ok := tok.(xml.StartElement); ok && root == "" {
			root = se.Name.Local
			if root != "urlset" && root != "sitemapindex" {
				return false
			}
		}
	}
	return root != ""
}

// robotsDirectives are the field names accepted as robots.txt lines.
var robotsDirectives = map[string]struct{}{
	"user-agent":  {},
	"disallow":    {},
	"allow":       {},
	"sitemap":     {},
	"crawl-delay": {},
	"host":        {},
	"clean-param": {},
}

// Robots accepts robots.txt content: no HTML and at least one known
// directive. Unknown "field: value" lines and comments are tolerated.
func Robots(text string) bool {
	if strings.TrimSpace(text) == "" || LooksLikeHTML(text) {
		return false
	}
	known := 0
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		field, _, ok := strings.Cut(line, ":")
		if !ok {
			return false
		}
		if _, ok := robotsDirectives[strings.ToLower(strings.TrimSpace(field))]; ok {
			known++
		}
	}
	if sc.Err() != nil {
		return false
	}
	return known > 0
}

// JSON accepts a valid JSON object or array.
func JSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid([]byte(trimmed))
}

// LLMsTxt accepts an llms.txt style markdown file: the first non-empty line
// is a level-one heading and the text is not HTML.
func LLMsTxt(text string) bool {
	if LooksLikeHTML(text) {
		return false
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.HasPrefix(line, "# ") && len(strings.TrimSpace(line[2:])) > 0
	}
	return false
}

// Describe explains why text was rejected by a structured-format gate.
func Describe(text string) string {
	switch {
	case strings.TrimSpace(text) == "":
		return "empty response"
	case LooksLikeHTML(text) && isChallenge(text):
		return "bot challenge page"
	case LooksLikeHTML(text):
		return "unexpected HTML page"
	default:
		return "not the expected format"
	}
}
