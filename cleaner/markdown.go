package cleaner

import (
	"fmt"
	"net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// The converter is safe for concurrent use, so one instance serves every
// request.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal)),
		),
	)
}

// markdown renders doc as Markdown. Relative links resolve against the
// origin of source.
func (c *Cleaner) markdown(doc string, source *url.URL) (string, error) {
	origin := (&url.URL{Scheme: source.Scheme, Host: source.Host}).String()
	md, err := c.mdConverter.ConvertString(doc, converter.WithDomain(origin))
	if err != nil {
		return "", fmt.Errorf("cleaner: markdown conversion: %w", err)
	}
	return md, nil
}
