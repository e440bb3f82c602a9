package extract

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// Snippeter builds bounded text snippets for the classification payload.
// Readable article HTML is sanitised and converted to markdown, which
// preserves headings and list structure the classifier can use; when no
// readable region exists the plain fallback text is used instead.
type Snippeter struct {
	sanitiser *bluemonday.Policy
	converter *converter.Converter
	minLen    int
}

// NewSnippeter creates a Snippeter. minLen is the minimum clean text
// length for the readable path to be trusted (default 100, matching the
// fallback threshold used at snapshot time).
func NewSnippeter(minLen int) *Snippeter {
	if minLen <= 0 {
		minLen = 100
	}
	return &Snippeter{
		sanitiser: bluemonday.UGCPolicy(),
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		minLen: minLen,
	}
}

// Snippet returns the page's body text bounded to limit runes.
func (s *Snippeter) Snippet(d *Document, limit int) string {
	if res := d.Readable(s.minLen); res != nil {
		if md := s.toMarkdown(res.HTML); md != "" {
			return Truncate(md, limit)
		}
		return Truncate(res.Text, limit)
	}

	text, _ := d.FallbackText()
	return Truncate(text, limit)
}

// toMarkdown converts article HTML to markdown. Returns "" when the
// conversion fails or produces nothing useful; callers fall back to
// plain text.
func (s *Snippeter) toMarkdown(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	clean := s.sanitiser.Sanitize(rawHTML)
	md, err := s.converter.ConvertString(clean)
	if err != nil || strings.TrimSpace(md) == "" {
		return ""
	}
	return strings.TrimSpace(md)
}
