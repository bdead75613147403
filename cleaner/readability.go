package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// articleMinChars is the shortest article text readability may return
// before we treat the page as having no article.
const articleMinChars = 50

// article is the main content found by readability.
type article struct {
	html string
	text string
}

// findArticle runs readability over rawHTML. ok is false when the page has
// no usable article; callers fall back to the whole body.
func findArticle(rawHTML string, page *nurl.URL) (a article, ok bool) {
	parsed, err := readability.FromReader(strings.NewReader(rawHTML), page)
	if err != nil {
		slog.Debug("readability failed", "url", page.String(), "error", err)
		return article{}, false
	}
	if n := len(strings.TrimSpace(parsed.TextContent)); n < articleMinChars {
		slog.Debug("readability found no article", "url", page.String(), "chars", n)
		return article{}, false
	}
	return article{html: parsed.Content, text: parsed.TextContent}, true
}
