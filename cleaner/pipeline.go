package cleaner

import (
	"fmt"
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// Mode selects how page text is rendered for the agent.
type Mode string

const (
	// ModeVisible uses the browser's rendered innerText.
	ModeVisible Mode = "visible"
	// ModeReadability keeps only the main article text.
	ModeReadability Mode = "readability"
	// ModeMarkdown converts the main article to Markdown.
	ModeMarkdown Mode = "markdown"
)

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeVisible:
		return ModeVisible, nil
	case ModeReadability, ModeMarkdown:
		return m, nil
	default:
		return "", fmt.Errorf("unknown text mode %q", s)
	}
}

// Cleaner turns a rendered page into bounded plain text. It is safe for
// concurrent use.
type Cleaner struct {
	mode      Mode
	maxTokens int
	md        *converter.Converter
}

// New creates a Cleaner. maxTokens <= 0 disables truncation.
func New(mode Mode, maxTokens int) *Cleaner {
	return &Cleaner{
		mode:      mode,
		maxTokens: maxTokens,
		md:        markdownConverter(),
	}
}

// Mode returns the configured mode.
func (c *Cleaner) Mode() Mode { return c.mode }

// NeedsHTML reports whether Render reads rawHTML rather than visibleText.
func (c *Cleaner) NeedsHTML() bool { return c.mode != ModeVisible }

// Render produces the page text for the configured mode.
//
// Flow:
//  1. visible: normalise the browser's innerText; fall back to markup
//     when the browser returned nothing.
//  2. readability / markdown: strip hidden elements, run readability,
//     fall back to the body minus boilerplate blocks when it finds no
//     article.
//  3. Truncate to the token budget.
func (c *Cleaner) Render(rawHTML, visibleText, sourceURL string) string {
	var text string

	switch c.mode {
	case ModeReadability:
		text = c.readable(rawHTML, sourceURL)
	case ModeMarkdown:
		text = c.markdown(rawHTML, sourceURL)
	default:
		text = NormalizeWhitespace(visibleText)
		if text == "" && rawHTML != "" {
			text = VisibleText(rawHTML)
		}
	}

	return Truncate(text, c.maxTokens)
}

func (c *Cleaner) readable(rawHTML, sourceURL string) string {
	stripped := StripHidden(rawHTML)
	if a, ok := articleOf(stripped, sourceURL); ok {
		return NormalizeWhitespace(a.text)
	}
	return VisibleText(DropBoilerplate(stripped))
}

func (c *Cleaner) markdown(rawHTML, sourceURL string) string {
	stripped := StripHidden(rawHTML)
	var fragment string
	if a, ok := articleOf(stripped, sourceURL); ok {
		fragment = a.html
	} else {
		fragment = DropBoilerplate(stripped)
	}

	md, err := c.toMarkdown(fragment, domainOf(sourceURL))
	if err != nil {
		slog.Warn("markdown conversion failed, using plain text", "url", sourceURL, "error", err)
		return VisibleText(fragment)
	}
	return strings.TrimSpace(md)
}

func articleOf(rawHTML, sourceURL string) (article, bool) {
	u, err := nurl.Parse(sourceURL)
	if err != nil {
		return article{}, false
	}
	return findArticle(rawHTML, u)
}

// domainOf returns scheme://host for resolving relative links.
func domainOf(sourceURL string) string {
	u, err := nurl.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
