package cleaner

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// hiddenSelector matches elements a reader never sees. Text inside them is
// a common carrier for instructions aimed at LLM agents.
var hiddenSelector = cascadia.MustCompile(strings.Join([]string{
	"head", "script", "style", "noscript", "template", "iframe", "object", "embed", "svg",
	"[hidden]",
	`[aria-hidden="true"]`,
	`[style*="display:none"]`,
	`[style*="display: none"]`,
	`[style*="visibility:hidden"]`,
	`[style*="visibility: hidden"]`,
}, ", "))

// blockSelector matches elements that break lines when rendered.
var blockSelector = cascadia.MustCompile(
	"p, div, section, article, header, footer, main, aside, nav, li, tr, " +
		"h1, h2, h3, h4, h5, h6, pre, blockquote, table, ul, ol, dl, dt, dd, form",
)

var (
	spaceRun = regexp.MustCompile(`[ \t\f\v\r\x{00a0}]+`)
	blankRun = regexp.MustCompile(`\n\s*\n+`)
)

// StripHidden removes non-visible elements from rawHTML. On parse failure
// the input is returned unchanged.
func StripHidden(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.FindMatcher(hiddenSelector).Remove()
	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

// VisibleText approximates the rendered text of rawHTML's body: hidden
// elements are dropped and block elements end a line.
func VisibleText(rawHTML string) string {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.FindMatcher(hiddenSelector).Remove()
	for _, n := range doc.Find("br").Nodes {
		insertNewline(n.Parent, n)
	}
	for _, n := range doc.FindMatcher(blockSelector).Nodes {
		insertNewline(n.Parent, n.NextSibling)
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return NormalizeWhitespace(doc.Text())
	}
	return NormalizeWhitespace(body.Text())
}

// insertNewline adds a "\n" text node to parent before ref (nil appends).
func insertNewline(parent, ref *html.Node) {
	if parent == nil {
		return
	}
	parent.InsertBefore(&html.Node{Type: html.TextNode, Data: "\n"}, ref)
}

// NormalizeWhitespace collapses runs of spaces, trims every line and keeps
// at most one blank line between paragraphs.
func NormalizeWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
