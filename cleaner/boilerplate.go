package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Weights for scoring top-level body blocks.
const (
	weightDensity  = 3.0
	weightLinks    = -2.0
	weightTag      = 1.5
	weightHint     = 1.0
	weightLogChars = 0.5
)

var (
	contentHints     = []string{"content", "article", "post", "entry", "main", "text"}
	boilerplateHints = []string{"sidebar", "nav", "menu", "footer", "header", "banner", "cookie", "share", "related", "promo", "ad-", "ads"}
)

// DropBoilerplate keeps only the top-level body blocks that look like
// content. When no block qualifies the document is returned unchanged, so
// the result is never emptier than the input.
func DropBoilerplate(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	body := doc.Find("body")
	blocks := body.Children()
	if blocks.Length() == 0 {
		return rawHTML
	}

	var dropped []*goquery.Selection
	kept := 0
	blocks.Each(func(_ int, el *goquery.Selection) {
		if blockScore(el) > 0 {
			kept++
			return
		}
		dropped = append(dropped, el)
	})
	if kept == 0 {
		return rawHTML
	}
	for _, el := range dropped {
		el.Remove()
	}

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

func blockScore(el *goquery.Selection) float64 {
	markup, err := goquery.OuterHtml(el)
	if err != nil || markup == "" {
		return 0
	}
	chars := len(strings.TrimSpace(el.Text()))

	var linkChars int
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkChars += len(strings.TrimSpace(a.Text()))
	})

	var linkRatio float64
	if chars > 0 {
		linkRatio = float64(linkChars) / float64(chars)
	}

	return float64(chars)/float64(len(markup))*weightDensity +
		linkRatio*weightLinks +
		tagBias(goquery.NodeName(el))*weightTag +
		hintBias(el)*weightHint +
		math.Log10(float64(chars)+1)*weightLogChars
}

func tagBias(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5
	case "nav", "footer", "aside", "header":
		return -5
	}
	return 0
}

// hintBias reads class and id. Each direction counts once.
func hintBias(el *goquery.Selection) float64 {
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	attrs := strings.ToLower(class + " " + id)

	var bias float64
	if containsAny(attrs, contentHints) {
		bias += 3
	}
	if containsAny(attrs, boilerplateHints) {
		bias -= 3
	}
	return bias
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
