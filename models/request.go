package models

import (
	"fmt"
	"strings"
	"unicode"
)

// Strategy selects how a page is extracted.
type Strategy string

const (
	// StrategyDirect navigates with the browser and returns the rendered
	// markup verbatim.
	StrategyDirect Strategy = "direct"

	// StrategyAgent hands a hardened directive to an LLM agent that drives
	// the browser and returns title and visible text.
	StrategyAgent Strategy = "agent"
)

// ParseStrategy maps a user-supplied name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyDirect:
		return StrategyDirect, nil
	case StrategyAgent:
		return StrategyAgent, nil
	default:
		return "", NewScrapeError(ErrCodeInvalidInput, fmt.Sprintf("unknown strategy %q", s), nil)
	}
}

// ExtractionRequest is one extraction job: a single target URL and the
// strategy to use. It is never modified after validation.
type ExtractionRequest struct {
	// URL is the target page. Required. It is passed to the browser and the
	// agent directive exactly as given.
	URL string `json:"url"`

	// Strategy is "direct" or "agent". Empty means the configured default.
	Strategy Strategy `json:"strategy,omitempty"`
}

// Defaults fills an unset Strategy.
func (r *ExtractionRequest) Defaults(fallback Strategy) {
	if r.Strategy == "" {
		r.Strategy = fallback
	}
}

// Validate rejects requests that must never reach a browser session.
func (r *ExtractionRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return NewScrapeError(ErrCodeInvalidInput, "No URL provided", nil)
	}
	// A newline in the URL would let it add lines to the agent directive.
	if strings.IndexFunc(r.URL, unicode.IsControl) >= 0 {
		return NewScrapeError(ErrCodeInvalidInput, "invalid URL: contains control characters", nil)
	}
	if r.Strategy != "" {
		if _, err := ParseStrategy(string(r.Strategy)); err != nil {
			return err
		}
	}
	return nil
}
