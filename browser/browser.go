// Package browser binds the extraction pipeline to a browser automation
// library. Each Driver launches isolated Instances: one browser process with
// a single page, owned by exactly one session.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
)

// Driver launches browser instances.
type Driver interface {
	// Name identifies the driver in logs and health output.
	Name() string

	// Launch starts a fresh browser process with one blank page.
	Launch(ctx context.Context) (Instance, error)
}

// Instance is one running browser with a single page.
type Instance interface {
	// Navigate loads url and blocks until the load event fired and the DOM
	// stopped changing (best effort).
	Navigate(ctx context.Context, url string) error

	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// HTML returns the full rendered markup of the current document.
	HTML(ctx context.Context) (string, error)

	// Text returns the rendered visible text of the document body.
	Text(ctx context.Context) (string, error)

	// Alive probes the browser process. A false result means the instance
	// crashed and must be discarded.
	Alive(ctx context.Context) bool

	// Close kills the browser process. Safe to call more than once.
	Close() error
}

// New returns the driver named by cfg.Driver.
func New(cfg config.BrowserConfig) (Driver, error) {
	switch cfg.Driver {
	case "", "rod":
		return NewRod(cfg), nil
	case "chromedp":
		return NewChromedp(cfg), nil
	case "playwright":
		return NewPlaywright(cfg), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

// categorizeError maps driver errors to error codes. Context expiry is a
// timeout whatever the driver reported.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

const (
	jsTitle = `() => document.title`
	jsURL   = `() => window.location.href`
	jsText  = `() => document.body ? document.body.innerText : ""`
)
