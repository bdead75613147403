// Package extractor implements the two extraction strategies. Both return a
// models.Result and never an error: every fault is converted to a Failure at
// this boundary.
package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/urlgrab/models"
	"github.com/use-agent/urlgrab/session"
)

// Extractor fetches one URL.
type Extractor interface {
	Extract(ctx context.Context, url string) models.Result
}

// AssumedStatus is reported by Direct on every success; the browser does not
// expose the response status.
const AssumedStatus = models.AssumedStatus

// Direct navigates with the browser and returns the rendered markup as is.
type Direct struct {
	sessions *session.Manager
	logger   *slog.Logger
}

var _ Extractor = (*Direct)(nil)

// NewDirect creates a direct extractor on mgr.
func NewDirect(mgr *session.Manager, logger *slog.Logger) *Direct {
	if logger == nil {
		logger = slog.Default()
	}
	return &Direct{sessions: mgr, logger: logger}
}

// Extract loads url and returns its title and markup.
func (d *Direct) Extract(ctx context.Context, url string) (res models.Result) {
	s, err := d.sessions.Acquire(ctx)
	if err != nil {
		return models.FailureFrom(err)
	}
	defer d.sessions.Release(s)
	defer recoverFailure(d.logger, &res)

	snap, err := d.sessions.Navigate(ctx, s, url)
	if err != nil {
		return models.FailureFrom(err)
	}

	d.logger.Debug("direct extraction complete",
		"session", s.ID(),
		"finalURL", snap.FinalURL,
		"htmlBytes", len(snap.HTML),
	)
	return models.PageResult{
		URL:    url,
		Status: AssumedStatus,
		Title:  snap.Title,
		HTML:   snap.HTML,
	}
}

// recoverFailure turns a panic inside an extractor into a Failure. It runs
// before the deferred Release so the session is still closed afterwards.
func recoverFailure(logger *slog.Logger, res *models.Result) {
	if r := recover(); r != nil {
		logger.Error("extractor panicked", "panic", r)
		*res = models.Failure{
			Code:    models.ErrCodeExtraction,
			Message: fmt.Sprint(r),
		}
	}
}
