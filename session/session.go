// Package session owns browser sessions for the duration of one extraction.
//
// A Session is a lazy handle: Acquire never launches a browser, the first
// Navigate does. Navigation is retried under an explicit RetryPolicy, and a
// crashed browser is discarded and replaced rather than repaired. Release
// must run on every exit path; callers defer it right after Acquire.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/use-agent/urlgrab/browser"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
)

// ErrReleased is returned when a released session is used again.
var ErrReleased = errors.New("session already released")

// ErrNoPage is returned by page reads before the first successful navigation.
var ErrNoPage = errors.New("no page loaded: navigate first")

// RetryPolicy bounds navigation attempts independently of driver defaults.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryPolicy allows three attempts with short exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:       3,
	InitialBackoff:    500 * time.Millisecond,
	BackoffMultiplier: 2,
	MaxBackoff:        5 * time.Second,
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.Multiplier = p.BackoffMultiplier
	b.MaxInterval = p.MaxBackoff
	return b
}

// Snapshot is the page state after a successful navigation and settle.
type Snapshot struct {
	RequestedURL string
	FinalURL     string
	Title        string
	HTML         string
}

// Manager launches, retries and releases sessions on one browser driver.
// It is safe for concurrent use; sessions themselves are not shared.
type Manager struct {
	driver     browser.Driver
	policy     RetryPolicy
	settleMin  time.Duration
	settleMax  time.Duration
	navTimeout time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger

	active   atomic.Int64
	launched atomic.Int64
	crashed  atomic.Int64
}

// Option customises a Manager.
type Option func(*Manager)

// WithRetryPolicy overrides the policy derived from config.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithSleep replaces the settle-delay sleeper.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager for driver using the session settings in cfg.
func NewManager(driver browser.Driver, cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		driver: driver,
		policy: RetryPolicy{
			MaxAttempts:       cfg.MaxAttempts,
			InitialBackoff:    cfg.InitialBackoff,
			BackoffMultiplier: cfg.BackoffMultiplier,
			MaxBackoff:        cfg.MaxBackoff,
		},
		settleMin:  cfg.SettleMin,
		settleMax:  cfg.SettleMax,
		navTimeout: cfg.NavigationTimeout,
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy.MaxAttempts < 1 {
		m.policy.MaxAttempts = 1
	}
	if m.policy.InitialBackoff <= 0 {
		m.policy.InitialBackoff = DefaultRetryPolicy.InitialBackoff
	}
	if m.policy.BackoffMultiplier < 1 {
		m.policy.BackoffMultiplier = DefaultRetryPolicy.BackoffMultiplier
	}
	if m.policy.MaxBackoff < m.policy.InitialBackoff {
		m.policy.MaxBackoff = m.policy.InitialBackoff
	}
	return m
}

// Driver returns the driver name.
func (m *Manager) Driver() string { return m.driver.Name() }

// Policy returns the effective retry policy.
func (m *Manager) Policy() RetryPolicy { return m.policy }

// Acquire creates a session handle. No browser is launched yet.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "request canceled before session start", err)
	}
	m.active.Add(1)
	s := &Session{id: uuid.NewString(), mgr: m}
	m.logger.Debug("session acquired", "session", s.id, "driver", m.driver.Name())
	return s, nil
}

// Release closes the session's browser, if any. It is idempotent and safe
// on nil or never-launched sessions.
func (m *Manager) Release(s *Session) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	m.active.Add(-1)
	if s.inst != nil {
		if err := s.inst.Close(); err != nil {
			m.logger.Warn("session release: failed to close browser", "session", s.id, "error", err)
		}
		s.inst = nil
	}
	m.logger.Debug("session released", "session", s.id, "launches", s.launches)
}

// Navigate loads url in the session and waits for the randomized settle
// delay. Each attempt ensures a live browser (launching one if needed),
// navigates and reads the page. A failed attempt is retried up to
// MaxAttempts; a browser found dead after a failure is discarded so the next
// attempt starts from a fresh launch.
func (m *Manager) Navigate(ctx context.Context, s *Session, url string) (*Snapshot, error) {
	attempts := 0
	snap, err := backoff.Retry(ctx, func() (*Snapshot, error) {
		attempts++
		snap, err := m.attempt(ctx, s, url)
		if err == nil {
			return snap, nil
		}
		if errors.Is(err, ErrReleased) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		m.recoverInstance(ctx, s)
		return nil, err
	},
		backoff.WithBackOff(m.policy.backOff()),
		backoff.WithMaxTries(uint(m.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			m.logger.Warn("navigation attempt failed, retrying",
				"session", s.id,
				"url", url,
				"attempt", attempts,
				"maxAttempts", m.policy.MaxAttempts,
				"backoff", wait,
				"error", err,
			)
		}),
	)
	if err == nil {
		return snap, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if models.CodeOf(err) == models.ErrCodeTimeout {
			return nil, err
		}
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "extraction deadline exceeded", ctxErr)
	}
	if errors.Is(err, ErrReleased) {
		return nil, models.NewScrapeError(models.ErrCodeSession, "session unusable", err)
	}
	return nil, models.NewScrapeError(
		models.ErrCodeSession,
		fmt.Sprintf("session failed after %d attempts", attempts),
		err,
	)
}

func (m *Manager) attempt(ctx context.Context, s *Session, url string) (*Snapshot, error) {
	// ── 1. Ensure a live browser ──────────────────────────────────────
	inst, err := s.ensureInstance(ctx)
	if err != nil {
		return nil, err
	}

	// ── 2. Navigate under the per-attempt timeout ─────────────────────
	navCtx := ctx
	if m.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, m.navTimeout)
		defer cancel()
	}
	if err := inst.Navigate(navCtx, url); err != nil {
		return nil, err
	}

	// ── 3. Settle ─────────────────────────────────────────────────────
	delay := m.settleDelay()
	m.logger.Debug("settling after navigation", "session", s.id, "delay", delay)
	if err := m.sleep(ctx, delay); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "canceled while page settled", err)
	}

	// ── 4. Read ───────────────────────────────────────────────────────
	title, err := inst.Title(ctx)
	if err != nil {
		return nil, err
	}
	html, err := inst.HTML(ctx)
	if err != nil {
		return nil, err
	}
	finalURL, err := inst.URL(ctx)
	if err != nil || finalURL == "" {
		finalURL = url
	}

	// Only a complete attempt counts, so a retried read is not recorded twice.
	s.recordNavigation(url)
	return &Snapshot{
		RequestedURL: url,
		FinalURL:     finalURL,
		Title:        title,
		HTML:         html,
	}, nil
}

// recoverInstance discards the session's browser when it no longer
// answers. A live browser is kept for the next attempt.
func (m *Manager) recoverInstance(ctx context.Context, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == nil || s.inst.Alive(ctx) {
		return
	}
	m.crashed.Add(1)
	m.logger.Warn("browser crashed, discarding instance", "session", s.id)
	if err := s.inst.Close(); err != nil {
		m.logger.Debug("closing crashed browser failed", "session", s.id, "error", err)
	}
	s.inst = nil
}

// settleDelay is uniform in [settleMin, settleMax].
func (m *Manager) settleDelay() time.Duration {
	if m.settleMax <= m.settleMin {
		return m.settleMin
	}
	return m.settleMin + time.Duration(rand.Int64N(int64(m.settleMax-m.settleMin)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Session is one extraction's browser handle.
type Session struct {
	id  string
	mgr *Manager

	mu          sync.Mutex
	inst        browser.Instance
	released    bool
	launches    int
	navigations []string
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Launches reports how many browsers this session has started.
func (s *Session) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

// Navigations lists the URLs successfully navigated to, in order.
func (s *Session) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

func (s *Session) recordNavigation(url string) {
	s.mu.Lock()
	s.navigations = append(s.navigations, url)
	s.mu.Unlock()
}

func (s *Session) ensureInstance(ctx context.Context) (browser.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	if s.inst != nil {
		return s.inst, nil
	}
	inst, err := s.mgr.driver.Launch(ctx)
	if err != nil {
		return nil, err
	}
	s.inst = inst
	s.launches++
	s.mgr.launched.Add(1)
	s.mgr.logger.Debug("browser launched for session", "session", s.id, "launch", s.launches)
	return inst, nil
}

// page returns the current instance once a navigation has succeeded.
func (s *Session) page() (browser.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	if s.inst == nil || len(s.navigations) == 0 {
		return nil, ErrNoPage
	}
	return s.inst, nil
}

// Title reads the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	inst, err := s.page()
	if err != nil {
		return "", err
	}
	return inst.Title(ctx)
}

// Text reads the rendered visible body text.
func (s *Session) Text(ctx context.Context) (string, error) {
	inst, err := s.page()
	if err != nil {
		return "", err
	}
	return inst.Text(ctx)
}

// HTML reads the full rendered markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	inst, err := s.page()
	if err != nil {
		return "", err
	}
	return inst.HTML(ctx)
}

// URL reads the current document URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	inst, err := s.page()
	if err != nil {
		return "", err
	}
	return inst.URL(ctx)
}
