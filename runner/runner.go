// Package runner turns one extraction request into exactly one result. It
// validates input, picks the strategy, bounds concurrency and time, and
// captures every fault as a Failure. The CLI, HTTP and MCP front ends all
// go through Service.
package runner

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/use-agent/urlgrab/browser"
	"github.com/use-agent/urlgrab/cleaner"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/extractor"
	"github.com/use-agent/urlgrab/llm"
	"github.com/use-agent/urlgrab/models"
	"github.com/use-agent/urlgrab/session"
)

// Version is reported by the health endpoint and the MCP server.
var Version = "0.1.0"

// Usage is the CLI synopsis.
const Usage = "usage: urlgrab [-strategy direct|agent] <url>"

// Service runs extractions against one browser driver.
type Service struct {
	cfg         *config.Config
	sessions    *session.Manager
	sessionOpts []session.Option
	cleaner     *cleaner.Cleaner
	logger      *slog.Logger

	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64

	providerOnce sync.Once
	provider     llm.Provider
	providerErr  error
	newProvider  func(config.LLMConfig) (llm.Provider, error)
	newRuntime   func(llm.Provider, *slog.Logger) extractor.RuntimeFactory
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithProvider uses p for the agent strategy instead of building one from
// config.
func WithProvider(p llm.Provider) Option {
	return func(s *Service) {
		s.newProvider = func(config.LLMConfig) (llm.Provider, error) { return p, nil }
	}
}

// WithRuntimeFactory replaces the agent runtime.
func WithRuntimeFactory(f extractor.RuntimeFactory) Option {
	return func(s *Service) {
		s.newRuntime = func(llm.Provider, *slog.Logger) extractor.RuntimeFactory { return f }
	}
}

// WithSessionOptions passes options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Service) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// New creates a Service. The LLM provider is built on the first agent
// request, so direct-only use needs no API key.
func New(cfg *config.Config, driver browser.Driver, opts ...Option) (*Service, error) {
	mode, err := cleaner.ParseMode(cfg.Agent.TextMode)
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseStrategy(cfg.Strategy); err != nil {
		return nil, err
	}

	capacity := cfg.Server.MaxConcurrent
	if capacity < 1 {
		capacity = 1
	}

	s := &Service{
		cfg:         cfg,
		cleaner:     cleaner.New(mode, cfg.Agent.MaxTextTokens),
		logger:      slog.Default(),
		sem:         semaphore.NewWeighted(int64(capacity)),
		capacity:    capacity,
		newProvider: llm.New,
	}
	s.newRuntime = func(p llm.Provider, logger *slog.Logger) extractor.RuntimeFactory {
		return extractor.NewRuntimeFactory(p, s.cleaner, cfg.Agent.MaxSteps, logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = session.NewManager(driver, cfg.Session,
		append([]session.Option{session.WithLogger(s.logger)}, s.sessionOpts...)...)
	return s, nil
}

// Extract runs one request to completion. It never returns nil.
func (s *Service) Extract(ctx context.Context, req models.ExtractionRequest) models.Result {
	// ── 1. Validate before any session exists ────────────────────────
	req.Defaults(models.Strategy(s.cfg.Strategy))
	if f := Validate(&req); f != nil {
		s.logger.Warn("extraction rejected", "code", f.Code, "error", f.Message)
		return *f
	}
	strategy, _ := models.ParseStrategy(string(req.Strategy))

	requestID := uuid.NewString()
	logger := s.logger.With("requestId", requestID)
	start := time.Now()

	if s.cfg.Session.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Session.Timeout)
		defer cancel()
	}

	// ── 2. Wait for a slot ───────────────────────────────────────────
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return models.FailureFrom(models.NewScrapeError(models.ErrCodeTimeout, "timed out waiting for a free browser slot", err))
	}
	defer s.sem.Release(1)
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	// ── 3. Extract ───────────────────────────────────────────────────
	logger.Info("extraction started", "url", req.URL, "strategy", strategy)
	res := Normalize(func() models.Result {
		ext, err := s.extractorFor(strategy, logger)
		if err != nil {
			return models.FailureFrom(err)
		}
		return ext.Extract(ctx, req.URL)
	})

	// ── 4. Log the outcome ───────────────────────────────────────────
	if f, ok := res.(models.Failure); ok {
		logger.Warn("extraction failed",
			"url", req.URL,
			"strategy", strategy,
			"code", f.Code,
			"error", f.Message,
			"duration", time.Since(start),
		)
	} else {
		logger.Info("extraction complete",
			"url", req.URL,
			"strategy", strategy,
			"duration", time.Since(start),
		)
	}
	return res
}

func (s *Service) extractorFor(strategy models.Strategy, logger *slog.Logger) (extractor.Extractor, error) {
	if strategy == models.StrategyDirect {
		return extractor.NewDirect(s.sessions, logger), nil
	}
	p, err := s.llmProvider()
	if err != nil {
		return nil, err
	}
	return extractor.NewAgent(s.sessions, s.newRuntime(p, logger), logger), nil
}

func (s *Service) llmProvider() (llm.Provider, error) {
	s.providerOnce.Do(func() {
		s.provider, s.providerErr = s.newProvider(s.cfg.LLM)
		if s.providerErr == nil {
			s.logger.Info("LLM provider ready", "provider", s.provider.Name(), "model", s.provider.Model())
		}
	})
	return s.provider, s.providerErr
}

// Run is the CLI flow: parse args, extract, emit one JSON line to stdout and
// return the exit status.
func (s *Service) Run(ctx context.Context, args []string, stdout io.Writer) int {
	req, f := s.parseArgs(args)
	var res models.Result
	if f != nil {
		res = *f
	} else {
		res = s.Extract(ctx, req)
	}
	if err := Emit(stdout, res); err != nil {
		s.logger.Error("failed to write result", "error", err)
		return 1
	}
	return ExitCode(res)
}

func (s *Service) parseArgs(args []string) (models.ExtractionRequest, *models.Failure) {
	req, extra, f := ParseArgs(args, s.cfg.Strategy)
	if len(extra) > 0 {
		s.logger.Warn("ignoring extra arguments", "args", strings.Join(extra, " "))
	}
	return req, f
}

// ParseArgs reads the CLI arguments. It needs no service, so a missing URL
// is reported before any driver or provider is configured. extra holds
// positional arguments after the URL.
func ParseArgs(args []string, defaultStrategy string) (req models.ExtractionRequest, extra []string, f *models.Failure) {
	fs := flag.NewFlagSet("urlgrab", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	strategy := fs.String("strategy", defaultStrategy, "extraction strategy: direct or agent")
	if err := fs.Parse(args); err != nil {
		msg := err.Error()
		if errors.Is(err, flag.ErrHelp) {
			msg = Usage
		}
		return models.ExtractionRequest{}, nil, &models.Failure{Code: models.ErrCodeInvalidInput, Message: msg}
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return models.ExtractionRequest{}, nil, &models.Failure{Code: models.ErrCodeInvalidInput, Message: "No URL provided"}
	}
	return models.ExtractionRequest{URL: rest[0], Strategy: models.Strategy(*strategy)}, rest[1:], nil
}

// Stats reports load for health checks.
type Stats struct {
	Driver   string
	InFlight int
	Capacity int
	Sessions session.Stats
}

// Stats returns the current load.
func (s *Service) Stats() Stats {
	return Stats{
		Driver:   s.sessions.Driver(),
		InFlight: int(s.inFlight.Load()),
		Capacity: s.capacity,
		Sessions: s.sessions.Stats(),
	}
}
