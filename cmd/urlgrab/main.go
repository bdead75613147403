// Command urlgrab extracts one URL and prints exactly one JSON line.
//
//	urlgrab [-strategy direct|agent] <url>
//
// Exit status is 0 on success and 1 on any failure. Logs go to stderr.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/use-agent/urlgrab/browser"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/logging"
	"github.com/use-agent/urlgrab/models"
	"github.com/use-agent/urlgrab/runner"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	logger := logging.Init(cfg.Log)

	// ── 3. Check arguments before touching driver or provider config ─
	if _, _, f := runner.ParseArgs(args, cfg.Strategy); f != nil {
		return emit(stdout, *f)
	}

	// ── 4. Build the service (no browser is started yet) ────────────
	driver, err := browser.New(cfg.Browser)
	if err != nil {
		return emit(stdout, models.FailureFrom(err))
	}
	svc, err := runner.New(cfg, driver, runner.WithLogger(logger))
	if err != nil {
		return emit(stdout, models.FailureFrom(err))
	}

	// ── 5. Run; SIGINT/SIGTERM cancel the extraction ────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx, args, stdout)
}

// emit reports a startup failure in the result envelope.
func emit(stdout io.Writer, f models.Failure) int {
	if err := runner.Emit(stdout, f); err != nil {
		return 1
	}
	return runner.ExitCode(f)
}
