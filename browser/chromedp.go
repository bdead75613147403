package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
)

// Chromedp drives Chromium through chromedp's exec allocator.
type Chromedp struct {
	cfg config.BrowserConfig
}

// NewChromedp creates the chromedp driver.
func NewChromedp(cfg config.BrowserConfig) *Chromedp {
	return &Chromedp{cfg: cfg}
}

func (d *Chromedp) Name() string { return "chromedp" }

func (d *Chromedp) Launch(ctx context.Context) (Instance, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("headless", d.cfg.Headless),
	)
	if d.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if d.cfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.BrowserBin))
	}
	if d.cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(d.cfg.Proxy))
	}
	if len(d.cfg.BlockedResourceTypes) > 0 {
		slog.Warn("resource blocking is not supported by the chromedp driver, ignoring",
			"types", d.cfg.BlockedResourceTypes,
		)
	}

	// The browser outlives the launch call, so its contexts hang off
	// Background; Close cancels them.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	inst := &chromedpInstance{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}

	// An empty Run starts the browser and opens the first tab.
	if err := inst.run(ctx); err != nil {
		_ = inst.Close()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	if len(d.cfg.ExtraHeaders) > 0 {
		headers := make(network.Headers, len(d.cfg.ExtraHeaders))
		for k, v := range d.cfg.ExtraHeaders {
			headers[k] = v
		}
		if err := inst.run(ctx, network.Enable(), network.SetExtraHTTPHeaders(headers)); err != nil {
			slog.Warn("failed to set extra headers, proceeding without them", "error", err)
		}
	}

	return inst, nil
}

type chromedpInstance struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
}

// run executes actions on the browser tab while honouring the caller's ctx.
// Cancelling the derived context aborts the actions without closing the tab.
func (i *chromedpInstance) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(i.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (i *chromedpInstance) Navigate(ctx context.Context, url string) error {
	if err := i.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	return nil
}

func (i *chromedpInstance) URL(ctx context.Context) (string, error) {
	var s string
	if err := i.run(ctx, chromedp.Location(&s)); err != nil {
		return "", categorizeError(err, "failed to read page URL")
	}
	return s, nil
}

func (i *chromedpInstance) Title(ctx context.Context) (string, error) {
	var s string
	if err := i.run(ctx, chromedp.Title(&s)); err != nil {
		return "", categorizeError(err, "failed to read page title")
	}
	return s, nil
}

func (i *chromedpInstance) HTML(ctx context.Context) (string, error) {
	var s string
	if err := i.run(ctx, chromedp.OuterHTML("html", &s, chromedp.ByQuery)); err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return s, nil
}

func (i *chromedpInstance) Text(ctx context.Context) (string, error) {
	var s string
	if err := i.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &s)); err != nil {
		return "", categorizeError(err, "failed to read page text")
	}
	return s, nil
}

func (i *chromedpInstance) Alive(ctx context.Context) bool {
	if i.ctx.Err() != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), aliveProbeTimeout)
	defer cancel()
	var n int
	return i.run(probeCtx, chromedp.Evaluate(`1`, &n)) == nil
}

func (i *chromedpInstance) Close() error {
	i.closeOnce.Do(func() {
		i.cancel()
		i.allocCancel()
	})
	return nil
}
