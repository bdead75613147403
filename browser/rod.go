package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
	"github.com/ysmood/gson"
)

// aliveProbeTimeout bounds the Browser.getVersion round trip used to detect
// a crashed browser.
const aliveProbeTimeout = 2 * time.Second

// Rod drives Chromium through go-rod.
type Rod struct {
	cfg config.BrowserConfig
}

// NewRod creates the rod driver.
func NewRod(cfg config.BrowserConfig) *Rod {
	return &Rod{cfg: cfg}
}

func (d *Rod) Name() string { return "rod" }

// Launch starts Chromium and opens a single page.
//
// Lifecycle:
//
//  1. Launcher flags      – headless, sandbox, binary, proxy
//  2. Launch + connect    – the control URL belongs to this instance only
//  3. Page                – one tab per instance
//  4. Extra headers       – before any navigation
//  5. Hijack mount        – resource blocking, before any navigation
func (d *Rod) Launch(ctx context.Context) (Instance, error) {
	// ── 1. Launcher flags ─────────────────────────────────────────────
	l := launcher.New().
		Headless(d.cfg.Headless).
		NoSandbox(d.cfg.NoSandbox)

	if d.cfg.BrowserBin != "" {
		l = l.Bin(d.cfg.BrowserBin)
	}
	if d.cfg.Proxy != "" {
		l = l.Proxy(d.cfg.Proxy)
	}
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))

	// ── 2. Launch + connect ───────────────────────────────────────────
	// Context returns a copy; keep it so Kill reaches the launched process.
	l = l.Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "driver", d.Name(), "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	// ── 3. Page ───────────────────────────────────────────────────────
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	// ── 4. Extra headers ──────────────────────────────────────────────
	if len(d.cfg.ExtraHeaders) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(d.cfg.ExtraHeaders),
		}).Call(page); err != nil {
			slog.Warn("failed to set extra headers, proceeding without them", "error", err)
		}
	}

	// ── 5. Hijack mount ───────────────────────────────────────────────
	router := setupHijack(page, d.cfg.BlockedResourceTypes)

	return &rodInstance{
		launcher: l,
		browser:  browser,
		page:     page,
		router:   router,
	}, nil
}

type rodInstance struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter

	closeOnce sync.Once
}

func (i *rodInstance) Navigate(ctx context.Context, url string) error {
	p := i.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	if err := p.WaitLoad(); err != nil {
		return categorizeError(err, "page did not finish loading")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", err,
		)
	}
	return nil
}

func (i *rodInstance) URL(ctx context.Context) (string, error) {
	return i.evalString(ctx, jsURL, "failed to read page URL")
}

func (i *rodInstance) Title(ctx context.Context) (string, error) {
	return i.evalString(ctx, jsTitle, "failed to read page title")
}

func (i *rodInstance) Text(ctx context.Context) (string, error) {
	return i.evalString(ctx, jsText, "failed to read page text")
}

func (i *rodInstance) HTML(ctx context.Context) (string, error) {
	html, err := i.page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return html, nil
}

func (i *rodInstance) evalString(ctx context.Context, js, msg string) (string, error) {
	res, err := i.page.Context(ctx).Eval(js)
	if err != nil {
		return "", categorizeError(err, msg)
	}
	return res.Value.Str(), nil
}

func (i *rodInstance) Alive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), aliveProbeTimeout)
	defer cancel()
	_, err := proto.BrowserGetVersion{}.Call(i.browser.Context(ctx))
	return err == nil
}

// Close uses the original browser reference (without request context), so
// it succeeds even after the request context expired.
func (i *rodInstance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		if i.router != nil {
			_ = i.router.Stop()
		}
		err = i.browser.Close()
		i.launcher.Kill()
		i.launcher.Cleanup()
	})
	return err
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
