package browser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
)

// Playwright drives Chromium through playwright-go. The playwright driver
// process is started per instance so instances stay fully isolated.
type Playwright struct {
	cfg config.BrowserConfig

	installOnce sync.Once
	installErr  error
}

// NewPlaywright creates the playwright driver.
func NewPlaywright(cfg config.BrowserConfig) *Playwright {
	return &Playwright{cfg: cfg}
}

func (d *Playwright) Name() string { return "playwright" }

func runOptions() *playwright.RunOptions {
	// stdout carries the result envelope; keep the driver quiet.
	return &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
}

func (d *Playwright) Launch(ctx context.Context) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, categorizeError(err, "launch canceled")
	}

	if d.cfg.InstallPlaywright {
		d.installOnce.Do(func() {
			d.installErr = playwright.Install(runOptions())
		})
		if d.installErr != nil {
			return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to install playwright", d.installErr)
		}
	}

	pw, err := playwright.Run(runOptions())
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to start playwright", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.cfg.Headless),
	}
	if d.cfg.BrowserBin != "" {
		launchOpts.ExecutablePath = playwright.String(d.cfg.BrowserBin)
	}
	if d.cfg.Proxy != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: d.cfg.Proxy}
	}
	if d.cfg.NoSandbox {
		launchOpts.ChromiumSandbox = playwright.Bool(false)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	if len(d.cfg.ExtraHeaders) > 0 {
		contextOpts.ExtraHttpHeaders = d.cfg.ExtraHeaders
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create browser context", err)
	}

	blocked := blockedPlaywrightTypes(d.cfg.BlockedResourceTypes)
	if len(blocked) > 0 {
		err := bctx.Route("**/*", func(route playwright.Route) {
			if _, ok := blocked[route.Request().ResourceType()]; ok {
				_ = route.Abort("blockedbyclient")
				return
			}
			_ = route.Continue()
		})
		if err != nil {
			_ = bctx.Close()
			_ = browser.Close()
			_ = pw.Stop()
			return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to install request router", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	return &playwrightInstance{pw: pw, browser: browser, bctx: bctx, page: page}, nil
}

// blockedPlaywrightTypes maps config names ("Image") to playwright's
// resource type names ("image").
func blockedPlaywrightTypes(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for rt := range blockedSet(names) {
		out[strings.ToLower(string(rt))] = struct{}{}
	}
	return out
}

type playwrightInstance struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
}

// timeoutMillis converts the ctx deadline into playwright's per-call
// timeout, since playwright calls do not take a context.
func timeoutMillis(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms)
}

func (i *playwrightInstance) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return categorizeError(err, "navigation canceled")
	}
	_, err := i.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   timeoutMillis(ctx),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return categorizeError(ctxErr, "navigation to target URL failed")
		}
		return categorizeError(err, "navigation to target URL failed")
	}
	return nil
}

func (i *playwrightInstance) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", categorizeError(err, "failed to read page URL")
	}
	return i.page.URL(), nil
}

func (i *playwrightInstance) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", categorizeError(err, "failed to read page title")
	}
	title, err := i.page.Title()
	if err != nil {
		return "", categorizeError(err, "failed to read page title")
	}
	return title, nil
}

func (i *playwrightInstance) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	html, err := i.page.Content()
	if err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return html, nil
}

func (i *playwrightInstance) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", categorizeError(err, "failed to read page text")
	}
	text, err := i.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: timeoutMillis(ctx),
	})
	if err != nil {
		return "", categorizeError(err, "failed to read page text")
	}
	return text, nil
}

func (i *playwrightInstance) Alive(context.Context) bool {
	return i.browser.IsConnected() && !i.page.IsClosed()
}

func (i *playwrightInstance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		_ = i.page.Close()
		_ = i.bctx.Close()
		if closeErr := i.browser.Close(); closeErr != nil {
			err = fmt.Errorf("close browser: %w", closeErr)
		}
		if stopErr := i.pw.Stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("stop playwright: %w", stopErr)
		}
	})
	return err
}
