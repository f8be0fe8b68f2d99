package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

type playwrightDriver struct{}

type playwrightBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	stop    func() bool
	closed  bool
}

func (playwrightDriver) Launch(ctx context.Context, opts Options) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.InstallBrowsers {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("error installing playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("error starting playwright: %w", err)
	}
	b := &playwrightBrowser{pw: pw}

	var args []string
	if !opts.UseHTTP2 {
		args = append(args, "--disable-http2")
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:        playwright.Bool(opts.Headless),
		ChromiumSandbox: playwright.Bool(!opts.NoSandbox),
		Args:            args,
	}
	if opts.BrowserPath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.BrowserPath)
	}

	b.browser, err = pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	pageOpts := playwright.BrowserNewPageOptions{
		IgnoreHttpsErrors: playwright.Bool(!opts.RespectCertificateErrors),
	}
	if opts.CaptureWidth != 0 && opts.CaptureHeight != 0 {
		pageOpts.Viewport = &playwright.Size{Width: opts.CaptureWidth, Height: opts.CaptureHeight}
	}
	if opts.UserAgent != "" {
		pageOpts.UserAgent = playwright.String(opts.UserAgent)
	}

	b.page, err = b.browser.NewPage(pageOpts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("error opening page: %w", err)
	}

	// Playwright calls take no context; closing the browser aborts any
	// pending call when ctx is cancelled.
	b.stop = context.AfterFunc(ctx, func() { _ = b.browser.Close() })

	return b, nil
}

func (b *playwrightBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (b *playwrightBrowser) WaitVisible(ctx context.Context, placeholder string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := b.page.GetByPlaceholder(placeholder, playwright.PageGetByPlaceholderOptions{
		Exact: playwright.Bool(true),
	}).First()

	err := input.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w after %v: %v", ErrWaitTimeout, timeout, err)
	default:
		return err
	}
}

func (b *playwrightBrowser) Screenshot(ctx context.Context, fullPage bool) (Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
}

func (b *playwrightBrowser) URL() string {
	return b.page.URL()
}

func (b *playwrightBrowser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.stop != nil {
		b.stop()
	}

	var errs []error
	if b.browser != nil {
		if err := b.browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			errs = append(errs, err)
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
