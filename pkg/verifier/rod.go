package verifier

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
)

type rodDriver struct{}

type rodBrowser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	interval time.Duration
	closed   bool
}

func (rodDriver) Launch(ctx context.Context, opts Options) (Browser, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)

	if opts.BrowserPath != "" {
		l = l.Bin(opts.BrowserPath)
	} else if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}

	if opts.UserAgent != "" {
		l.Set("user-agent", opts.UserAgent)
	}

	if !opts.RespectCertificateErrors {
		l.Set("ignore-certificate-errors", "true")
	}

	if !opts.UseHTTP2 {
		l.Set("disable-http2", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		// Cleanup waits for the process to exit, which never happens if it
		// did not start.
		if l.PID() != 0 {
			l.Kill()
		}
		_ = os.RemoveAll(l.Get(flags.UserDataDir))
		return nil, err
	}

	b := &rodBrowser{launcher: l, interval: opts.PollInterval}

	b.browser = rod.New().ControlURL(controlURL)
	if err := b.browser.Connect(); err != nil {
		b.browser = nil
		_ = b.Close()
		return nil, fmt.Errorf("error connecting to browser: %w", err)
	}

	b.page, err = b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("error opening page: %w", err)
	}

	if opts.CaptureWidth != 0 && opts.CaptureHeight != 0 {
		viewport := &proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.CaptureWidth,
			Height:            opts.CaptureHeight,
			DeviceScaleFactor: 1,
			Mobile:            false,
		}
		if err := b.page.SetViewport(viewport); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("error setting viewport: %w", err)
		}
	}

	return b, nil
}

func (b *rodBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := b.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page did not load within %v: %w", timeout, err)
	}
	return nil
}

func (b *rodBrowser) WaitVisible(ctx context.Context, placeholder string, timeout time.Duration) error {
	selector := PlaceholderSelector(placeholder)

	return Poll(ctx, timeout, b.interval, func(ctx context.Context) (bool, error) {
		elements, err := b.page.Context(ctx).Elements(selector)
		if err != nil {
			return false, err
		}
		for _, el := range elements {
			visible, err := el.Visible()
			if err != nil {
				return false, err
			}
			if visible {
				return true, nil
			}
		}
		return false, nil
	})
}

func (b *rodBrowser) Screenshot(ctx context.Context, fullPage bool) (Image, error) {
	return b.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (b *rodBrowser) URL() string {
	info, err := b.page.Info()
	if err != nil {
		log.Debugf("Could not read page info: %v", err)
		return ""
	}
	return info.URL
}

func (b *rodBrowser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}
