package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/root4loot/goutils/log"
)

type chromedpDriver struct{}

type chromedpBrowser struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	location    string
	closed      bool
}

func (chromedpDriver) Launch(ctx context.Context, opts Options) (Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedpFlags(opts)...)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	cctx, cancelCtx := chromedp.NewContext(allocCtx)

	b := &chromedpBrowser{ctx: cctx, cancelCtx: cancelCtx, cancelAlloc: cancelAlloc}

	tasks := chromedp.Tasks{}
	if opts.CaptureWidth != 0 && opts.CaptureHeight != 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(opts.CaptureWidth), int64(opts.CaptureHeight)))
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(cctx, tasks); err != nil {
		_ = b.Close()
		return nil, err
	}

	chromedp.ListenTarget(cctx, func(ev interface{}) {
		if e, ok := ev.(*network.EventLoadingFailed); ok && !e.Canceled {
			log.Debugf("Request failed: %s", e.ErrorText)
		}
	})

	return b, nil
}

// chromedpFlags returns the allocator options derived from opts.
func chromedpFlags(opts Options) []chromedp.ExecAllocatorOption {
	var flags []chromedp.ExecAllocatorOption

	if opts.BrowserPath != "" {
		flags = append(flags, chromedp.ExecPath(opts.BrowserPath))
	} else if path, found := launcher.LookPath(); found {
		flags = append(flags, chromedp.ExecPath(path))
	}

	if !opts.Headless {
		flags = append(flags, chromedp.Flag("headless", false))
	}

	if opts.NoSandbox {
		flags = append(flags, chromedp.NoSandbox)
	}

	if opts.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(opts.UserAgent))
	}

	if !opts.RespectCertificateErrors {
		flags = append(flags, chromedp.Flag("ignore-certificate-errors", true))
	}

	if !opts.UseHTTP2 {
		flags = append(flags, chromedp.Flag("disable-http2", true))
	}

	return flags
}

// bind derives a context from the browser context that is also cancelled
// with ctx and expires after timeout.
func (b *chromedpBrowser) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var tctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		tctx, cancel = context.WithTimeout(b.ctx, timeout)
	} else {
		tctx, cancel = context.WithCancel(b.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func (b *chromedpBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	tctx, cancel := b.bind(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(tctx, chromedp.Navigate(url), chromedp.Location(&b.location)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (b *chromedpBrowser) WaitVisible(ctx context.Context, placeholder string, timeout time.Duration) error {
	tctx, cancel := b.bind(ctx, timeout)
	defer cancel()

	err := chromedp.Run(tctx, chromedp.WaitVisible(PlaceholderSelector(placeholder), chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %v", ErrWaitTimeout, timeout, err)
	}
	return err
}

func (b *chromedpBrowser) Screenshot(ctx context.Context, fullPage bool) (Image, error) {
	tctx, cancel := b.bind(ctx, 0)
	defer cancel()

	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 selects PNG encoding.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := chromedp.Run(tctx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *chromedpBrowser) URL() string {
	return b.location
}

func (b *chromedpBrowser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	err := chromedp.Cancel(b.ctx)
	b.cancelCtx()
	// Cancelling the allocator waits for the browser process to exit and
	// removes its temporary profile directory.
	b.cancelAlloc()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
