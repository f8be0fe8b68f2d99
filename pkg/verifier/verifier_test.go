package verifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePNG(t *testing.T, w, h int) Image {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeBrowser struct {
	navigateErr   error
	waitErr       error
	screenshotErr error
	image         Image
	landingURL    string
	blockWait     bool // WaitVisible returns only once ctx is done

	navigated   string
	placeholder string
	fullPage    bool
	closes      int
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	f.navigated = url
	return f.navigateErr
}

func (f *fakeBrowser) WaitVisible(ctx context.Context, placeholder string, timeout time.Duration) error {
	f.placeholder = placeholder
	if f.blockWait {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.waitErr
}

func (f *fakeBrowser) Screenshot(ctx context.Context, fullPage bool) (Image, error) {
	f.fullPage = fullPage
	return f.image, f.screenshotErr
}

func (f *fakeBrowser) URL() string {
	return f.landingURL
}

func (f *fakeBrowser) Close() error {
	f.closes++
	return nil
}

func useFakeDriver(t *testing.T, fb *fakeBrowser, launchErr error) Options {
	t.Helper()

	name := "fake-" + t.Name()
	RegisterDriver(name, DriverFunc(func(ctx context.Context, opts Options) (Browser, error) {
		if launchErr != nil {
			return nil, launchErr
		}
		return fb, nil
	}))
	t.Cleanup(func() {
		driversMu.Lock()
		delete(drivers, name)
		driversMu.Unlock()
	})

	opts := NewOptions()
	opts.Driver = name
	opts.ScreenshotPath = filepath.Join(t.TempDir(), "jules-scratch", "verification", "screenshot-chat.png")
	return opts
}

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, "http://localhost:5174/", opts.URL)
	assert.Equal(t, "Talk to your custom AI... (Ctrl+/ to focus, Ctrl+K to search, Ctrl+T for templates)", opts.Placeholder)
	assert.Equal(t, 10*time.Second, opts.VisibilityTimeout)
	assert.Equal(t, "jules-scratch/verification/screenshot-chat.png", opts.ScreenshotPath)
	assert.True(t, opts.CaptureFull)
	assert.True(t, opts.Headless)
	assert.Equal(t, DriverRod, opts.Driver)
	assert.False(t, opts.Imprint)
	assert.Zero(t, opts.MaxWidth)
	assert.NoError(t, opts.Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{"empty url", func(o *Options) { o.URL = "" }},
		{"relative url", func(o *Options) { o.URL = "/index.html" }},
		{"ftp url", func(o *Options) { o.URL = "ftp://localhost/" }},
		{"empty placeholder", func(o *Options) { o.Placeholder = "" }},
		{"zero visibility timeout", func(o *Options) { o.VisibilityTimeout = 0 }},
		{"negative navigation timeout", func(o *Options) { o.NavigationTimeout = -time.Second }},
		{"empty path", func(o *Options) { o.ScreenshotPath = "" }},
		{"negative width", func(o *Options) { o.CaptureWidth = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.modify(&opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}

	t.Run("unknown driver", func(t *testing.T) {
		opts := NewOptions()
		opts.Driver = "netscape"
		assert.ErrorIs(t, opts.Validate(), ErrUnknownDriver)
	})
}

func TestDrivers(t *testing.T) {
	names := Drivers()
	assert.Contains(t, names, DriverRod)
	assert.Contains(t, names, DriverChromedp)
	assert.Contains(t, names, DriverPlaywright)
}

func TestRun(t *testing.T) {
	fb := &fakeBrowser{image: makePNG(t, 64, 48), landingURL: DefaultURL}
	opts := useFakeDriver(t, fb, nil)

	result, err := NewVerifierWithOptions(opts).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, DefaultURL, fb.navigated)
	assert.Equal(t, DefaultPlaceholder, fb.placeholder)
	assert.True(t, fb.fullPage)
	assert.Equal(t, 1, fb.closes)

	assert.Equal(t, opts.ScreenshotPath, result.Path)
	assert.Equal(t, 64, result.Width)
	assert.Equal(t, 48, result.Height)

	data, err := os.ReadFile(opts.ScreenshotPath)
	require.NoError(t, err)
	assert.Equal(t, []byte(fb.image), data)
}

func TestRun_OverwritesExistingScreenshot(t *testing.T) {
	fb := &fakeBrowser{image: makePNG(t, 32, 32)}
	opts := useFakeDriver(t, fb, nil)
	v := NewVerifierWithOptions(opts)

	_, err := v.Run(context.Background())
	require.NoError(t, err)

	fb.image = makePNG(t, 16, 8)
	result, err := v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, result.Width)

	data, err := os.ReadFile(opts.ScreenshotPath)
	require.NoError(t, err)
	assert.Equal(t, []byte(fb.image), data)
	assert.Equal(t, 2, fb.closes)
}

func TestRun_VisibilityTimeout(t *testing.T) {
	fb := &fakeBrowser{waitErr: ErrWaitTimeout}
	opts := useFakeDriver(t, fb, nil)

	result, err := NewVerifierWithOptions(opts).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrVisibilityTimeout)
	assert.ErrorIs(t, err, ErrWaitTimeout)

	var vt *VisibilityTimeoutError
	require.True(t, errors.As(err, &vt))
	assert.Equal(t, DefaultURL, vt.URL)
	assert.Equal(t, DefaultPlaceholder, vt.Placeholder)
	assert.Equal(t, 10*time.Second, vt.Timeout)

	assert.Equal(t, 1, fb.closes)
	assert.NoFileExists(t, opts.ScreenshotPath)
}

func TestRun_FailuresCloseBrowser(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		browser *fakeBrowser
		target  error
	}{
		{"navigation", &fakeBrowser{navigateErr: boom}, boom},
		{"wait", &fakeBrowser{waitErr: boom}, boom},
		{"screenshot", &fakeBrowser{screenshotErr: boom}, boom},
		{"empty screenshot", &fakeBrowser{}, ErrEmptyScreenshot},
		{"undecodable screenshot", &fakeBrowser{image: Image("not a png")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := useFakeDriver(t, tt.browser, nil)

			_, err := NewVerifierWithOptions(opts).Run(context.Background())
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			assert.NotErrorIs(t, err, ErrVisibilityTimeout)
			assert.Equal(t, 1, tt.browser.closes)
			assert.NoFileExists(t, opts.ScreenshotPath)
		})
	}
}

func TestRun_LaunchError(t *testing.T) {
	boom := errors.New("no browser")
	opts := useFakeDriver(t, nil, boom)

	_, err := NewVerifierWithOptions(opts).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "error launching")
}

func TestRun_Cancelled(t *testing.T) {
	fb := &fakeBrowser{image: makePNG(t, 32, 32), blockWait: true}
	opts := useFakeDriver(t, fb, nil)
	opts.VisibilityTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	result, err := NewVerifierWithOptions(opts).Run(ctx)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrVisibilityTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, fb.closes)
	assert.NoFileExists(t, opts.ScreenshotPath)
}

func TestRun_InvalidOptions(t *testing.T) {
	opts := NewOptions()
	opts.Placeholder = ""

	_, err := NewVerifierWithOptions(opts).Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestRun_PostProcess(t *testing.T) {
	fb := &fakeBrowser{image: makePNG(t, 200, 100), landingURL: "http://localhost:5174/chat"}
	opts := useFakeDriver(t, fb, nil)
	opts.MaxWidth = 100
	opts.Imprint = true

	result, err := NewVerifierWithOptions(opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 50+imprintPadding*2+imprintBorder, result.Height)
}
