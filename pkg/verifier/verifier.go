package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/root4loot/goutils/log"
)

const (
	DefaultURL            = "http://localhost:5174/"
	DefaultPlaceholder    = "Talk to your custom AI... (Ctrl+/ to focus, Ctrl+K to search, Ctrl+T for templates)"
	DefaultScreenshotPath = "jules-scratch/verification/screenshot-chat.png"
	DefaultPollInterval   = 100 * time.Millisecond
)

type Verifier struct {
	Debug   bool
	Options Options
}

// Result contains the outcome of a successful verification run.
type Result struct {
	TargetURL  string
	LandingURL string
	Image      Image
	Path       string
	Width      int
	Height     int
	Elapsed    time.Duration
}

// Options contains the options for a verification run.
type Options struct {
	URL                      string        // Page to open
	Placeholder              string        // Exact placeholder text of the element to wait for
	VisibilityTimeout        time.Duration // Bound for the visibility wait
	NavigationTimeout        time.Duration // Bound for navigation and page load
	PollInterval             time.Duration // Poll period for drivers that poll
	ScreenshotPath           string        // Output file, overwritten on each run
	CaptureWidth             int           // Viewport width
	CaptureHeight            int           // Viewport height
	CaptureFull              bool          // Take a full-page screenshot
	Driver                   string        // rod, chromedp or playwright
	BrowserPath              string        // Chrome or Chromium binary, looked up when empty
	Headless                 bool          // Run without a window
	NoSandbox                bool          // Disable the Chrome sandbox
	UserAgent                string        // User agent override
	RespectCertificateErrors bool          // Respect certificate errors
	UseHTTP2                 bool          // Use HTTP2
	MaxWidth                 int           // Downscale screenshots wider than this (0 disables)
	Imprint                  bool          // Add the page origin below the screenshot
	InstallBrowsers          bool          // Let the playwright driver install Chromium first
}

// NewOptions returns an Options struct initialized with default values.
func NewOptions() Options {
	return Options{
		URL:                      DefaultURL,
		Placeholder:              DefaultPlaceholder,
		VisibilityTimeout:        10 * time.Second,
		NavigationTimeout:        30 * time.Second,
		PollInterval:             DefaultPollInterval,
		ScreenshotPath:           DefaultScreenshotPath,
		CaptureWidth:             1280,
		CaptureHeight:            720,
		CaptureFull:              true,
		Driver:                   DriverRod,
		Headless:                 true,
		NoSandbox:                true,
		RespectCertificateErrors: false,
		UseHTTP2:                 false,
	}
}

// Validate reports the first problem with the options, if any.
func (o Options) Validate() error {
	u, err := url.Parse(o.URL)
	if err != nil {
		return fmt.Errorf("%w: url %q: %v", ErrInvalidOptions, o.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url %q must be an absolute http(s) URL", ErrInvalidOptions, o.URL)
	}
	if o.Placeholder == "" {
		return fmt.Errorf("%w: placeholder is empty", ErrInvalidOptions)
	}
	if o.VisibilityTimeout <= 0 {
		return fmt.Errorf("%w: visibility timeout must be positive, got %v", ErrInvalidOptions, o.VisibilityTimeout)
	}
	if o.NavigationTimeout <= 0 {
		return fmt.Errorf("%w: navigation timeout must be positive, got %v", ErrInvalidOptions, o.NavigationTimeout)
	}
	if o.ScreenshotPath == "" {
		return fmt.Errorf("%w: screenshot path is empty", ErrInvalidOptions)
	}
	if o.CaptureWidth < 0 || o.CaptureHeight < 0 || o.MaxWidth < 0 {
		return fmt.Errorf("%w: sizes must not be negative", ErrInvalidOptions)
	}
	if _, err := lookupDriver(o.Driver); err != nil {
		return err
	}
	return nil
}

// NewVerifier creates a Verifier with default options.
func NewVerifier() *Verifier {
	return &Verifier{Options: NewOptions()}
}

// NewVerifierWithOptions creates a Verifier with the provided options.
func NewVerifierWithOptions(options Options) *Verifier {
	return &Verifier{Options: options}
}

// RunVerification opens the default URL, waits for the default placeholder
// and writes the screenshot to the default path.
func RunVerification(ctx context.Context) (*Result, error) {
	return NewVerifier().Run(ctx)
}

// SetDebug enables or disables debug mode.
func (v *Verifier) SetDebug(debug bool) {
	v.Debug = debug
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func init() {
	log.Init("screencheck")
	log.SetLevel(log.InfoLevel)
}

// Run performs a single verification attempt. The browser is closed before
// Run returns, whatever the outcome.
func (v *Verifier) Run(ctx context.Context) (result *Result, err error) {
	opts := v.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	driver, err := lookupDriver(opts.Driver)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log.Debugf("Launching %s browser (headless: %v)", opts.Driver, opts.Headless)

	browser, err := driver.Launch(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("error launching %s browser: %w", opts.Driver, err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			log.Warnf("Could not close browser cleanly: %v", cerr)
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", cerr)
				result = nil
			}
		}
	}()

	log.Debugf("Navigating to %s", opts.URL)
	if err := browser.Navigate(ctx, opts.URL, opts.NavigationTimeout); err != nil {
		return nil, fmt.Errorf("error navigating to %s: %w", opts.URL, err)
	}

	log.Debugf("Waiting up to %v for placeholder %q", opts.VisibilityTimeout, opts.Placeholder)
	if err := browser.WaitVisible(ctx, opts.Placeholder, opts.VisibilityTimeout); err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return nil, &VisibilityTimeoutError{
				URL:         opts.URL,
				Placeholder: opts.Placeholder,
				Timeout:     opts.VisibilityTimeout,
				Err:         err,
			}
		}
		return nil, fmt.Errorf("error waiting for placeholder on %s: %w", opts.URL, err)
	}

	result = &Result{TargetURL: opts.URL, LandingURL: browser.URL()}

	result.Image, err = browser.Screenshot(ctx, opts.CaptureFull)
	if err != nil {
		return nil, fmt.Errorf("error capturing screenshot for %s: %w", opts.URL, err)
	}
	if len(result.Image) == 0 {
		return nil, fmt.Errorf("%s: %w", opts.URL, ErrEmptyScreenshot)
	}

	if err := v.postProcess(result); err != nil {
		return nil, err
	}

	result.Width, result.Height, err = result.Image.Dimensions()
	if err != nil {
		return nil, fmt.Errorf("error decoding screenshot for %s: %w", opts.URL, err)
	}

	if err := result.SaveImage(opts.ScreenshotPath); err != nil {
		return nil, fmt.Errorf("error saving screenshot to %s: %w", opts.ScreenshotPath, err)
	}
	result.Path = opts.ScreenshotPath
	result.Elapsed = time.Since(start)

	log.Infof("Screenshot of %s saved to %s (%dx%d)", result.LandingURL, result.Path, result.Width, result.Height)
	return result, nil
}

func (v *Verifier) postProcess(result *Result) (err error) {
	if v.Options.MaxWidth > 0 {
		result.Image, err = result.Image.Resize(v.Options.MaxWidth)
		if err != nil {
			return fmt.Errorf("error resizing screenshot: %w", err)
		}
	}

	if v.Options.Imprint {
		origin := result.LandingURL
		if origin == "" {
			origin = result.TargetURL
		}
		result.Image, err = result.Image.AddTextToImage(origin)
		if err != nil {
			return fmt.Errorf("error adding text to screenshot: %w", err)
		}
	}
	return nil
}
