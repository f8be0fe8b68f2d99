package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/screencheck/pkg/verifier"
)

const (
	author  = "@danielantonsen"
	version = "0.1.0"
	usage   = `USAGE:
  screencheck [options]

  Opens the target page in a headless browser, waits for the input with the
  given placeholder to become visible and saves a screenshot.

TARGET:
  -u,   --url                    page to verify                                          (Default: http://localhost:5174/)
  -p,   --placeholder            exact placeholder text to wait for                      (Default: chat input)

CONFIGURATIONS:
  -d,   --driver                 browser driver: rod, chromedp, playwright               (Default: rod)
  -to,  --timeout                visibility timeout                                      (Default: 10s)
  -nt,  --navigation-timeout     navigation timeout                                      (Default: 30s)
  -ua,  --user-agent             specify user agent                                      (Default: browser UA)
  -uh,  --use-http2              use HTTP2                                               (Default: false)
  -cw,  --capture-width          output width                                            (Default: 1280)
  -ch,  --capture-height         output height                                           (Default: 720)
  -vp,  --viewport-only          capture the viewport instead of the full page           (Default: false)
  -hd,  --headed                 show the browser window                                 (Default: false)
  -rce, --respect-cert-err       respect certificate errors                              (Default: false)
  -ib,  --install-browsers       install Chromium before launching (playwright only)     (Default: false)
  -bp,  --browser-path           Chrome or Chromium binary to launch                     (Default: auto)

OUTPUT:
  -o,   --output                 screenshot file, overwritten on each run                (Default: jules-scratch/verification/screenshot-chat.png)
  -mw,  --max-width              downscale screenshots wider than this (0 disables)      (Default: 0)
  -im,  --imprint                add the page origin below the screenshot                (Default: false)
        --debug                  enable debug mode
        --version                display version
`
)

const (
	exitOK                = 0
	exitFailure           = 1
	exitVisibilityTimeout = 2
	exitInterrupted       = 130
)

type cli struct {
	*verifier.Verifier
	Help    bool
	Version bool
}

func NewCLI() *cli {
	return &cli{Verifier: verifier.NewVerifierWithOptions(verifier.NewOptions())}
}

func init() {
	log.Init("screencheck")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	cli := NewCLI()

	if err := loadEnv(".env").apply(cli); err != nil {
		log.Errorf("%v", err)
		return exitFailure
	}

	if err := cli.parseFlags(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(stdout, usage)
			return exitOK
		}
		fmt.Fprint(os.Stderr, usage)
		return exitFailure
	}

	if cli.Help {
		fmt.Fprint(stdout, usage)
		return exitOK
	}

	if cli.Version {
		fmt.Fprintln(stdout, "screencheck", version, "by", author)
		return exitOK
	}

	cli.SetDebug(cli.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := cli.Run(ctx)
	if err != nil {
		return exitCode(err)
	}

	log.Debugf("Verification of %s took %v", result.TargetURL, result.Elapsed)
	return exitOK
}

// exitCode logs a run error once and maps it to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, verifier.ErrVisibilityTimeout):
		log.Errorf("%v (is the server running and is the page up to date?)", err)
		return exitVisibilityTimeout
	case errors.Is(err, context.Canceled):
		log.Warnf("Interrupted: %v", err)
		return exitInterrupted
	default:
		log.Errorf("Verification failed: %v", err)
		log.Debugf("Root cause: %s", unwrapError(err))
		return exitFailure
	}
}

func (cli *cli) parseFlags(args []string) error {
	fs := flag.NewFlagSet("screencheck", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	opts := &cli.Options
	var viewportOnly, headed bool
	viewportOnly = !opts.CaptureFull
	headed = !opts.Headless

	// TARGET
	fs.StringVar(&opts.URL, "url", opts.URL, "")
	fs.StringVar(&opts.URL, "u", opts.URL, "")
	fs.StringVar(&opts.Placeholder, "placeholder", opts.Placeholder, "")
	fs.StringVar(&opts.Placeholder, "p", opts.Placeholder, "")

	// CONFIGURATIONS
	fs.StringVar(&opts.Driver, "driver", opts.Driver, "")
	fs.StringVar(&opts.Driver, "d", opts.Driver, "")
	fs.DurationVar(&opts.VisibilityTimeout, "timeout", opts.VisibilityTimeout, "")
	fs.DurationVar(&opts.VisibilityTimeout, "to", opts.VisibilityTimeout, "")
	fs.DurationVar(&opts.NavigationTimeout, "navigation-timeout", opts.NavigationTimeout, "")
	fs.DurationVar(&opts.NavigationTimeout, "nt", opts.NavigationTimeout, "")
	fs.StringVar(&opts.UserAgent, "user-agent", opts.UserAgent, "")
	fs.StringVar(&opts.UserAgent, "ua", opts.UserAgent, "")
	fs.BoolVar(&opts.UseHTTP2, "use-http2", opts.UseHTTP2, "")
	fs.BoolVar(&opts.UseHTTP2, "uh", opts.UseHTTP2, "")
	fs.IntVar(&opts.CaptureWidth, "capture-width", opts.CaptureWidth, "")
	fs.IntVar(&opts.CaptureWidth, "cw", opts.CaptureWidth, "")
	fs.IntVar(&opts.CaptureHeight, "capture-height", opts.CaptureHeight, "")
	fs.IntVar(&opts.CaptureHeight, "ch", opts.CaptureHeight, "")
	fs.BoolVar(&viewportOnly, "viewport-only", viewportOnly, "")
	fs.BoolVar(&viewportOnly, "vp", viewportOnly, "")
	fs.BoolVar(&headed, "headed", headed, "")
	fs.BoolVar(&headed, "hd", headed, "")
	fs.BoolVar(&opts.RespectCertificateErrors, "respect-cert-err", opts.RespectCertificateErrors, "")
	fs.BoolVar(&opts.RespectCertificateErrors, "rce", opts.RespectCertificateErrors, "")
	fs.BoolVar(&opts.InstallBrowsers, "install-browsers", opts.InstallBrowsers, "")
	fs.BoolVar(&opts.InstallBrowsers, "ib", opts.InstallBrowsers, "")
	fs.StringVar(&opts.BrowserPath, "browser-path", opts.BrowserPath, "")
	fs.StringVar(&opts.BrowserPath, "bp", opts.BrowserPath, "")

	// OUTPUT
	fs.StringVar(&opts.ScreenshotPath, "output", opts.ScreenshotPath, "")
	fs.StringVar(&opts.ScreenshotPath, "o", opts.ScreenshotPath, "")
	fs.IntVar(&opts.MaxWidth, "max-width", opts.MaxWidth, "")
	fs.IntVar(&opts.MaxWidth, "mw", opts.MaxWidth, "")
	fs.BoolVar(&opts.Imprint, "imprint", opts.Imprint, "")
	fs.BoolVar(&opts.Imprint, "im", opts.Imprint, "")
	fs.BoolVar(&cli.Debug, "debug", cli.Debug, "")
	fs.BoolVar(&cli.Help, "help", false, "")
	fs.BoolVar(&cli.Help, "h", false, "")
	fs.BoolVar(&cli.Version, "version", false, "")

	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Errorf("%v", err)
		}
		return err
	}

	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		log.Errorf("%v", err)
		return err
	}

	opts.CaptureFull = !viewportOnly
	opts.Headless = !headed
	opts.Driver = strings.ToLower(opts.Driver)

	return nil
}

func unwrapError(err error) string {
	rootErr := err
	for {
		unwrappedErr := errors.Unwrap(rootErr)
		if unwrappedErr == nil {
			break
		}
		rootErr = unwrappedErr
	}
	return rootErr.Error()
}
