package verifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	DriverRod        = "rod"
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// Driver launches browsers for a single verification run.
type Driver interface {
	Launch(ctx context.Context, opts Options) (Browser, error)
}

// Browser is one launched browser with a single open page.
type Browser interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible blocks until an element with the exact placeholder text is
	// visible. Expiry of timeout is reported as ErrWaitTimeout.
	WaitVisible(ctx context.Context, placeholder string, timeout time.Duration) error
	Screenshot(ctx context.Context, fullPage bool) (Image, error)
	URL() string
	// Close releases the page, the connection and the browser process.
	// Calling it more than once is allowed.
	Close() error
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, opts Options) (Browser, error)

func (f DriverFunc) Launch(ctx context.Context, opts Options) (Browser, error) {
	return f(ctx, opts)
}

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{
		DriverRod:        rodDriver{},
		DriverChromedp:   chromedpDriver{},
		DriverPlaywright: playwrightDriver{},
	}
)

// RegisterDriver makes a driver available under name, replacing any driver
// already registered with that name.
func RegisterDriver(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()

	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return d, nil
}
