package browser

import (
	"context"
	"errors"
	"time"

	"github.com/ibeckermayer/hcrenew/internal/locator"
)

var (
	// ErrTimeout is wrapped by every bounded wait that expires.
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrNotFound means an element matched nothing when it was needed.
	ErrNotFound = errors.New("element not found")
	// ErrNoFrame is returned by ExitFrame outside a frame context.
	ErrNoFrame = errors.New("not inside a frame")
	// ErrInFrame is returned by EnterFrame when a frame is already entered.
	ErrInFrame = errors.New("already inside a frame")
	// ErrClosed is returned by any call after Close.
	ErrClosed = errors.New("browser session closed")
)

// IsTimeout reports whether err came from an expired wait.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Driver is the page surface the renewal flow drives. Every wait is bounded
// by the timeout passed in and fails with an error wrapping ErrTimeout.
type Driver interface {
	// Navigate loads url in the current tab.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until loc is visible.
	WaitVisible(ctx context.Context, loc locator.Locator, timeout time.Duration) error
	// SendKeys waits for loc and types text into it.
	SendKeys(ctx context.Context, loc locator.Locator, text string, timeout time.Duration) error
	// Click waits until loc is visible and enabled, then clicks it.
	Click(ctx context.Context, loc locator.Locator, timeout time.Duration) error
	// DispatchClick waits for loc and calls element.click() from page
	// script, so overlays covering the element do not swallow the click.
	DispatchClick(ctx context.Context, loc locator.Locator, timeout time.Duration) error
	// Exists reports whether loc currently matches anything, without waiting.
	Exists(ctx context.Context, loc locator.Locator) (bool, error)
	// EnterFrame scopes later lookups to the frame matched by loc. Every
	// successful EnterFrame must be paired with ExitFrame.
	EnterFrame(ctx context.Context, loc locator.Locator, timeout time.Duration) error
	// ExitFrame returns lookups to the top-level document.
	ExitFrame(ctx context.Context) error
	// Screenshot writes a PNG of the viewport to path.
	Screenshot(ctx context.Context, path string) error
	// Close terminates the browser.
	Close() error
}
