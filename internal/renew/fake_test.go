package renew

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibeckermayer/hcrenew/internal/browser"
	"github.com/ibeckermayer/hcrenew/internal/locator"
)

// fakeDriver is a scripted page. Elements listed in visible can be waited
// for, typed into and clicked; anything else times out.
type fakeDriver struct {
	visible map[locator.Locator]bool
	present map[locator.Locator]bool
	frames  map[locator.Locator]bool

	clickErr      map[locator.Locator]error
	navigateErr   error
	existsErr     error
	screenshotErr error

	inFrame     bool
	calls       []string
	typed       map[locator.Locator]string
	screenshots []string
	closeCount  int
	// screenshotCtxErr is the state of the context Screenshot was given.
	screenshotCtxErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		visible:  make(map[locator.Locator]bool),
		present:  make(map[locator.Locator]bool),
		frames:   make(map[locator.Locator]bool),
		clickErr: make(map[locator.Locator]error),
		typed:    make(map[locator.Locator]string),
	}
}

func (d *fakeDriver) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) wait(loc locator.Locator, timeout time.Duration) error {
	if d.visible[loc] {
		return nil
	}
	return fmt.Errorf("%w: %s after %s", browser.ErrTimeout, loc, timeout)
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.record("Navigate %s", url)
	return d.navigateErr
}

func (d *fakeDriver) WaitVisible(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	d.record("WaitVisible %s", loc)
	return d.wait(loc, timeout)
}

func (d *fakeDriver) SendKeys(ctx context.Context, loc locator.Locator, text string, timeout time.Duration) error {
	d.record("SendKeys %s", loc)
	if err := d.wait(loc, timeout); err != nil {
		return err
	}
	d.typed[loc] = text
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	d.record("Click %s", loc)
	if err := d.wait(loc, timeout); err != nil {
		return err
	}
	return d.clickErr[loc]
}

func (d *fakeDriver) DispatchClick(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	d.record("DispatchClick %s", loc)
	if err := d.wait(loc, timeout); err != nil {
		return err
	}
	return d.clickErr[loc]
}

func (d *fakeDriver) Exists(ctx context.Context, loc locator.Locator) (bool, error) {
	d.record("Exists %s", loc)
	if d.existsErr != nil {
		return false, d.existsErr
	}
	return d.present[loc], nil
}

func (d *fakeDriver) EnterFrame(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	d.record("EnterFrame %s", loc)
	if d.inFrame {
		return browser.ErrInFrame
	}
	if !d.frames[loc] {
		return fmt.Errorf("%w: %s after %s", browser.ErrTimeout, loc, timeout)
	}
	d.inFrame = true
	return nil
}

func (d *fakeDriver) ExitFrame(ctx context.Context) error {
	d.record("ExitFrame")
	if !d.inFrame {
		return browser.ErrNoFrame
	}
	d.inFrame = false
	return nil
}

func (d *fakeDriver) Screenshot(ctx context.Context, path string) error {
	d.record("Screenshot %s", path)
	d.screenshotCtxErr = ctx.Err()
	if d.screenshotErr != nil {
		return d.screenshotErr
	}
	d.screenshots = append(d.screenshots, path)
	return nil
}

func (d *fakeDriver) Close() error {
	d.record("Close")
	d.closeCount++
	return nil
}

// called reports whether a call with exactly this description was made.
func (d *fakeDriver) called(call string) bool {
	return d.index(call) >= 0
}

// index returns the position of the first matching call, or -1.
func (d *fakeDriver) index(call string) int {
	for i, c := range d.calls {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeLauncher struct {
	driver *fakeDriver
	err    error
	calls  int
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Driver, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.driver, nil
}

var errStale = errors.New("node is detached from document")
