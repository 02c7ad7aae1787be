package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/hcrenew/internal/config"
	"github.com/ibeckermayer/hcrenew/internal/locator"
)

const (
	// existsTimeout bounds the non-waiting Exists query; it only guards
	// against a wedged DevTools connection.
	existsTimeout     = 5 * time.Second
	navigateTimeout   = 2 * time.Minute
	screenshotTimeout = 30 * time.Second
)

// Launcher starts Chrome sessions with the stealth configuration.
type Launcher struct {
	cfg config.BrowserConfig
	log zerolog.Logger
}

// NewLauncher creates a launcher for cfg.
func NewLauncher(cfg config.BrowserConfig, log zerolog.Logger) *Launcher {
	return &Launcher{cfg: cfg, log: log}
}

// Launch starts the browser, installs the stealth scripts and returns the
// session. The caller owns the session and must Close it.
func (l *Launcher) Launch(ctx context.Context) (Driver, error) {
	scripts, err := StealthScripts(l.cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Bool("headless", l.cfg.Headless).
		Str("exec_path", l.cfg.ExecPath).
		Msg("Launching browser")

	s := l.newSession(ctx)

	// The first Run starts the browser process. Abandon the launch if the
	// caller gives up first.
	stop := context.AfterFunc(ctx, s.allocCancel)
	err = chromedp.Run(s.ctx, installScripts(scripts))
	stop()
	if err != nil {
		s.Close()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return s, nil
}

// newSession builds the allocator and tab contexts without starting Chrome.
// They outlive ctx and end only with Close; each call is tied to its own
// caller by bounded.
func (l *Launcher) newSession(ctx context.Context) *Session {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), Options(l.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.log.Debug().Msgf(format, args...)
		}),
	)

	return &Session{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		log:         l.log,
	}
}

var _ Driver = (*Session)(nil)

// Session is a single Chrome tab driven over the DevTools protocol.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	log         zerolog.Logger

	// frame scopes queries while inside EnterFrame/ExitFrame.
	frame *cdp.Node

	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// bounded derives a chromedp context that expires after timeout and is also
// cancelled when the caller's ctx is.
func (s *Session) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// run executes actions under timeout and classifies expiry as ErrTimeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, loc locator.Locator, actions ...chromedp.Action) error {
	if s.closed {
		return ErrClosed
	}

	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, loc, timeout)
	}
	return fmt.Errorf("%s: %w", loc, err)
}

// query converts loc to a chromedp selector and options, scoped to the
// current frame when one is entered.
func (s *Session) query(loc locator.Locator, extra ...chromedp.QueryOption) (string, []chromedp.QueryOption) {
	sel, isXPath := loc.Selector()

	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if isXPath {
		opts = []chromedp.QueryOption{chromedp.BySearch}
	}
	if s.frame != nil {
		opts = append(opts, chromedp.FromNode(s.frame))
	}
	return sel, append(opts, extra...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.closed {
		return ErrClosed
	}
	runCtx, cancel := s.bounded(ctx, navigateTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) WaitVisible(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	sel, opts := s.query(loc)
	return s.run(ctx, timeout, loc, chromedp.WaitVisible(sel, opts...))
}

func (s *Session) SendKeys(ctx context.Context, loc locator.Locator, text string, timeout time.Duration) error {
	sel, opts := s.query(loc)
	return s.run(ctx, timeout, loc,
		chromedp.WaitVisible(sel, opts...),
		chromedp.SendKeys(sel, text, opts...),
	)
}

func (s *Session) Click(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	sel, opts := s.query(loc)
	return s.run(ctx, timeout, loc,
		chromedp.WaitVisible(sel, opts...),
		chromedp.WaitEnabled(sel, opts...),
		chromedp.Click(sel, append(opts, chromedp.NodeVisible)...),
	)
}

func (s *Session) DispatchClick(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	var nodes []*cdp.Node
	sel, opts := s.query(loc)
	return s.run(ctx, timeout, loc,
		chromedp.WaitReady(sel, opts...),
		chromedp.Nodes(sel, &nodes, opts...),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return ErrNotFound
			}
			obj, err := dom.ResolveNode().WithNodeID(nodes[0].NodeID).Do(ctx)
			if err != nil {
				return err
			}
			_, exception, err := runtime.CallFunctionOn(`function() { this.click(); }`).
				WithObjectID(obj.ObjectID).
				Do(ctx)
			if err != nil {
				return err
			}
			if exception != nil {
				return exception
			}
			return nil
		}),
	)
}

func (s *Session) Exists(ctx context.Context, loc locator.Locator) (bool, error) {
	var nodes []*cdp.Node
	sel, opts := s.query(loc, chromedp.AtLeast(0))
	if err := s.run(ctx, existsTimeout, loc, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (s *Session) EnterFrame(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	if s.frame != nil {
		return ErrInFrame
	}

	var nodes []*cdp.Node
	sel, opts := s.query(loc)
	err := s.run(ctx, timeout, loc,
		chromedp.WaitReady(sel, opts...),
		chromedp.Nodes(sel, &nodes, opts...),
	)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%s: %w", loc, ErrNotFound)
	}

	s.frame = nodes[0]
	s.log.Debug().Stringer("frame", loc).Msg("Entered frame")
	return nil
}

func (s *Session) ExitFrame(ctx context.Context) error {
	if s.frame == nil {
		return ErrNoFrame
	}
	s.frame = nil
	s.log.Debug().Msg("Returned to top-level document")
	return nil
}

func (s *Session) Screenshot(ctx context.Context, path string) error {
	if s.closed {
		return ErrClosed
	}
	runCtx, cancel := s.bounded(ctx, screenshotTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return os.WriteFile(path, buf, 0644)
}

// Close closes the tab, asks Chrome to exit and then kills the process.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		s.frame = nil
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
	})
	return s.closeErr
}
