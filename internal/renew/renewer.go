// Package renew drives one renewal of the HidenCloud free server: log in,
// restart the server if it reports offline, click Renew.
package renew

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/hcrenew/internal/browser"
	"github.com/ibeckermayer/hcrenew/internal/config"
	"github.com/ibeckermayer/hcrenew/internal/locator"
)

// screenshotTimeout bounds the diagnostic capture, which runs even after the
// run deadline has passed.
const screenshotTimeout = 30 * time.Second

// Launcher starts a browser session. *browser.Launcher satisfies it.
type Launcher interface {
	Launch(ctx context.Context) (browser.Driver, error)
}

// Renewer runs the renewal pipeline.
type Renewer struct {
	cfg      *config.Config
	launcher Launcher
	log      zerolog.Logger

	// sleep waits out fixed pauses; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Renewer.
func New(cfg *config.Config, launcher Launcher, log zerolog.Logger) *Renewer {
	return &Renewer{
		cfg:      cfg,
		launcher: launcher,
		log:      log,
		sleep:    sleepContext,
	}
}

// Run performs one renewal. The returned report is never nil. On failure the
// error is a *Failure; a diagnostic screenshot has been attempted and the
// browser has been closed.
func (r *Renewer) Run(ctx context.Context, creds config.Credentials) (*Report, error) {
	report := &Report{Started: time.Now()}
	defer func() { report.Elapsed = time.Since(report.Started) }()

	if err := creds.Validate(); err != nil {
		r.log.Error().Err(err).Msg("Cannot start renewal")
		return report, &Failure{Kind: KindConfigMissing, Step: "config", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.Run.Duration)
	defer cancel()

	d, err := r.launcher.Launch(ctx)
	if err != nil {
		f := &Failure{Kind: KindActionFailed, Step: "launch", Err: err}
		r.log.Error().Err(err).Str("kind", string(f.Kind)).Msg("Could not start the browser")
		return report, f
	}
	defer func() {
		r.log.Info().Msg("Closing the browser")
		if err := d.Close(); err != nil {
			r.log.Warn().Err(err).Msg("Browser did not shut down cleanly")
		}
	}()

	fl := &flow{Renewer: r, d: d, report: report}
	if err := fl.run(ctx, creds); err != nil {
		f := classify(fl.step, fl.layout.Name, fl.fellBack, err)
		r.log.Error().
			Err(f.Err).
			Str("step", f.Step).
			Str("kind", string(f.Kind)).
			Bool("retryable", f.Retryable()).
			Msg("An error occurred")
		r.captureScreenshot(ctx, d, report)
		return report, f
	}

	return report, nil
}

func (r *Renewer) captureScreenshot(ctx context.Context, d browser.Driver, report *Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	path := r.cfg.Screenshot
	if err := d.Screenshot(ctx, path); err != nil {
		r.log.Warn().Err(err).Msg("Could not save diagnostic screenshot")
		return
	}
	report.Screenshot = path
	r.log.Info().Str("path", path).Msg("A screenshot has been saved for debugging")
}

// flow carries the state of one run through its steps.
type flow struct {
	*Renewer
	d      browser.Driver
	report *Report

	// step names the step in progress, for failure tagging.
	step string
	// layout is the login layout in use; fellBack is set once the primary
	// layout has been abandoned.
	layout   locator.LoginLayout
	fellBack bool
}

func (f *flow) run(ctx context.Context, creds config.Credentials) error {
	timeouts := f.cfg.Timeouts

	f.step = "navigate"
	f.log.Info().Str("url", f.cfg.TargetURL).Msg("Navigating to login page")
	if err := f.d.Navigate(ctx, f.cfg.TargetURL); err != nil {
		return err
	}

	f.log.Info().Dur("settle", timeouts.Settle.Duration).Msg("Waiting for potential challenge page to resolve")
	if err := f.sleep(ctx, timeouts.Settle.Duration); err != nil {
		return err
	}

	f.step = "login"
	if err := f.findLoginForm(ctx); err != nil {
		return err
	}

	f.log.Info().Str("layout", f.layout.Name).Msg("Entering credentials")
	if err := f.d.SendKeys(ctx, f.layout.Username, creds.Username, timeouts.Locator.Duration); err != nil {
		return err
	}
	if err := f.d.SendKeys(ctx, f.layout.Password, creds.Password, timeouts.Locator.Duration); err != nil {
		return err
	}

	f.step = "human-check"
	f.report.HumanCheck = f.humanCheck(ctx)

	f.step = "login"
	if err := f.d.DispatchClick(ctx, f.layout.Submit, timeouts.Locator.Duration); err != nil {
		return err
	}
	f.log.Info().Msg("Login submitted. Waiting for dashboard")

	f.step = "recovery"
	f.report.Recovery = f.recoverServer(ctx)

	f.step = "renew"
	if err := f.d.Click(ctx, f.cfg.Locators.Dashboard.RenewButton, timeouts.Locator.Duration); err != nil {
		return err
	}
	f.report.Renewed = true
	f.log.Info().Msg("Renew button clicked successfully")

	return nil
}

// findLoginForm tries each login layout in order. The first whose username
// field becomes visible is used for the rest of the run.
func (f *flow) findLoginForm(ctx context.Context) error {
	layouts := f.cfg.Locators.Login
	timeout := f.cfg.Timeouts.Locator.Duration

	for i, layout := range layouts {
		f.layout = layout
		f.fellBack = i > 0

		err := f.d.WaitVisible(ctx, layout.Username, timeout)
		if err == nil {
			f.report.Layout = layout.Name
			f.log.Debug().Str("layout", layout.Name).Msg("Login form found")
			return nil
		}
		if !browser.IsTimeout(err) || i == len(layouts)-1 {
			return err
		}
		f.log.Warn().
			Str("layout", layout.Name).
			Str("next", layouts[i+1].Name).
			Msg("Login form not found, trying alternate layout")
	}

	return errors.New("no login layouts configured")
}

// humanCheck ticks the verification checkbox if its frame is on the page.
func (f *flow) humanCheck(ctx context.Context) Outcome {
	hc := f.cfg.Locators.HumanCheck
	timeout := f.cfg.Timeouts.HumanCheck.Duration
	if timeout <= 0 {
		return OutcomeNotApplicable
	}

	entered, err := inFrame(ctx, f.d, hc.Frame, timeout, func() error {
		return f.d.Click(ctx, hc.Checkbox, timeout)
	})
	switch {
	case err == nil:
		f.log.Info().Msg("Human verification checkbox clicked")
		return OutcomePerformed
	case !entered && (browser.IsTimeout(err) || errors.Is(err, browser.ErrNotFound)):
		f.log.Debug().Msg("No human verification widget on the page")
		return OutcomeNotApplicable
	default:
		f.log.Warn().Err(err).Msg("Could not complete human verification, continuing")
		return OutcomeFailedIgnored
	}
}

// recoverServer starts the server when the dashboard says it is offline.
// It never fails the run: renewal is the goal, recovery is a bonus.
func (f *flow) recoverServer(ctx context.Context) Outcome {
	dash := f.cfg.Locators.Dashboard
	timeout := f.cfg.Timeouts.Locator.Duration

	f.log.Info().Msg("Checking server status")

	// The submit click returns before the dashboard renders; give it the
	// same bound the renew step will use.
	if err := f.d.WaitVisible(ctx, dash.RenewButton, timeout); err != nil {
		f.log.Debug().Err(err).Msg("Dashboard not ready, probing anyway")
	}

	offline, err := f.serverOffline(ctx)
	if err != nil {
		f.log.Warn().Err(err).Msg("Could not check server status")
		return OutcomeFailedIgnored
	}
	if !offline {
		f.log.Info().Msg("Server is online")
		return OutcomeNotApplicable
	}

	f.log.Info().Msg("Server is offline. Attempting to start it")
	if err := f.d.Click(ctx, dash.StartButton, timeout); err != nil {
		f.log.Warn().Err(err).Msg("Could not start the server")
		return OutcomeFailedIgnored
	}

	f.log.Info().
		Dur("pause", f.cfg.Timeouts.Restart.Duration).
		Msg("Start/Restart button clicked. Waiting for the server to initialize")
	if err := f.sleep(ctx, f.cfg.Timeouts.Restart.Duration); err != nil {
		f.log.Warn().Err(err).Msg("Interrupted while waiting for the server")
		return OutcomeFailedIgnored
	}
	return OutcomePerformed
}

func (f *flow) serverOffline(ctx context.Context) (bool, error) {
	for _, loc := range f.cfg.Locators.Dashboard.OfflineIndicators {
		found, err := f.d.Exists(ctx, loc)
		if err != nil {
			return false, err
		}
		if found {
			f.log.Debug().Stringer("indicator", loc).Msg("Offline indicator found")
			return true, nil
		}
	}
	return false, nil
}

// inFrame runs fn with lookups scoped to the frame matched by loc. Once the
// frame is entered it is always exited, whatever fn returns. entered reports
// whether the frame was found.
func inFrame(ctx context.Context, d browser.Driver, loc locator.Locator, timeout time.Duration, fn func() error) (entered bool, err error) {
	if err := d.EnterFrame(ctx, loc, timeout); err != nil {
		return false, err
	}
	defer func() {
		if exitErr := d.ExitFrame(ctx); exitErr != nil && err == nil {
			err = exitErr
		}
	}()
	return true, fn()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
