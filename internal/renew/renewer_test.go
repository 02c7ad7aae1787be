package renew

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/hcrenew/internal/browser"
	"github.com/ibeckermayer/hcrenew/internal/config"
	"github.com/ibeckermayer/hcrenew/internal/locator"
)

var testCreds = config.Credentials{Username: "user@example.com", Password: "s3cret-pass"}

type harness struct {
	cfg      *config.Config
	driver   *fakeDriver
	launcher *fakeLauncher
	renewer  *Renewer
	logs     *bytes.Buffer
	sleeps   []time.Duration
}

// newHarness returns a renewer wired to a page where the primary login form,
// the renew button and nothing else are present.
func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Screenshot = "failure.png"

	d := newFakeDriver()
	primary := cfg.Locators.Login[0]
	d.visible[primary.Username] = true
	d.visible[primary.Password] = true
	d.visible[primary.Submit] = true
	d.visible[cfg.Locators.Dashboard.RenewButton] = true

	h := &harness{
		cfg:      cfg,
		driver:   d,
		launcher: &fakeLauncher{driver: d},
		logs:     &bytes.Buffer{},
	}
	h.renewer = New(cfg, h.launcher, zerolog.New(h.logs))
	h.renewer.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) run(t *testing.T) (*Report, error) {
	t.Helper()
	return h.renewer.Run(context.Background(), testCreds)
}

func (h *harness) secondary() locator.LoginLayout {
	return h.cfg.Locators.Login[1]
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t)

	report, err := h.run(t)
	require.NoError(t, err)

	assert.True(t, report.Renewed)
	assert.Equal(t, "english", report.Layout)
	assert.Equal(t, OutcomeNotApplicable, report.HumanCheck)
	assert.Equal(t, OutcomeNotApplicable, report.Recovery)
	assert.Empty(t, report.Screenshot)
	assert.Empty(t, h.driver.screenshots)

	primary := h.cfg.Locators.Login[0]
	assert.Equal(t, testCreds.Username, h.driver.typed[primary.Username])
	assert.Equal(t, testCreds.Password, h.driver.typed[primary.Password])
	assert.Equal(t, "Navigate "+config.DefaultTargetURL, h.driver.calls[0])
	assert.Equal(t, []time.Duration{10 * time.Second}, h.sleeps, "settle period only")
	assert.Equal(t, 1, h.driver.closeCount)
}

func TestRunMissingCredentialsNeverLaunches(t *testing.T) {
	for _, creds := range []config.Credentials{
		{Username: "user"},
		{Password: "pass"},
		{},
	} {
		h := newHarness(t)

		_, err := h.renewer.Run(context.Background(), creds)
		require.Error(t, err)

		assert.Equal(t, KindConfigMissing, KindOf(err))
		assert.Equal(t, ExitConfigMissing, ExitCode(err))
		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.False(t, f.Retryable())
		var missing *config.MissingError
		assert.ErrorAs(t, err, &missing)

		assert.Zero(t, h.launcher.calls)
		assert.Empty(t, h.driver.calls)
	}
}

func TestRunPrimaryLayoutNeverTriesSecondary(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t)
	require.NoError(t, err)

	sec := h.secondary()
	for _, loc := range []locator.Locator{sec.Username, sec.Password, sec.Submit} {
		for _, c := range h.driver.calls {
			assert.NotContains(t, c, loc.String())
		}
	}
}

func TestRunFallsBackToSecondaryLayout(t *testing.T) {
	h := newHarness(t)
	primary := h.cfg.Locators.Login[0]
	sec := h.secondary()
	h.driver.visible = map[locator.Locator]bool{
		sec.Username:                         true,
		sec.Password:                         true,
		sec.Submit:                           true,
		h.cfg.Locators.Dashboard.RenewButton: true,
	}

	report, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, "i18n-keys", report.Layout)
	assert.True(t, report.Renewed)
	assert.Equal(t, testCreds.Username, h.driver.typed[sec.Username])
	assert.Equal(t, testCreds.Password, h.driver.typed[sec.Password])
	assert.True(t, h.driver.called("DispatchClick "+sec.Submit.String()))
	assert.False(t, h.driver.called("SendKeys "+primary.Username.String()))
	assert.Less(t,
		h.driver.index("WaitVisible "+primary.Username.String()),
		h.driver.index("WaitVisible "+sec.Username.String()),
	)
}

func TestRunNoLoginLayoutMatches(t *testing.T) {
	h := newHarness(t)
	h.driver.visible = map[locator.Locator]bool{}

	report, err := h.run(t)
	require.Error(t, err)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindLocatorTimeoutSecondary, f.Kind)
	assert.Equal(t, "login", f.Step)
	assert.Equal(t, "i18n-keys", f.Layout)
	assert.True(t, f.Retryable())
	assert.True(t, browser.IsTimeout(err))
	assert.Equal(t, ExitLocatorTimeoutSecondary, ExitCode(err))

	assert.Equal(t, []string{"failure.png"}, h.driver.screenshots)
	assert.Equal(t, "failure.png", report.Screenshot)
	assert.False(t, report.Renewed)
	assert.Equal(t, 1, h.driver.closeCount)
	assert.Equal(t, "Close", h.driver.calls[len(h.driver.calls)-1])
}

func TestRunSingleLayoutTimeoutIsPrimary(t *testing.T) {
	h := newHarness(t)
	h.cfg.Locators.Login = h.cfg.Locators.Login[:1]
	h.driver.visible = map[locator.Locator]bool{}

	_, err := h.run(t)
	assert.Equal(t, KindLocatorTimeoutPrimary, KindOf(err))
	assert.Equal(t, ExitLocatorTimeoutPrimary, ExitCode(err))
}

func TestRunRenewTimeoutTaggedByLayout(t *testing.T) {
	t.Run("primary", func(t *testing.T) {
		h := newHarness(t)
		delete(h.driver.visible, h.cfg.Locators.Dashboard.RenewButton)

		report, err := h.run(t)
		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.Equal(t, KindLocatorTimeoutPrimary, f.Kind)
		assert.Equal(t, "renew", f.Step)
		assert.False(t, report.Renewed)
		assert.Len(t, h.driver.screenshots, 1)
	})

	t.Run("secondary", func(t *testing.T) {
		h := newHarness(t)
		sec := h.secondary()
		h.driver.visible = map[locator.Locator]bool{sec.Username: true, sec.Password: true, sec.Submit: true}

		_, err := h.run(t)
		assert.Equal(t, KindLocatorTimeoutSecondary, KindOf(err))
	})
}

func TestRunOfflineServerIsRestarted(t *testing.T) {
	h := newHarness(t)
	dash := h.cfg.Locators.Dashboard
	h.driver.present[dash.OfflineIndicators[1]] = true // "Stopped"
	h.driver.visible[dash.StartButton] = true

	report, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, OutcomePerformed, report.Recovery)
	assert.True(t, report.Renewed)
	assert.Less(t,
		h.driver.index("Click "+dash.StartButton.String()),
		h.driver.index("Click "+dash.RenewButton.String()),
	)
	assert.Equal(t, []time.Duration{10 * time.Second, 15 * time.Second}, h.sleeps)
}

func TestRunOfflineRestartFailureStillRenews(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"start button missing", func(h *harness) {}},
		{"start click fails", func(h *harness) {
			start := h.cfg.Locators.Dashboard.StartButton
			h.driver.visible[start] = true
			h.driver.clickErr[start] = errStale
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.driver.present[h.cfg.Locators.Dashboard.OfflineIndicators[0]] = true
			tt.setup(h)

			report, err := h.run(t)
			require.NoError(t, err)

			assert.Equal(t, OutcomeFailedIgnored, report.Recovery)
			assert.True(t, h.driver.called("Click "+h.cfg.Locators.Dashboard.StartButton.String()))
			assert.True(t, report.Renewed)
		})
	}
}

func TestRunStatusProbeFailureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.driver.existsErr = errStale

	report, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailedIgnored, report.Recovery)
	assert.True(t, report.Renewed)
}

func TestRunOnlineServerSkipsStart(t *testing.T) {
	h := newHarness(t)
	dash := h.cfg.Locators.Dashboard

	report, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotApplicable, report.Recovery)
	for _, loc := range dash.OfflineIndicators {
		assert.True(t, h.driver.called("Exists "+loc.String()))
	}
	for _, c := range h.driver.calls {
		assert.NotContains(t, c, dash.StartButton.String())
	}
	assert.True(t, h.driver.called("Click "+dash.RenewButton.String()))
}

func TestRunHumanCheck(t *testing.T) {
	t.Run("checkbox clicked", func(t *testing.T) {
		h := newHarness(t)
		hc := h.cfg.Locators.HumanCheck
		h.driver.frames[hc.Frame] = true
		h.driver.visible[hc.Checkbox] = true

		report, err := h.run(t)
		require.NoError(t, err)
		assert.Equal(t, OutcomePerformed, report.HumanCheck)
		assert.False(t, h.driver.inFrame)
	})

	t.Run("checkbox never clickable", func(t *testing.T) {
		h := newHarness(t)
		hc := h.cfg.Locators.HumanCheck
		h.driver.frames[hc.Frame] = true

		report, err := h.run(t)
		require.NoError(t, err)

		assert.Equal(t, OutcomeFailedIgnored, report.HumanCheck)
		assert.False(t, h.driver.inFrame, "frame context must be exited")

		enter := h.driver.index("EnterFrame " + hc.Frame.String())
		click := h.driver.index("Click " + hc.Checkbox.String())
		exit := h.driver.index("ExitFrame")
		submit := h.driver.index("DispatchClick " + h.cfg.Locators.Login[0].Submit.String())
		require.True(t, enter >= 0 && click >= 0 && exit >= 0 && submit >= 0, "calls: %v", h.driver.calls)
		assert.True(t, enter < click && click < exit && exit < submit, "calls: %v", h.driver.calls)
		assert.True(t, report.Renewed)
	})

	t.Run("no widget", func(t *testing.T) {
		h := newHarness(t)

		report, err := h.run(t)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotApplicable, report.HumanCheck)
		assert.False(t, h.driver.called("ExitFrame"))
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Timeouts.HumanCheck = config.Duration{}

		report, err := h.run(t)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotApplicable, report.HumanCheck)
		assert.False(t, h.driver.called("EnterFrame "+h.cfg.Locators.HumanCheck.Frame.String()))
	})
}

func TestRunClosesBrowserExactlyOnce(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		wantErr bool
	}{
		{"success", func(h *harness) {}, false},
		{"login failure", func(h *harness) { h.driver.visible = map[locator.Locator]bool{} }, true},
		{"renew failure", func(h *harness) {
			h.driver.clickErr[h.cfg.Locators.Dashboard.RenewButton] = errStale
		}, true},
		{"navigation failure", func(h *harness) { h.driver.navigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			_, err := h.run(t)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, 1, h.driver.closeCount)
		})
	}
}

func TestRunActionFailure(t *testing.T) {
	h := newHarness(t)
	h.driver.clickErr[h.cfg.Locators.Dashboard.RenewButton] = errStale

	_, err := h.run(t)
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindActionFailed, f.Kind)
	assert.ErrorIs(t, err, errStale)
	assert.True(t, f.Retryable())
	assert.Equal(t, ExitActionFailed, ExitCode(err))
}

func TestRunLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.launcher.err = errors.New("exec: \"google-chrome\": executable file not found in $PATH")

	report, err := h.run(t)
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindActionFailed, f.Kind)
	assert.Equal(t, "launch", f.Step)
	assert.Zero(t, h.driver.closeCount)
	assert.Empty(t, report.Screenshot)
}

func TestRunScreenshotFailureKeepsOriginalError(t *testing.T) {
	h := newHarness(t)
	h.driver.visible = map[locator.Locator]bool{}
	h.driver.screenshotErr = errors.New("target closed")

	report, err := h.run(t)
	assert.Equal(t, KindLocatorTimeoutSecondary, KindOf(err))
	assert.Empty(t, report.Screenshot)
	assert.Equal(t, 1, h.driver.closeCount)
}

func TestRunScreenshotAfterRunDeadline(t *testing.T) {
	h := newHarness(t)
	h.cfg.Timeouts.Run = config.Duration{Duration: 20 * time.Millisecond}
	h.cfg.Timeouts.Settle = config.Duration{Duration: time.Hour}
	h.renewer.sleep = sleepContext

	report, err := h.run(t)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"failure.png"}, h.driver.screenshots)
	assert.NoError(t, h.driver.screenshotCtxErr, "capture must not inherit the expired run context")
	assert.Equal(t, "failure.png", report.Screenshot)
	assert.Equal(t, 1, h.driver.closeCount)
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.renewer.Run(ctx, testCreds)
	assert.Equal(t, KindActionFailed, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.driver.closeCount)
}

func TestRunNeverLogsCredentials(t *testing.T) {
	h := newHarness(t)
	h.driver.visible = map[locator.Locator]bool{}

	_, _ = h.run(t)
	assert.NotContains(t, h.logs.String(), testCreds.Password)
	assert.NotContains(t, h.logs.String(), testCreds.Username)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitUnclassified, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigMissing, ExitCode(fmt.Errorf("wrapped: %w", &config.MissingError{Vars: []string{"X"}})))
	assert.Equal(t, ExitLocatorTimeoutPrimary, ExitCode(&Failure{Kind: KindLocatorTimeoutPrimary}))
}

func TestInFrameAlwaysExits(t *testing.T) {
	d := newFakeDriver()
	frame := locator.CSS("iframe")
	d.frames[frame] = true

	entered, err := inFrame(context.Background(), d, frame, time.Second, func() error {
		assert.True(t, d.inFrame)
		return errStale
	})
	assert.True(t, entered)
	assert.ErrorIs(t, err, errStale)
	assert.False(t, d.inFrame)

	d.calls = nil
	entered, err = inFrame(context.Background(), d, locator.CSS("iframe.missing"), time.Second, func() error {
		t.Fatal("fn must not run when the frame is absent")
		return nil
	})
	assert.False(t, entered)
	assert.True(t, browser.IsTimeout(err))
	assert.False(t, d.called("ExitFrame"))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
