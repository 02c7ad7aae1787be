package renew

import (
	"errors"
	"fmt"

	"github.com/ibeckermayer/hcrenew/internal/browser"
	"github.com/ibeckermayer/hcrenew/internal/config"
)

// Kind classifies why a run failed.
type Kind string

const (
	// KindConfigMissing: required credentials were not provided. Nothing
	// was launched.
	KindConfigMissing Kind = "config-missing"
	// KindLocatorTimeoutPrimary: an element wait expired while the primary
	// login layout was in use.
	KindLocatorTimeoutPrimary Kind = "locator-timeout-primary"
	// KindLocatorTimeoutSecondary: an element wait expired after falling
	// back to an alternate login layout, including when no layout matched.
	KindLocatorTimeoutSecondary Kind = "locator-timeout-secondary"
	// KindActionFailed: anything else (launch, navigation, stale node).
	KindActionFailed Kind = "action-failed"
)

// Exit statuses returned by ExitCode.
const (
	ExitOK                      = 0
	ExitUnclassified            = 1
	ExitConfigMissing           = 2
	ExitLocatorTimeoutPrimary   = 3
	ExitLocatorTimeoutSecondary = 4
	ExitActionFailed            = 5
)

// Failure is the tagged error returned by Renewer.Run.
type Failure struct {
	Kind Kind
	// Step is the pipeline step that failed, e.g. "login" or "renew".
	Step string
	// Layout is the login layout in use when the failure happened.
	Layout string
	Err    error
}

func (f *Failure) Error() string {
	if f.Layout != "" {
		return fmt.Sprintf("%s failed [%s, layout %s]: %v", f.Step, f.Kind, f.Layout, f.Err)
	}
	return fmt.Sprintf("%s failed [%s]: %v", f.Step, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether re-running later may succeed. Missing
// configuration never fixes itself.
func (f *Failure) Retryable() bool {
	return f.Kind != KindConfigMissing
}

// KindOf returns the failure kind of err, or "" if err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// ExitCode maps a Run result to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfigMissing:
		return ExitConfigMissing
	case KindLocatorTimeoutPrimary:
		return ExitLocatorTimeoutPrimary
	case KindLocatorTimeoutSecondary:
		return ExitLocatorTimeoutSecondary
	case KindActionFailed:
		return ExitActionFailed
	default:
		var missing *config.MissingError
		if errors.As(err, &missing) {
			return ExitConfigMissing
		}
		return ExitUnclassified
	}
}

// classify tags err from step. Timeouts are split by whether the flow had
// already fallen back from the primary layout.
func classify(step string, layout string, fellBack bool, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	kind := KindActionFailed
	var missing *config.MissingError
	switch {
	case errors.As(err, &missing):
		kind = KindConfigMissing
	case browser.IsTimeout(err) && fellBack:
		kind = KindLocatorTimeoutSecondary
	case browser.IsTimeout(err):
		kind = KindLocatorTimeoutPrimary
	}
	return &Failure{Kind: kind, Step: step, Layout: layout, Err: err}
}
