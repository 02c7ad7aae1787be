package renew

import "time"

// Outcome is the result of a best-effort step. The zero value means the
// step was never reached.
type Outcome string

const (
	OutcomePerformed     Outcome = "performed"      // the step did its action
	OutcomeNotApplicable Outcome = "not-applicable" // nothing to do
	OutcomeFailedIgnored Outcome = "failed-ignored" // failed, flow continued
)

// Report describes what a run did.
type Report struct {
	Started time.Time
	Elapsed time.Duration

	// Layout is the login layout that matched.
	Layout     string
	HumanCheck Outcome
	Recovery   Outcome
	// Renewed is true once the renew click was dispatched. Whether the
	// panel honoured it is not verified.
	Renewed bool
	// Screenshot is the diagnostic capture written on failure, if any.
	Screenshot string
}
