package locator

import (
	"errors"
	"fmt"
)

// DefaultVersion identifies the built-in strategy revision. Bump it whenever
// the defaults below change so config files pinned to an older revision are
// easy to spot in logs.
const DefaultVersion = 2

// LoginLayout is one known variant of the login form.
type LoginLayout struct {
	Name     string  `toml:"name"`
	Username Locator `toml:"username"`
	Password Locator `toml:"password"`
	Submit   Locator `toml:"submit"`
}

// HumanCheck locates the verification checkbox embedded in a frame.
type HumanCheck struct {
	Frame    Locator `toml:"frame"`
	Checkbox Locator `toml:"checkbox"`
}

// Dashboard holds the server page heuristics.
type Dashboard struct {
	OfflineIndicators []Locator `toml:"offline_indicators"`
	StartButton       Locator   `toml:"start_button"`
	RenewButton       Locator   `toml:"renew_button"`
}

// Set is a complete, versioned locator strategy.
type Set struct {
	Version    int           `toml:"version"`
	Login      []LoginLayout `toml:"login"`
	HumanCheck HumanCheck    `toml:"human_check"`
	Dashboard  Dashboard     `toml:"dashboard"`
}

// Default returns the built-in strategy.
func Default() Set {
	return Set{
		Version: DefaultVersion,
		Login: []LoginLayout{
			{
				Name:     "english",
				Username: Name("email"),
				Password: Name("password"),
				Submit:   XPath("//button[@type='submit']"),
			},
			{
				// Seen when the panel fails to load its translations and
				// renders raw localisation keys as labels.
				Name:     "i18n-keys",
				Username: XPath("//label[contains(., 'auth.email')]/following::input[1]"),
				Password: XPath("//label[contains(., 'auth.password')]/following::input[1]"),
				Submit:   XPath("//button[contains(., 'auth.login') or contains(., 'auth.sign_in') or @type='submit']"),
			},
		},
		HumanCheck: HumanCheck{
			Frame:    CSS(`iframe[src*="challenges.cloudflare.com"], iframe[title*="verif" i]`),
			Checkbox: CSS(`input[type="checkbox"]`),
		},
		Dashboard: Dashboard{
			OfflineIndicators: []Locator{Text("Offline"), Text("Stopped")},
			StartButton:       XPath("//button[contains(., 'Start') or contains(., 'Restart')]"),
			RenewButton:       XPath("//button[contains(., 'Renew')]"),
		},
	}
}

// Validate checks every locator in the set.
func (s Set) Validate() error {
	if len(s.Login) == 0 {
		return errors.New("locators: at least one login layout is required")
	}

	var errs []error
	seen := make(map[string]bool)
	for i, l := range s.Login {
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("login[%d]: name is required", i))
		} else if seen[l.Name] {
			errs = append(errs, fmt.Errorf("login[%d]: duplicate layout %q", i, l.Name))
		}
		seen[l.Name] = true

		for field, loc := range map[string]Locator{"username": l.Username, "password": l.Password, "submit": l.Submit} {
			if err := loc.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("login %q %s: %w", l.Name, field, err))
			}
		}
	}

	if err := s.HumanCheck.Frame.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("human_check frame: %w", err))
	}
	if err := s.HumanCheck.Checkbox.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("human_check checkbox: %w", err))
	} else if _, isXPath := s.HumanCheck.Checkbox.Selector(); isXPath {
		// chromedp cannot scope XPath queries to a frame node.
		errs = append(errs, errors.New("human_check checkbox: must be css or name, xpath cannot run inside a frame"))
	}

	if len(s.Dashboard.OfflineIndicators) == 0 {
		errs = append(errs, errors.New("dashboard: at least one offline indicator is required"))
	}
	for i, loc := range s.Dashboard.OfflineIndicators {
		if err := loc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("dashboard offline_indicators[%d]: %w", i, err))
		}
	}
	if err := s.Dashboard.StartButton.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dashboard start_button: %w", err))
	}
	if err := s.Dashboard.RenewButton.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dashboard renew_button: %w", err))
	}

	return errors.Join(errs...)
}
