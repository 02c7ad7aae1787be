package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read by hcrenew.
const (
	EnvUsername  = "HIDENCLOUD_USERNAME"
	EnvPassword  = "HIDENCLOUD_PASSWORD"
	EnvChromeBin = "CHROME_BIN"
	EnvCI        = "CI"
)

// Getenv looks up an environment variable. os.LookupEnv satisfies it.
type Getenv func(key string) (string, bool)

// Credentials are the panel login. They are held only for form submission
// and never logged.
type Credentials struct {
	Username string
	Password string
}

// String redacts both values so a stray %v cannot leak them.
func (c Credentials) String() string {
	return "Credentials{Username:<redacted>, Password:<redacted>}"
}

// GoString redacts for %#v.
func (c Credentials) GoString() string {
	return c.String()
}

// MissingError reports required configuration that was not provided.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: please set %s", strings.Join(e.Vars, " and "))
}

// Validate returns a *MissingError naming every empty credential.
func (c Credentials) Validate() error {
	var missing []string
	if c.Username == "" {
		missing = append(missing, EnvUsername)
	}
	if c.Password == "" {
		missing = append(missing, EnvPassword)
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}

// LoadCredentials reads the credential pair from the environment.
func LoadCredentials(getenv Getenv) (Credentials, error) {
	var c Credentials
	c.Username, _ = getenv(EnvUsername)
	c.Password, _ = getenv(EnvPassword)
	return c, c.Validate()
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none)
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv folds environment overrides into the config. headlessFlag is the
// value of --headless; any of the flag, a set CI variable, or
// browser.headless in the file turns headless mode on.
func (c *Config) ApplyEnv(getenv Getenv, headlessFlag bool) {
	if bin, ok := getenv(EnvChromeBin); ok && bin != "" {
		c.Browser.ExecPath = bin
	}
	_, ci := getenv(EnvCI)
	c.Browser.Headless = c.Browser.Headless || headlessFlag || ci
}
