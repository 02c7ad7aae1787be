// Package cli is the hcrenew command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	pkgbrowser "github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/hcrenew/internal/browser"
	"github.com/ibeckermayer/hcrenew/internal/config"
	"github.com/ibeckermayer/hcrenew/internal/logging"
	"github.com/ibeckermayer/hcrenew/internal/renew"
)

// options holds the flags shared by every command and the state built from
// them before a command runs.
type options struct {
	cfgFile    string
	screenshot string
	headless   bool
	verbose    bool
	jsonLog    bool

	getenv   config.Getenv
	stderr   io.Writer
	launcher func(cfg config.BrowserConfig, log zerolog.Logger) renew.Launcher
	openFile func(path string) error

	cfg *config.Config
	log zerolog.Logger
}

func newOptions() *options {
	return &options{
		getenv: os.LookupEnv,
		stderr: os.Stderr,
		launcher: func(cfg config.BrowserConfig, log zerolog.Logger) renew.Launcher {
			return browser.NewLauncher(cfg, log)
		},
		openFile: pkgbrowser.OpenFile,
	}
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(newOptions())
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return renew.ExitOK
	}

	// Run failures are already logged with their context.
	var f *renew.Failure
	if !errors.As(err, &f) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return renew.ExitCode(err)
}

func newRootCmd(o *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hcrenew",
		Short: "Keep a HidenCloud free server renewed",
		Long: `hcrenew logs into the HidenCloud panel, starts the server if it is
offline and clicks Renew.

Credentials are read from HIDENCLOUD_USERNAME and HIDENCLOUD_PASSWORD, or
from a .env file in the working directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := o.runOnce(cmd.Context())
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&o.cfgFile, "config", "", "config file (default: user config directory)")
	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&o.jsonLog, "json-log", false, "log as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&o.headless, "headless", false, "run the browser without a window (also enabled by CI)")
	rootCmd.PersistentFlags().StringVar(&o.screenshot, "screenshot", "", "where to save the screenshot taken on failure")

	rootCmd.AddCommand(scheduleCmd(o))
	rootCmd.AddCommand(botTestCmd(o))
	rootCmd.AddCommand(openCmd(o))
	rootCmd.AddCommand(configCmd(o))

	return rootCmd
}

// setupLogging builds the root logger from the flags.
func (o *options) setupLogging() {
	o.log = logging.New(logging.Options{Verbose: o.verbose, JSON: o.jsonLog, Out: o.stderr})
}

// setup loads .env, the config file and the environment, then applies flags.
func (o *options) setup() error {
	o.setupLogging()
	log := logging.Component(o.log, "cli")

	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("Ignoring .env")
	}

	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	cfg.ApplyEnv(o.getenv, o.headless)
	if o.screenshot != "" {
		cfg.Screenshot = o.screenshot
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	o.cfg = cfg
	log.Debug().
		Str("target", cfg.TargetURL).
		Bool("headless", cfg.Browser.Headless).
		Int("locators_version", cfg.Locators.Version).
		Msg("Configuration loaded")
	return nil
}

func (o *options) loadConfig() (*config.Config, error) {
	if o.cfgFile != "" {
		return config.LoadFrom(o.cfgFile)
	}
	return config.Load()
}

func (o *options) configPath() (string, error) {
	if o.cfgFile != "" {
		return o.cfgFile, nil
	}
	return config.ConfigPath()
}

// runOnce performs a single renewal.
func (o *options) runOnce(ctx context.Context) (*renew.Report, error) {
	log := logging.Component(o.log, "renew")

	// A missing credential is reported by Run before anything is launched.
	creds, _ := config.LoadCredentials(o.getenv)

	launcher := o.launcher(o.cfg.Browser, logging.Component(o.log, "browser"))
	report, err := renew.New(o.cfg, launcher, log).Run(ctx, creds)
	if err != nil {
		return report, err
	}

	log.Info().
		Str("layout", report.Layout).
		Str("human_check", string(report.HumanCheck)).
		Str("recovery", string(report.Recovery)).
		Dur("elapsed", report.Elapsed).
		Msg("Renewal completed")
	return report, nil
}
