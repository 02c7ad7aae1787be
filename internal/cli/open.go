package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func openCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|screenshot>",
		Short:     "Open the config file or the last failure screenshot",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "screenshot"},
		// A broken config file must still be openable.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o.setupLogging()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.openTarget(args[0])
			if err != nil {
				return err
			}
			return o.open(path)
		},
	}
}

func (o *options) openTarget(target string) (string, error) {
	switch target {
	case "config":
		return o.configPath()
	case "screenshot":
		if o.screenshot != "" {
			return o.screenshot, nil
		}
		cfg, err := o.loadConfig()
		if err != nil {
			return "", err
		}
		return cfg.Screenshot, nil
	default:
		return "", fmt.Errorf("unknown target: %s", target)
	}
}

func (o *options) open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	o.log.Info().Str("path", path).Msg("Opening")
	if err := o.openFile(path); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	return nil
}
