package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/hcrenew/internal/config"
)

func configCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	cmd.AddCommand(configInitCmd(o))
	cmd.AddCommand(configShowCmd(o))

	return cmd
}

func configInitCmd(o *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o.setupLogging()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.configPath()
			if err != nil {
				return err
			}
			if err := initConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func initConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return config.Default().SaveTo(path)
}

func configShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config after environment and flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.showConfig(cmd.OutOrStdout())
		},
	}
}

// showConfig prints the effective config. Credentials are reported as set or
// unset, never printed.
func (o *options) showConfig(out io.Writer) error {
	for _, key := range []string{config.EnvUsername, config.EnvPassword} {
		state := "unset"
		if v, ok := o.getenv(key); ok && v != "" {
			state = "set"
		}
		fmt.Fprintf(out, "# %s: %s\n", key, state)
	}
	return toml.NewEncoder(out).Encode(o.cfg)
}
