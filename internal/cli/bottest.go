package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/hcrenew/internal/locator"
	"github.com/ibeckermayer/hcrenew/internal/logging"
)

const botTestURL = "https://bot.sannysoft.com"

func botTestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bot-test",
		Short: "Open bot.sannysoft.com to audit the browser fingerprint",
		Long: `Opens bot.sannysoft.com in a visible browser with the same stealth
options used for renewals. Press Enter to close it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runBotTest(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}
}

func (o *options) runBotTest(ctx context.Context, in io.Reader, out io.Writer) error {
	log := logging.Component(o.log, "browser")
	log.Info().Str("url", botTestURL).Msg("Opening fingerprint test page with stealth browser options")

	cfg := o.cfg.Browser
	cfg.Headless = false // so you can see it

	d, err := o.launcher(cfg, log).Launch(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Navigate(ctx, botTestURL); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := d.WaitVisible(ctx, locator.CSS("body"), o.cfg.Timeouts.Locator.Duration); err != nil {
		return fmt.Errorf("failed to load %s: %w", botTestURL, err)
	}

	fmt.Fprintln(out, "Press Enter to close the browser...")

	done := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(in).ReadString('\n')
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	log.Info().Msg("Done")
	return nil
}
