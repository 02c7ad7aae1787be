package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/hcrenew/internal/config"
	"github.com/ibeckermayer/hcrenew/internal/logging"
	"github.com/ibeckermayer/hcrenew/internal/renew"
	"github.com/ibeckermayer/hcrenew/internal/scheduler"
)

// jobGrace is added to the run timeout for the screenshot and browser
// shutdown that follow a failed run.
const jobGrace = time.Minute

func scheduleCmd(o *options) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "schedule [cron]",
		Short: "Renew on a cron schedule until interrupted",
		Long: `Runs a renewal on every tick of a standard five-field cron expression
("0 9 * * *" is 09:00 daily). Without an argument schedule.cron from the
config file is used. A tick that arrives while the previous run is still
going is skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := o.cfg.Schedule.Cron
			if len(args) == 1 {
				spec = args[0]
			}
			return o.runSchedule(cmd.Context(), spec, now)
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "also run once immediately")

	return cmd
}

func (o *options) runSchedule(ctx context.Context, spec string, now bool) error {
	log := logging.Component(o.log, "scheduler")

	if err := scheduler.ValidateSchedule(spec); err != nil {
		return err
	}
	// Missing credentials will not appear between ticks.
	if _, err := config.LoadCredentials(o.getenv); err != nil {
		log.Error().Err(err).Msg("Cannot start scheduler")
		return &renew.Failure{Kind: renew.KindConfigMissing, Step: "config", Err: err}
	}

	s, err := scheduler.New(o.cfg.Schedule.Timezone, o.cfg.Timeouts.Run.Duration+jobGrace, log)
	if err != nil {
		return err
	}

	job := func(ctx context.Context) error {
		_, err := o.runOnce(ctx)
		return err
	}
	if err := s.AddJob("renew", spec, job); err != nil {
		return err
	}

	s.Start()
	for _, j := range s.ListJobs() {
		log.Info().Str("job", j.Name).Time("next_run", j.NextRun).Msg("Waiting for next run")
	}

	if now {
		// The result is logged by the scheduler; keep serving ticks either way.
		_ = s.RunNow(ctx, "renew", job)
	}

	<-ctx.Done()
	<-s.Stop().Done()
	log.Info().Msg("Scheduler stopped")
	return nil
}
