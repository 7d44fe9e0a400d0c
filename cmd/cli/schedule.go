package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/scheduler"
)

const scheduledJobName = "scan"

// scheduleCmd represents the schedule command.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Repeat scans on a cron schedule",
	Long: `Run the configured scan repeatedly on a cron schedule until interrupted.
The expression uses the standard five fields (minute hour day month weekday)
or a descriptor such as @hourly or "@every 15m". A run that is still going
when the next one is due causes that next run to be skipped.`,
	Example: `  bannerscan schedule --cron "0 */6 * * *" --hosts 10.0.0.5
  bannerscan schedule --cron @hourly --run-now --listen 127.0.0.1:9090`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	addRunFlags(scheduleCmd)
	scheduleCmd.Flags().String("cron", "", "Cron expression or descriptor (overrides schedule.cron)")
	scheduleCmd.Flags().Bool("run-now", false, "Run once immediately before waiting for the first tick")
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Schedule.Cron == "" {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"a cron expression is required", "schedule.cron", "")
	}
	if err := scheduler.ValidateExpr(cfg.Schedule.Cron); err != nil {
		return err
	}

	logger := logging.Default()
	s, err := newSession(cmd, cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stop := s.serve(ctx)
	defer stop()

	fatal := make(chan error, 1)
	abort := func(err error) {
		select {
		case fatal <- err:
		default:
		}
		cancel()
	}

	sched := scheduler.NewScheduler(logger)
	id, err := sched.AddJob(scheduledJobName, cfg.Schedule.Cron, scheduledRun(func(jobCtx context.Context) error {
		_, runErr := s.runner.Run(jobCtx, cfg)
		return runErr
	}, abort, logger))
	if err != nil {
		return err
	}

	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled scan of %d hosts with %q, press Ctrl+C to stop\n",
		len(cfg.Scan.Hosts), cfg.Schedule.Cron)

	immediate := make(chan struct{})
	if runNow, _ := cmd.Flags().GetBool("run-now"); runNow {
		go func() {
			defer close(immediate)
			if err := sched.RunNow(id); err != nil {
				logger.Error("Immediate run failed", "error", err)
			}
		}()
	} else {
		close(immediate)
	}

	<-ctx.Done()
	logger.Info("Stopping scheduled scans")
	sched.Stop()
	<-immediate

	select {
	case err := <-fatal:
		return err
	default:
		return nil
	}
}

// scheduledRun wraps run so that a fatal error, such as a configuration or
// permission problem that every later run would hit again, is handed to abort.
func scheduledRun(run scheduler.JobFunc, abort func(error), logger *logging.Logger) scheduler.JobFunc {
	return func(ctx context.Context) error {
		err := run(ctx)
		if errors.IsFatal(err) {
			logger.WithError(err).Error("Scheduled scan hit a fatal error, stopping schedule",
				"code", errors.GetCode(err))
			abort(err)
		}
		return err
	}
}
