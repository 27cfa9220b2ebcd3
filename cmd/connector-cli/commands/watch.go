package commands

import (
	"log/slog"

	"instconnect/internal/components/chrono"
	"instconnect/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var watchSchedule string

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "@every 6h", "A cron schedule, evaluated in the configured timezone.")
	watchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Also write every result to this file, overrides the config's output.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--schedule <cron spec>]",
	Short: "Runs extract on a schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		env := setup(cmd.Context())
		defer env.close()

		scheduler := chrono.NewCronScheduler(env.clock, env.tel)
		err := scheduler.Schedule(watchSchedule, func() {
			// the default date range follows the current day
			run := env
			resolved, err := resolveConfig(env.raw, env.clock)
			if err != nil {
				slog.Error("invalid config", "err", err)
				return
			}
			run.config = resolved
			runExtract(cmd, run)
		})
		if err != nil {
			serviceutil.Fatal("invalid schedule", err)
		}

		slog.Info("watching", "schedule", watchSchedule)
		scheduler.Start()
		<-cmd.Context().Done()
		slog.Info("stopping, waiting for the running extraction")
		<-scheduler.Stop().Done()
	},
}
