package main

import (
	"os"
	"os/signal"
	"syscall"

	"canvasdatasync/controller"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *options) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run sync passes on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conf, err := opts.loadConfig(ctx)
			if err != nil {
				return err
			}
			svc, err := newServices(ctx, conf)
			if err != nil {
				return err
			}

			// the scheduler replaces this reinvoker with itself
			c := svc.controller(nil)
			scheduler, err := controller.NewScheduler(c, conf.Schedule, conf.PassTimeout)
			if err != nil {
				return err
			}
			scheduler.OnPass = func(summary controller.Summary, err error) {
				if err == nil {
					log.Info("Pass complete", zap.Bool("reinvoke", summary.Reinvoke),
						zap.Int("fetched", summary.FetchedFiles), zap.Int("removed", summary.RemovedFiles))
				}
			}
			if svc.local != nil {
				svc.local.Start(ctx)
				defer svc.closeLocal()
			}
			if now {
				scheduler.Trigger([]byte(`{"source":"canvasdata.serve"}`))
			}

			log.Info("Serving", zap.String("schedule", conf.Schedule), zap.Duration("pass_timeout", conf.PassTimeout))
			return scheduler.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&opts.overrides.Schedule, "schedule", "", "cron schedule of the passes (schedule)")
	cmd.Flags().DurationVar(&opts.overrides.PassTimeout, "pass-timeout", 0, "wall-clock budget of one pass (pass_timeout)")
	cmd.Flags().IntVar(&opts.overrides.LocalWorkers, "workers", 0, "in-process download workers (local_workers)")
	cmd.Flags().Float64Var(&opts.overrides.FetchRate, "fetch-rate", 0, "downloads started per second (fetch_rate)")
	cmd.Flags().BoolVar(&now, "now", false, "start a pass immediately instead of waiting for the schedule")
	return cmd
}
