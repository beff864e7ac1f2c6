package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/padel-scheduler/internal/booking"
	"github.com/example/padel-scheduler/internal/browser"
	"github.com/example/padel-scheduler/internal/config"
	"github.com/example/padel-scheduler/internal/scenario"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the booking worker and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			factory := &browser.Factory{Headless: cfg.Headless, Timeout: cfg.DefaultTimeout, Logger: logger}
			engine := scenario.NewEngine(factory, cfg.DefaultTimeout, cfg.ReadyAttempts, logger)
			sched := booking.NewScheduler(engine, cfg.PollInterval, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched.Start()
			logger.Info().Msg("booking worker running")
			<-ctx.Done()

			logger.Info().Msg("shutting down, waiting for the current task")
			sched.Stop()
			fmt.Println("done")
			return nil
		},
	}
}
