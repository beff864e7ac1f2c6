package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/padel-scheduler/internal/booking"
	"github.com/example/padel-scheduler/internal/browser"
	"github.com/example/padel-scheduler/internal/config"
	"github.com/example/padel-scheduler/internal/scenario"
)

func newRequestCodeCmd() *cobra.Command {
	var (
		locationURL string
		phone       string
		date        string
		interval    string
		duration    int
		room        string
		studio      string
		stateOut    string
		priority    int
	)

	c := &cobra.Command{
		Use:   "request-code",
		Short: "Run phase one: select the slot, submit the phone, save the session for later confirmation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			factory := &browser.Factory{Headless: cfg.Headless, Timeout: cfg.DefaultTimeout, Logger: logger}
			engine := scenario.NewEngine(factory, cfg.DefaultTimeout, cfg.ReadyAttempts, logger)
			sched := booking.NewScheduler(engine, cfg.PollInterval, logger)
			sched.Start()
			defer sched.Stop()

			task := booking.NewTask(locationURL, fmt.Sprintf("Запрос кода для %s", phone), priority, map[string]string{
				booking.KeyMode:     booking.ModeRequestCode,
				booking.KeyPhone:    phone,
				booking.KeyDate:     date,
				booking.KeyInterval: interval,
				booking.KeyDuration: strconv.Itoa(duration),
				booking.KeyRoom:     room,
				booking.KeyStudio:   studio,
			})

			result, err := sched.Submit(task).Wait(cmd.Context())
			if err != nil {
				return err
			}
			if result.State != booking.StateCompleted {
				return fmt.Errorf("%s", result.Message)
			}

			fmt.Println(result.Message)
			if resumeURL := result.Payload[booking.KeyResumeURL]; resumeURL != "" {
				fmt.Printf("resume_url: %s\n", resumeURL)
			}
			if stateOut != "" {
				if err := os.WriteFile(stateOut, []byte(result.Payload[booking.KeyStorageState]), 0o600); err != nil {
					return fmt.Errorf("write session state: %w", err)
				}
				fmt.Printf("session state written to %s\n", stateOut)
			}
			return nil
		},
	}

	c.Flags().StringVar(&locationURL, "url", "", "booking page URL")
	c.Flags().StringVar(&phone, "phone", "", "phone number for the verification code")
	c.Flags().StringVar(&date, "date", "", "slot date (YYYY-MM-DD)")
	c.Flags().StringVar(&interval, "interval", "", "slot interval (HH:MM–HH:MM)")
	c.Flags().IntVar(&duration, "duration", 60, "duration in minutes")
	c.Flags().StringVar(&room, "room", "", "preferred court name (optional)")
	c.Flags().StringVar(&studio, "studio", "", "studio name filter (optional)")
	c.Flags().StringVar(&stateOut, "state-out", "", "file to save the session state for the confirm phase")
	c.Flags().IntVar(&priority, "priority", 0, "queue priority, lower first")
	_ = c.MarkFlagRequired("url")
	_ = c.MarkFlagRequired("phone")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("interval")
	return c
}
