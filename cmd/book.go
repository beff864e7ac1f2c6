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

func newBookCmd() *cobra.Command {
	var (
		locationURL string
		phone       string
		code        string
		date        string
		interval    string
		duration    int
		room        string
		studio      string
		stateIn     string
		resumeURL   string
		priority    int
	)

	c := &cobra.Command{
		Use:   "book",
		Short: "Run phase two: confirm the code, proceed to payment and print the СБП link",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			metadata := map[string]string{
				booking.KeyMode:      booking.ModeComplete,
				booking.KeyPhone:     phone,
				booking.KeyCode:      code,
				booking.KeyDate:      date,
				booking.KeyInterval:  interval,
				booking.KeyDuration:  strconv.Itoa(duration),
				booking.KeyRoom:      room,
				booking.KeyStudio:    studio,
				booking.KeyResumeURL: resumeURL,
			}
			if stateIn != "" {
				state, err := os.ReadFile(stateIn)
				if err != nil {
					return fmt.Errorf("read session state: %w", err)
				}
				metadata[booking.KeyStorageState] = string(state)
			}

			factory := &browser.Factory{Headless: cfg.Headless, Timeout: cfg.DefaultTimeout, Logger: logger}
			engine := scenario.NewEngine(factory, cfg.DefaultTimeout, cfg.ReadyAttempts, logger)
			sched := booking.NewScheduler(engine, cfg.PollInterval, logger)
			sched.Start()
			defer sched.Stop()

			task := booking.NewTask(locationURL, fmt.Sprintf("Автозапись на %s %s", date, interval), priority, metadata)
			result, err := sched.Submit(task).Wait(cmd.Context())
			if err != nil {
				return err
			}
			if result.State != booking.StateCompleted {
				return fmt.Errorf("%s", result.Message)
			}

			fmt.Println(result.Message)
			if result.PaymentURL != "" {
				fmt.Println(result.PaymentURL)
			}
			return nil
		},
	}

	c.Flags().StringVar(&locationURL, "url", "", "booking page URL")
	c.Flags().StringVar(&phone, "phone", "", "phone number used in phase one")
	c.Flags().StringVar(&code, "code", "", "verification code received by SMS")
	c.Flags().StringVar(&date, "date", "", "slot date (YYYY-MM-DD)")
	c.Flags().StringVar(&interval, "interval", "", "slot interval (HH:MM–HH:MM)")
	c.Flags().IntVar(&duration, "duration", 60, "duration in minutes")
	c.Flags().StringVar(&room, "room", "", "preferred court name (optional)")
	c.Flags().StringVar(&studio, "studio", "", "studio name filter (optional)")
	c.Flags().StringVar(&stateIn, "state-in", "", "session state file saved by request-code")
	c.Flags().StringVar(&resumeURL, "resume-url", "", "resume locator printed by request-code")
	c.Flags().IntVar(&priority, "priority", 0, "queue priority, lower first")
	_ = c.MarkFlagRequired("url")
	_ = c.MarkFlagRequired("phone")
	_ = c.MarkFlagRequired("code")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("interval")
	return c
}
