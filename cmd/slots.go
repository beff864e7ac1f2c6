package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/padel-scheduler/internal/availability"
	"github.com/example/padel-scheduler/internal/config"
	"github.com/example/padel-scheduler/internal/slots"
	"github.com/example/padel-scheduler/internal/vivacrm"
)

func newSlotsCmd() *cobra.Command {
	var (
		date     string
		duration int
	)

	c := &cobra.Command{
		Use:   "slots",
		Short: "List free contiguous windows per studio for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			client := vivacrm.New(vivacrm.Options{HTTPTimeout: cfg.HTTPTimeout}, logger)
			service := availability.NewService(client, 0, logger)

			byStudio, err := service.Windows(cmd.Context(), date, duration)
			if err != nil {
				if errors.Is(err, availability.ErrNoWindows) {
					fmt.Println("Свободных окон нет.")
					return nil
				}
				return err
			}

			for _, studio := range slots.Studios(byStudio) {
				fmt.Printf("📍 %s\n", studio)
				for _, entry := range byStudio[studio] {
					fmt.Printf("  • %s\n", entry)
				}
			}
			return nil
		},
	}

	c.Flags().StringVar(&date, "date", "", "date to query (YYYY-MM-DD)")
	c.Flags().IntVar(&duration, "duration", 60, "requested duration in minutes")
	_ = c.MarkFlagRequired("date")
	return c
}
