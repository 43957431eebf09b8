/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sfm-market/storefront/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect catalog events",
}

// eventsTailCmd prints catalog events as JSON lines until interrupted.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print catalog events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.FromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("no message broker configured; set MQ_BACKEND")
		}
		defer broker.Close()

		log.Info("tailing events", "channel", broker.Channel())
		enc := json.NewEncoder(os.Stdout)
		err = broker.SubscribeEvents(ctx, func(_ context.Context, ev mq.Event) error {
			return enc.Encode(ev)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
