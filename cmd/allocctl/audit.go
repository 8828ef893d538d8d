package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/trainer-seat-allocation/internal/queue"
)

func newAuditConsumerCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "audit-consumer",
		Short: "Consume allocation events and append them to " + queue.AuditLogPath,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = queue.BrokerURL()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err := queue.StartAuditConsumer(ctx, url)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "AMQP URL (defaults to RABBITMQ_URL)")
	return cmd
}
