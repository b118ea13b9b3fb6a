// Command notice-tail prints notices published to the AMQP notice queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cli"
	"expensetracker/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting notice-tail")

	cfg := cli.LoadAndValidateConfig(logger)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	received := 0
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeNotices(gctx, func(m *amqp.NoticeMessage) error {
			received++
			fmt.Printf("%s [%s] %s: %s (source=%s trace=%s)\n",
				m.Timestamp.Format(time.RFC3339), m.Severity, m.Summary, m.Detail, m.Source, m.TraceID)
			return nil
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notice consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("notice-tail stopped", "received", received)
}
