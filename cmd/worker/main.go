// Command worker consumes published ledger events from Pub/Sub and runs the
// daily summary projection and forward cost recalculation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/ledgercore/internal/bootstrap"
	"github.com/erp/ledgercore/internal/infrastructure/event"
	"go.uber.org/zap"
)

const (
	serviceName    = "ledgercore-worker"
	maxOutstanding = 64
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgercore-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, serviceName)
	if err != nil {
		return err
	}
	log := rt.Logger
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()

	if !rt.Config.PubSub.Enabled() {
		return errors.New("pubsub is not configured; the API server consumes events in-process")
	}
	topic, err := rt.Topic(ctx)
	if err != nil {
		return err
	}
	sub, err := rt.Subscription(ctx, topic)
	if err != nil {
		return err
	}

	// no dispatcher: events raised by recalculation wait for the API's sweeper
	deps, err := rt.DocumentDeps(nil)
	if err != nil {
		return err
	}
	registry := event.NewHandlerRegistry(log.Named("registry"))
	for _, h := range rt.EventHandlers(deps) {
		registry.Register(h)
	}

	log.Info("Worker starting",
		zap.String("topic", topic.ID()),
		zap.String("subscription", sub.ID()),
	)
	if err := event.NewSubscriber(sub, registry, maxOutstanding, log.Named("subscriber")).Run(ctx); err != nil {
		return err
	}
	log.Info("Worker stopped")
	return nil
}
