package main

import (
	"context"
	"fmt"
	"os"

	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/dbaas/internal/agent"
	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("guestagent"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	queue := guest.QueueName(cfg.GuestInstanceID)
	w := worker.New(tc, queue, worker.Options{})

	handler := agent.NewHandler(logger, cfg)
	handler.Register(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter := handler.Reporter(cfg.AgentHeartbeatTime)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		logger.Info().Str("taskQueue", queue).Msg("starting guest agent")
		return w.Run(worker.InterruptCh())
	})
	g.Go(func() error {
		reporter.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("agent failed")
	}
}
