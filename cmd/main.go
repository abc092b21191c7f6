package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"response-broker/handler"
	"response-broker/internal/config"
	"response-broker/internal/wiring"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// ---- Broker graph ----
	ctr, err := wiring.New(ctx, cfg, logger, wiring.Overrides{})
	if err != nil {
		slog.Error("failed to build broker", "err", err)
		os.Exit(1)
	}
	defer ctr.Close()
	// Frozen containers miss timer ticks; the quota also rolls over lazily.
	ctr.StartBackground(ctx)

	// ---- Handler ----
	h, err := handler.NewHandler(ctr.Broker, logger)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
