package main

import (
	"context"
	"os/signal"
	"syscall"

	"fenrir/internal/config"
	"fenrir/internal/dbworker"
	"fenrir/internal/queue"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg := config.Load()
	q := queue.New(cfg.RedisAddr)
	defer q.Close()

	w, err := dbworker.Open(q, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open postgres connection")
	}
	defer w.Close()

	log.Info().Str("redisAddr", cfg.RedisAddr).Msg("dbworker starting")
	w.Run(ctx)
}
