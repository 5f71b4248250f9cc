package main

import (
	"context"
	"os/signal"
	"syscall"

	"fenrir/internal/common"
	"fenrir/internal/config"
	"fenrir/internal/dispatch"
	"fenrir/internal/engine"
	"fenrir/internal/queue"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg := config.Load()
	q := queue.New(cfg.RedisAddr)
	defer q.Close()

	eng := engine.New(
		common.AssetPair{Base: common.BTC, Quote: common.USDT},
		common.AssetPair{Base: common.ETH, Quote: common.USDT},
		common.AssetPair{Base: common.SOL, Quote: common.USDT},
	)

	d := dispatch.New(eng, q)

	log.Info().Str("redisAddr", cfg.RedisAddr).Msg("engine starting")
	d.Run(ctx)
}
