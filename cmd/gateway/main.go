package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"fenrir/internal/config"
	"fenrir/internal/gateway"
	"fenrir/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg := config.Load()
	q := queue.New(cfg.RedisAddr)
	defer q.Close()

	r := gin.Default()
	gateway.New(q).Routes(r)

	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: r}

	go func() {
		log.Info().Str("addr", cfg.GatewayAddr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("gateway server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("gateway shutting down")
	_ = srv.Shutdown(context.Background())
}
