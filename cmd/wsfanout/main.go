package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"fenrir/internal/config"
	"fenrir/internal/queue"
	"fenrir/internal/wsfanout"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg := config.Load()
	q := queue.New(cfg.RedisAddr)
	defer q.Close()

	manager := wsfanout.New(q)

	t, _ := tomb.WithContext(ctx)
	t.Go(func() error {
		manager.Run(t)
		return nil
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", manager.ServeHTTP)
	srv := &http.Server{Addr: cfg.WSAddr, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.WSAddr).Msg("wsfanout listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("wsfanout server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("wsfanout shutting down")
	_ = srv.Shutdown(context.Background())
	t.Kill(nil)
}
