// Package dbworker consumes the "db" queue and persists each fill as a
// row in the trades table via database/sql and github.com/lib/pq.
package dbworker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"fenrir/internal/queue"
	"fenrir/internal/wire"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const pollInterval = 20 * time.Millisecond

// Worker drains the "db" queue into Postgres.
type Worker struct {
	q  queue.Backend
	db *sql.DB
}

// Open prepares a Postgres connection pool for dsn and returns a Worker;
// sql.Open does not connect, so an unreachable database surfaces on the
// first insert. Callers own the returned Worker's lifetime and should
// Close it on shutdown.
func Open(q queue.Backend, dsn string) (*Worker, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &Worker{q: q, db: db}, nil
}

// Close releases the database connection pool.
func (w *Worker) Close() error {
	return w.db.Close()
}

// Run polls "db" until ctx is cancelled, writing one row per
// InsertTrade envelope it pops.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Msg("dbworker running")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dbworker shutting down")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	raw, err := w.q.RPop(ctx, "db")
	if err != nil {
		if err != queue.ErrEmpty {
			log.Error().Err(err).Msg("failed to pop from db queue")
		}
		return
	}

	var envelope wire.InsertTradeEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		log.Error().Err(err).Str("payload", raw).Msg("dropping malformed InsertTrade envelope")
		return
	}

	if err := w.insert(ctx, envelope.InsertTrade); err != nil {
		log.Error().Err(err).Uint64("tradeID", envelope.InsertTrade.TradeID).Msg("failed to persist trade")
	}
}

const insertTradeSQL = `
INSERT INTO trades (trade_id, market, price, quantity, user_id, other_user_id, order_id, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (trade_id, market) DO NOTHING`

func (w *Worker) insert(ctx context.Context, t wire.InsertTradePayload) error {
	_, err := w.db.ExecContext(ctx, insertTradeSQL,
		t.TradeID, t.Market, t.Price.String(), t.Quantity.String(), t.UserID, t.OtherUserID, t.OrderID,
		time.UnixMilli(t.Timestamp).UTC())
	return err
}
