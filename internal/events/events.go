// Package events renders the engine's side effects — fills and depth
// changes — onto the persistence queue and the market-data channels,
// per spec.md §4.7 and §6.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/queue"
	"fenrir/internal/wire"

	"github.com/rs/zerolog/log"
)

// Emitter publishes the side effects of a single engine command onto
// the "db" queue and the market-data channels.
type Emitter struct {
	q queue.Backend
}

// New constructs an Emitter over an already-dialed queue client.
func New(q queue.Backend) *Emitter {
	return &Emitter{q: q}
}

// EmitFills left-pushes one InsertTrade envelope per fill onto "db" and
// publishes one trade tick per fill onto "trade.{TICKER}". takerSide is
// the taker order's side, reported as the trade's aggressor side since
// common.Fill itself does not carry one. Errors are logged and
// swallowed: a downstream persistence/market-data hiccup must never
// roll back or block the engine's committed state.
func (e *Emitter) EmitFills(ctx context.Context, market string, takerSide common.Side, fills []common.Fill) {
	for _, fill := range fills {
		e.emitTrade(ctx, market, takerSide, fill)
	}
}

func (e *Emitter) emitTrade(ctx context.Context, market string, takerSide common.Side, fill common.Fill) {
	insert := wire.InsertTradeEnvelope{InsertTrade: wire.InsertTradePayload{
		TradeID:     fill.TradeID,
		Market:      market,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		UserID:      fill.TakerUserID,
		OtherUserID: fill.MakerUserID,
		OrderID:     fill.TakerOrderID,
		Timestamp:   fill.Timestamp.UnixMilli(),
	}}

	raw, err := json.Marshal(insert)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode InsertTrade envelope")
		return
	}
	if err := e.q.LPush(ctx, "db", string(raw)); err != nil {
		log.Error().Err(err).Uint64("tradeID", fill.TradeID).Msg("failed to enqueue InsertTrade")
	}

	tick := wire.TradeEvent{
		Market:    market,
		TradeID:   fill.TradeID,
		Price:     fill.Price,
		Quantity:  fill.Quantity,
		Side:      wire.SideToken(takerSide),
		Timestamp: fill.Timestamp.UnixMilli(),
	}
	rawTick, err := json.Marshal(tick)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode trade tick")
		return
	}
	channel := fmt.Sprintf("trade.%s", market)
	if err := e.q.Publish(ctx, channel, string(rawTick)); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to publish trade tick")
	}
}

// EmitDepth publishes a single depth event onto "depth.{TICKER}" that
// carries every touched price level, split into bids and asks. Nothing
// is published when changes is empty.
func (e *Emitter) EmitDepth(ctx context.Context, market string, lastUpdateID uint64, changes []engine.DepthChange) {
	if len(changes) == 0 {
		return
	}

	var bids, asks []wire.DepthLevelPair
	for _, c := range changes {
		pair := wire.DepthLevelPair{c.Price, c.Quantity}
		if c.Side == common.Buy {
			bids = append(bids, pair)
		} else {
			asks = append(asks, pair)
		}
	}

	evt := wire.DepthEvent{Market: market, Bids: bids, Asks: asks, LastUpdateID: lastUpdateID}
	raw, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode depth event")
		return
	}

	channel := fmt.Sprintf("depth.%s", market)
	if err := e.q.Publish(ctx, channel, string(raw)); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to publish depth event")
	}
}
