// Package dispatch runs the single-threaded command loop: it right-pops
// request envelopes off the "orders" queue, decodes the tagged union,
// drives the engine, and publishes exactly one reply on the request's
// reply channel — the sole goroutine permitted to mutate engine state,
// per spec.md §5.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"fenrir/internal/engine"
	"fenrir/internal/events"
	"fenrir/internal/queue"
	"fenrir/internal/wire"

	"github.com/rs/zerolog/log"
)

const pollInterval = 10 * time.Millisecond

// Dispatcher owns the engine exclusively and drives it from the
// "orders" queue.
type Dispatcher struct {
	eng     *engine.Engine
	q       queue.Backend
	emitter *events.Emitter
	inbound string
}

// New constructs a Dispatcher over eng, polling the "orders" key.
func New(eng *engine.Engine, q queue.Backend) *Dispatcher {
	return &Dispatcher{eng: eng, q: q, emitter: events.New(q), inbound: "orders"}
}

// Run polls "orders" with RPOP(count=1) until ctx is cancelled, exactly
// as spec.md §6 requires ("blocking pops are not required").
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Str("queue", d.inbound).Msg("dispatcher running")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcher shutting down")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	raw, err := d.q.RPop(ctx, d.inbound)
	if err != nil {
		if err != queue.ErrEmpty {
			log.Error().Err(err).Msg("failed to pop from orders queue")
		}
		return
	}

	var req wire.OrderRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		// A malformed payload is logged and dropped: there is no reply
		// channel we can trust to carry an error back.
		log.Error().Err(err).Str("payload", raw).Msg("dropping malformed request")
		return
	}

	log.Debug().Interface("request", req).Msg("processing request")

	pubsubID, err := req.PubsubID()
	if err != nil {
		log.Error().Err(err).Msg("dropping request with no pubsub_id")
		return
	}

	reply := d.handle(ctx, req)
	d.publish(ctx, pubsubID, reply)
}

func (d *Dispatcher) handle(ctx context.Context, req wire.OrderRequest) any {
	switch {
	case req.CreateOrder != nil:
		return d.handleCreateOrder(ctx, req.CreateOrder)
	case req.CancelOrder != nil:
		return d.handleCancelOrder(ctx, req.CancelOrder)
	case req.GetOpenOrders != nil:
		return d.handleGetOpenOrders(req.GetOpenOrders)
	case req.GetDepth != nil:
		return d.handleGetDepth(req.GetDepth)
	default:
		return wire.CreateOrderReply{Status: wire.StatusCreateFailed}
	}
}

func (d *Dispatcher) handleCreateOrder(ctx context.Context, p *wire.CreateOrderPayload) any {
	side, err := wire.ParseSide(p.Side)
	if err != nil {
		log.Error().Err(err).Msg("CreateOrder: bad side")
		return wire.CreateOrderReply{Status: wire.StatusCreateFailed}
	}
	if !p.Price.IsPositive() {
		log.Error().Err(wire.ErrMalformedRequest).Str("price", p.Price.String()).Msg("CreateOrder: price must be positive")
		return wire.CreateOrderReply{Status: wire.StatusCreateFailed}
	}

	result, depth, err := d.eng.CreateOrder(engine.CreateOrderRequest{
		Market:   p.Market,
		Side:     side,
		Price:    p.Price,
		Quantity: p.Quantity,
		UserID:   p.UserID,
	})
	if err != nil {
		log.Error().Err(err).Str("market", p.Market).Str("userID", p.UserID).Msg("CreateOrder failed")
		return wire.CreateOrderReply{Status: wire.StatusCreateFailed}
	}

	d.emitter.EmitFills(ctx, p.Market, side, result.Fills)
	d.emitter.EmitDepth(ctx, p.Market, d.lastUpdateID(p.Market), depth)

	return wire.CreateOrderReply{Status: wire.StatusCreated, OrderID: result.OrderID}
}

func (d *Dispatcher) handleCancelOrder(ctx context.Context, p *wire.CancelOrderPayload) any {
	side, err := wire.ParseSide(p.Side)
	if err != nil {
		log.Error().Err(err).Msg("CancelOrder: bad side")
		return wire.CreateOrderReply{Status: wire.StatusCancelFailed}
	}

	_, depth, err := d.eng.CancelOrder(engine.CancelOrderRequest{
		Market:  p.Market,
		OrderID: p.OrderID,
		Price:   p.Price,
		Side:    side,
	})
	if err != nil {
		log.Error().Err(err).Str("orderID", p.OrderID).Msg("CancelOrder failed")
		return wire.CreateOrderReply{Status: wire.StatusCancelFailed}
	}

	d.emitter.EmitDepth(ctx, p.Market, d.lastUpdateID(p.Market), depth)
	return wire.CreateOrderReply{Status: wire.StatusCancelled, OrderID: p.OrderID}
}

func (d *Dispatcher) handleGetOpenOrders(p *wire.GetOpenOrdersPayload) any {
	orders, err := d.eng.GetOpenOrders(p.Market, p.UserID)
	if err != nil {
		log.Error().Err(err).Str("market", p.Market).Msg("GetOpenOrders failed")
		return []wire.OrderRecord{}
	}

	records := make([]wire.OrderRecord, 0, len(orders))
	for _, o := range orders {
		records = append(records, wire.ToOrderRecord(o))
	}
	return records
}

func (d *Dispatcher) handleGetDepth(p *wire.GetDepthPayload) any {
	bids, asks, err := d.eng.GetDepth(p.Market)
	if err != nil {
		log.Error().Err(err).Str("market", p.Market).Msg("GetDepth failed")
		return wire.DepthReply{}
	}

	reply := wire.DepthReply{}
	for _, lvl := range bids {
		reply.Bids = append(reply.Bids, wire.DepthLevelPair{lvl.Price, lvl.Quantity})
	}
	for _, lvl := range asks {
		reply.Asks = append(reply.Asks, wire.DepthLevelPair{lvl.Price, lvl.Quantity})
	}
	return reply
}

func (d *Dispatcher) lastUpdateID(market string) uint64 {
	ob := d.eng.Book(market)
	if ob == nil {
		return 0
	}
	return ob.LastUpdateID()
}

func (d *Dispatcher) publish(ctx context.Context, pubsubID string, reply any) {
	raw, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode reply")
		return
	}
	if err := d.q.Publish(ctx, pubsubID, string(raw)); err != nil {
		log.Error().Err(err).Str("pubsubID", pubsubID).Msg("failed to publish reply")
	}
}
