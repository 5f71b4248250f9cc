// Package engine binds a set of order books to the balance ledger and
// implements the create/cancel/query commands that make up the
// matching engine's public contract.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"fenrir/internal/balance"
	"fenrir/internal/book"
	"fenrir/internal/common"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownMarket = errors.New("unknown market")
	ErrNotFound      = book.ErrOrderNotFound
)

// CreateOrderRequest is the façade-level input to CreateOrder, already
// decoded from the wire tagged union.
type CreateOrderRequest struct {
	Market   string
	Side     common.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	UserID   string
}

// CreateOrderResult is returned on success, mirroring §4.4's contract.
type CreateOrderResult struct {
	OrderID          string
	ExecutedQuantity decimal.Decimal
	Fills            []common.Fill
	Order            common.Order
}

// CancelOrderRequest is the façade-level input to CancelOrder.
type CancelOrderRequest struct {
	Market  string
	OrderID string
	Price   decimal.Decimal
	Side    common.Side
}

// CancelResult is returned on a successful cancel.
type CancelResult struct {
	OrderID string
	Order   common.Order
}

// DepthChange describes the post-command aggregate quantity at one
// price level on one side, for the event emitters (C6) to publish.
type DepthChange struct {
	Side     common.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Engine owns every market's order book and the shared balance ledger.
// It is driven exclusively by the single-threaded command dispatcher
// (C5); nothing in this package is safe for concurrent mutation from
// more than one goroutine at a time, matching the single-logical-worker
// model in the spec.
type Engine struct {
	books    map[string]*book.OrderBook
	ledger   *balance.Ledger
	now      func() time.Time
	newOrder func() string
}

// New constructs an Engine with one order book per pair and a fresh,
// empty ledger.
func New(pairs ...common.AssetPair) *Engine {
	e := &Engine{
		books:    make(map[string]*book.OrderBook),
		ledger:   balance.New(),
		now:      time.Now,
		newOrder: func() string { return uuid.New().String() },
	}
	for _, pair := range pairs {
		e.books[pair.Ticker()] = book.New(pair)
	}
	return e
}

// Ledger exposes the balance ledger for funding accounts at startup.
func (e *Engine) Ledger() *balance.Ledger {
	return e.ledger
}

// Book returns the order book for ticker, or nil if unknown. ticker is
// normalized the same way every other lookup in this package is, so a
// differently-cased but valid ticker still resolves.
func (e *Engine) Book(ticker string) *book.OrderBook {
	pair, err := common.ParseTicker(ticker)
	if err != nil {
		return nil
	}
	return e.books[pair.Ticker()]
}

// CreateOrder resolves the market, pre-flight locks the required funds,
// submits the order to its book, settles every resulting fill against
// the ledger, and returns the taker's outcome. See §4.4 and §4.5.
func (e *Engine) CreateOrder(req CreateOrderRequest) (CreateOrderResult, []DepthChange, error) {
	pair, err := common.ParseTicker(req.Market)
	if err != nil {
		return CreateOrderResult{}, nil, err
	}
	ob, ok := e.books[pair.Ticker()]
	if !ok {
		return CreateOrderResult{}, nil, fmt.Errorf("%w: %q", ErrUnknownMarket, req.Market)
	}

	if err := e.preflightLock(req, pair); err != nil {
		return CreateOrderResult{}, nil, err
	}

	order := common.Order{
		OrderID:     e.newOrder(),
		UserID:      req.UserID,
		Market:      pair.Ticker(),
		Side:        req.Side,
		Price:       req.Price,
		Quantity:    req.Quantity,
		OrderType:   common.LimitOrder,
		OrderStatus: common.Pending,
		Timestamp:   e.now(),
	}

	result := ob.ProcessOrder(order)

	if err := e.settle(pair, order, result.Fills); err != nil {
		// A post-commit settlement failure is a broken invariant, not a
		// recoverable request error: the pre-flight lock guarantees every
		// leg below has the funds it needs.
		log.Error().Err(err).Str("orderID", order.OrderID).Msg("fatal: settlement invariant violated")
		panic(fmt.Errorf("settlement invariant violated: %w", err))
	}

	order.FilledQuantity = result.ExecutedQuantity
	order.OrderStatus = statusFor(order.Quantity, result.ExecutedQuantity)

	depth := depthChanges(ob, order, result.Fills)

	return CreateOrderResult{
		OrderID:          order.OrderID,
		ExecutedQuantity: result.ExecutedQuantity,
		Fills:            result.Fills,
		Order:            order,
	}, depth, nil
}

func statusFor(quantity, executed decimal.Decimal) common.OrderStatus {
	switch {
	case executed.GreaterThanOrEqual(quantity):
		return common.Filled
	case executed.GreaterThan(decimal.Zero):
		return common.PartiallyFilled
	default:
		return common.Pending
	}
}

// preflightLock locks the funds a taker order must commit before it can
// be submitted to the book: BUY locks price*quantity of quote, SELL
// locks quantity of base.
func (e *Engine) preflightLock(req CreateOrderRequest, pair common.AssetPair) error {
	if req.Side == common.Buy {
		return e.ledger.Lock(req.UserID, pair.Quote, req.Price.Mul(req.Quantity))
	}
	return e.ledger.Lock(req.UserID, pair.Base, req.Quantity)
}

// settle applies the settlement table in §4.5 for every fill produced
// by a taker order. A BUY taker locked its own limit price per unit, so
// a fill at a better maker price also releases the difference from
// locked back to available.
func (e *Engine) settle(pair common.AssetPair, taker common.Order, fills []common.Fill) error {
	for _, fill := range fills {
		notional := fill.Price.Mul(fill.Quantity)

		var legs []balance.Leg
		if taker.Side == common.Buy {
			lockedForFill := taker.Price.Mul(fill.Quantity)
			legs = []balance.Leg{
				{UserID: taker.UserID, Asset: pair.Base, DeltaAvailable: fill.Quantity},
				{UserID: taker.UserID, Asset: pair.Quote, DeltaAvailable: lockedForFill.Sub(notional), DeltaLocked: lockedForFill.Neg()},
				{UserID: fill.MakerUserID, Asset: pair.Base, DeltaLocked: fill.Quantity.Neg()},
				{UserID: fill.MakerUserID, Asset: pair.Quote, DeltaAvailable: notional},
			}
		} else {
			legs = []balance.Leg{
				{UserID: taker.UserID, Asset: pair.Base, DeltaLocked: fill.Quantity.Neg()},
				{UserID: taker.UserID, Asset: pair.Quote, DeltaAvailable: notional},
				{UserID: fill.MakerUserID, Asset: pair.Base, DeltaAvailable: fill.Quantity},
				{UserID: fill.MakerUserID, Asset: pair.Quote, DeltaLocked: notional.Neg()},
			}
		}

		if err := e.ledger.SettleFill(legs...); err != nil {
			return err
		}
	}
	return nil
}

// depthChanges computes the depth updates a create-order command
// produces: the taker's own residual resting quantity (if any), plus
// one entry per price level touched by a fill.
func depthChanges(ob *book.OrderBook, taker common.Order, fills []common.Fill) []DepthChange {
	touched := make(map[string]DepthChange)

	record := func(side common.Side, price decimal.Decimal) {
		key := fmt.Sprintf("%s:%s", side, price.String())
		touched[key] = DepthChange{Side: side, Price: price, Quantity: ob.DepthAt(price, side)}
	}

	if taker.Remaining().GreaterThan(decimal.Zero) {
		record(taker.Side, taker.Price)
	}

	makerSide := common.Sell
	if taker.Side == common.Sell {
		makerSide = common.Buy
	}
	for _, fill := range fills {
		record(makerSide, fill.Price)
	}

	out := make([]DepthChange, 0, len(touched))
	for _, change := range touched {
		out = append(out, change)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

// CancelOrder removes a resting order and releases whatever it still
// had locked back into the owner's available balance.
func (e *Engine) CancelOrder(req CancelOrderRequest) (CancelResult, []DepthChange, error) {
	pair, err := common.ParseTicker(req.Market)
	if err != nil {
		return CancelResult{}, nil, err
	}
	ob, ok := e.books[pair.Ticker()]
	if !ok {
		return CancelResult{}, nil, fmt.Errorf("%w: %q", ErrUnknownMarket, req.Market)
	}

	cancelled, err := ob.CancelOrder(req.OrderID, req.Price, req.Side)
	if err != nil {
		return CancelResult{}, nil, err
	}

	unfilled := cancelled.Remaining()
	if err := e.releaseLock(cancelled.UserID, pair, req.Side, req.Price, unfilled); err != nil {
		log.Error().Err(err).Str("orderID", req.OrderID).Msg("fatal: cancel-release invariant violated")
		panic(fmt.Errorf("cancel-release invariant violated: %w", err))
	}

	depth := []DepthChange{{Side: req.Side, Price: req.Price, Quantity: ob.DepthAt(req.Price, req.Side)}}
	return CancelResult{OrderID: cancelled.OrderID, Order: cancelled}, depth, nil
}

func (e *Engine) releaseLock(userID string, pair common.AssetPair, side common.Side, price, unfilled decimal.Decimal) error {
	if side == common.Buy {
		return e.ledger.Unlock(userID, pair.Quote, unfilled.Mul(price))
	}
	return e.ledger.Unlock(userID, pair.Base, unfilled)
}

// GetOpenOrders is a read-only lookup; it never mutates engine state.
func (e *Engine) GetOpenOrders(market, userID string) ([]common.Order, error) {
	pair, err := common.ParseTicker(market)
	if err != nil {
		return nil, err
	}
	ob, ok := e.books[pair.Ticker()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarket, market)
	}
	return ob.GetOpenOrders(userID), nil
}

// GetDepth is a read-only snapshot of aggregated levels on both sides.
func (e *Engine) GetDepth(market string) ([]book.DepthLevel, []book.DepthLevel, error) {
	pair, err := common.ParseTicker(market)
	if err != nil {
		return nil, nil, err
	}
	ob, ok := e.books[pair.Ticker()]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMarket, market)
	}
	bids, asks := ob.GetDepth()
	return bids, asks, nil
}
