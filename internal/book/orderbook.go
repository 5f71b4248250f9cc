// Package book implements the per-market price-time priority order book
// and its matching kernel.
package book

import (
	"errors"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

var ErrOrderNotFound = errors.New("order not found")

// PriceLevel holds every resting order at a single price, in arrival
// (FIFO) order.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

type priceLevels = btree.BTreeG[*PriceLevel]

// ProcessOrderResult is what process_order hands back to the caller: how
// much of the taker's quantity was immediately matched, and against whom.
type ProcessOrderResult struct {
	ExecutedQuantity decimal.Decimal
	Fills            []common.Fill
}

// OrderBook is the bid/ask ladder for a single AssetPair.
type OrderBook struct {
	assetPair common.AssetPair

	// Sorted highest-first so MinMut walks price improving for a SELL taker.
	bids *priceLevels
	// Sorted lowest-first so MinMut walks price improving for a BUY taker.
	asks *priceLevels

	tradeIDCounter uint64
	lastUpdateID   uint64
}

// New constructs an empty OrderBook for the given market.
func New(assetPair common.AssetPair) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{
		assetPair: assetPair,
		bids:      bids,
		asks:      asks,
	}
}

// Ticker renders "{base}_{quote}" for this book's market.
func (b *OrderBook) Ticker() string {
	return b.assetPair.Ticker()
}

// LastUpdateID returns the book's current update sequence number.
func (b *OrderBook) LastUpdateID() uint64 {
	return b.lastUpdateID
}

// ProcessOrder matches an incoming taker order against the opposite side
// and, if quantity remains, rests it on its own side at its limit price.
// Always returns a result; process_order is total.
func (b *OrderBook) ProcessOrder(order common.Order) ProcessOrderResult {
	b.lastUpdateID++

	var result ProcessOrderResult
	switch order.Side {
	case common.Buy:
		result = b.matchAsks(&order)
	case common.Sell:
		result = b.matchBids(&order)
	}

	order.FilledQuantity = result.ExecutedQuantity
	if order.FilledQuantity.LessThan(order.Quantity) && order.OrderType == common.LimitOrder {
		order.OrderStatus = restingStatus(order.Quantity, order.FilledQuantity)
		b.rest(order)
	}

	return result
}

// restingStatus is the status a taker's residual carries once it joins
// the book: Pending if untouched, PartiallyFilled if a partial cross
// preceded the rest.
func restingStatus(quantity, filled decimal.Decimal) common.OrderStatus {
	if filled.GreaterThan(decimal.Zero) {
		return common.PartiallyFilled
	}
	return common.Pending
}

// rest appends the residual taker at the tail of its own side's price
// level, creating the level if absent.
func (b *OrderBook) rest(order common.Order) {
	levels := b.sideLevels(order.Side)

	existing, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if ok {
		existing.Orders = append(existing.Orders, &order)
		return
	}
	levels.Set(&PriceLevel{Price: order.Price, Orders: []*common.Order{&order}})
}

func (b *OrderBook) sideLevels(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// matchAsks walks the ask ladder ascending while a BUY taker's price
// crosses (taker.price >= level.price).
func (b *OrderBook) matchAsks(taker *common.Order) ProcessOrderResult {
	return b.sweep(taker, b.asks, func(takerPrice, levelPrice decimal.Decimal) bool {
		return takerPrice.GreaterThanOrEqual(levelPrice)
	})
}

// matchBids walks the bid ladder descending while a SELL taker's price
// crosses (taker.price <= level.price).
func (b *OrderBook) matchBids(taker *common.Order) ProcessOrderResult {
	return b.sweep(taker, b.bids, func(takerPrice, levelPrice decimal.Decimal) bool {
		return takerPrice.LessThanOrEqual(levelPrice)
	})
}

// sweep consumes resting makers in price-time priority from levels while
// crosses(taker.Price, level.Price) holds and the taker still has
// residual quantity. Fully consumed makers and emptied levels are
// removed as the sweep proceeds.
func (b *OrderBook) sweep(taker *common.Order, levels *priceLevels, crosses func(takerPrice, levelPrice decimal.Decimal) bool) ProcessOrderResult {
	var fills []common.Fill
	executed := decimal.Zero

	for {
		remaining := taker.Quantity.Sub(executed)
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}

		level, ok := levels.MinMut()
		if !ok || !crosses(taker.Price, level.Price) {
			break
		}

		consumed := 0
		for _, maker := range level.Orders {
			remaining = taker.Quantity.Sub(executed)
			if remaining.LessThanOrEqual(decimal.Zero) {
				break
			}

			makerRemaining := maker.Remaining()
			if makerRemaining.LessThanOrEqual(decimal.Zero) {
				consumed++
				continue
			}

			fillQty := decimal.Min(remaining, makerRemaining)

			b.tradeIDCounter++
			maker.FilledQuantity = maker.FilledQuantity.Add(fillQty)
			executed = executed.Add(fillQty)

			fills = append(fills, common.Fill{
				Price:        maker.Price,
				Quantity:     fillQty,
				TradeID:      b.tradeIDCounter,
				MakerOrderID: maker.OrderID,
				MakerUserID:  maker.UserID,
				TakerOrderID: taker.OrderID,
				TakerUserID:  taker.UserID,
				Timestamp:    taker.Timestamp,
			})

			if maker.FilledQuantity.GreaterThanOrEqual(maker.Quantity) {
				maker.OrderStatus = common.Filled
				consumed++
			} else {
				maker.OrderStatus = common.PartiallyFilled
			}
		}

		if consumed > 0 {
			level.Orders = level.Orders[consumed:]
		}
		if len(level.Orders) == 0 {
			levels.Delete(level)
		}
	}

	return ProcessOrderResult{ExecutedQuantity: executed, Fills: fills}
}

// CancelOrder removes and returns the first resting order at price/side
// whose OrderID matches. Returns ErrOrderNotFound if the level is absent
// or no such order is resting there.
func (b *OrderBook) CancelOrder(orderID string, price decimal.Decimal, side common.Side) (common.Order, error) {
	levels := b.sideLevels(side)

	level, ok := levels.GetMut(&PriceLevel{Price: price})
	if !ok {
		return common.Order{}, ErrOrderNotFound
	}

	for i, order := range level.Orders {
		if order.OrderID != orderID {
			continue
		}

		removed := *order
		level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
		if len(level.Orders) == 0 {
			levels.Delete(level)
		}
		b.lastUpdateID++
		removed.OrderStatus = common.Cancelled
		return removed, nil
	}

	return common.Order{}, ErrOrderNotFound
}

// GetOpenOrders returns every resting order (either side) owned by user.
func (b *OrderBook) GetOpenOrders(userID string) []common.Order {
	var open []common.Order
	collect := func(level *PriceLevel) bool {
		for _, order := range level.Orders {
			if order.UserID == userID {
				open = append(open, *order)
			}
		}
		return true
	}
	b.bids.Scan(collect)
	b.asks.Scan(collect)
	return open
}

// DepthLevel is one (price, aggregate remaining quantity) pair.
type DepthLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// GetDepth snapshots the aggregated quantity resting at every price level
// on both sides, in the book's natural (best-first) order.
func (b *OrderBook) GetDepth() (bids []DepthLevel, asks []DepthLevel) {
	collect := func(levels *priceLevels) []DepthLevel {
		var out []DepthLevel
		levels.Scan(func(level *PriceLevel) bool {
			total := decimal.Zero
			for _, order := range level.Orders {
				total = total.Add(order.Remaining())
			}
			out = append(out, DepthLevel{Price: level.Price, Quantity: total})
			return true
		})
		return out
	}
	return collect(b.bids), collect(b.asks)
}

// DepthAt returns the aggregate remaining quantity resting at price on
// side, or zero if the level is absent. Used by the event emitters to
// report the net change after a cancel or a create-order settle.
func (b *OrderBook) DepthAt(price decimal.Decimal, side common.Side) decimal.Decimal {
	levels := b.sideLevels(side)
	level, ok := levels.GetMut(&PriceLevel{Price: price})
	if !ok {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, order := range level.Orders {
		total = total.Add(order.Remaining())
	}
	return total
}
