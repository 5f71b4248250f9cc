package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is which direction of a market an order sits on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// OrderType distinguishes priced resting orders from sweeps that never
// rest. engine.CreateOrder builds every order as a LimitOrder; the wire
// format has no order type, so a MarketOrder reaches the book only from
// a direct caller of book.OrderBook.ProcessOrder.
type OrderType int

const (
	LimitOrder OrderType = iota
	MarketOrder
)

func (t OrderType) String() string {
	if t == MarketOrder {
		return "MARKET"
	}
	return "LIMIT"
}

// OrderStatus tracks an order across its lifetime. Cancelled is terminal;
// every other status can still be mutated by matching.
type OrderStatus int

const (
	Pending OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case PartiallyFilled:
		return "PartiallyFilled"
	case Filled:
		return "Filled"
	case Cancelled:
		return "Cancelled"
	default:
		return "Pending"
	}
}

// Order is a single resting or just-arrived instruction to trade. Price
// and Quantity are exact decimals; FilledQuantity never exceeds Quantity.
type Order struct {
	OrderID        string
	UserID         string
	Market         string
	Side           Side
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	OrderType      OrderType
	OrderStatus    OrderStatus
	Timestamp      time.Time
}

// Remaining returns the order's unfilled quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Fill is the record of one resting (maker) order absorbing quantity from
// one arriving (taker) order. TradeID is strictly increasing per OrderBook.
type Fill struct {
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	TradeID      uint64
	MakerOrderID string
	MakerUserID  string
	TakerOrderID string
	TakerUserID  string
	Timestamp    time.Time
}
