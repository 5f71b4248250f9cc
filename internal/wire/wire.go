// Package wire is the canonical JSON schema shared by the gateway, the
// dispatcher, the persistence worker, and the websocket fan-out worker:
// the externally-tagged request union, its replies, the persistence
// envelope, and the market-data payloads.
package wire

import (
	"encoding/json"
	"fmt"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
)

// CreateOrderPayload is the body of a {"CreateOrder": {...}} request.
type CreateOrderPayload struct {
	Market   string          `json:"market"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     string          `json:"side"`
	UserID   string          `json:"user_id"`
	PubsubID string          `json:"pubsub_id"`
}

// CancelOrderPayload is the body of a {"CancelOrder": {...}} request.
type CancelOrderPayload struct {
	OrderID  string          `json:"order_id"`
	UserID   string          `json:"user_id"`
	Market   string          `json:"market"`
	Price    decimal.Decimal `json:"price"`
	Side     string          `json:"side"`
	PubsubID string          `json:"pubsub_id"`
}

// GetOpenOrdersPayload is the body of a {"GetOpenOrders": {...}} request.
type GetOpenOrdersPayload struct {
	UserID   string `json:"user_id"`
	Market   string `json:"market"`
	PubsubID string `json:"pubsub_id"`
}

// GetDepthPayload is the body of a {"GetDepth": {...}} request.
type GetDepthPayload struct {
	Market   string `json:"market"`
	PubsubID string `json:"pubsub_id"`
}

// OrderRequest is the externally-tagged request union: exactly one of
// the fields below is set, matching the wire shape
// {"CreateOrder": {...}} / {"CancelOrder": {...}} / ... on the inbound
// "orders" queue.
type OrderRequest struct {
	CreateOrder   *CreateOrderPayload   `json:"CreateOrder,omitempty"`
	CancelOrder   *CancelOrderPayload   `json:"CancelOrder,omitempty"`
	GetOpenOrders *GetOpenOrdersPayload `json:"GetOpenOrders,omitempty"`
	GetDepth      *GetDepthPayload      `json:"GetDepth,omitempty"`
}

// ErrMalformedRequest signals a request envelope that does not decode
// into exactly one known tag.
var ErrMalformedRequest = fmt.Errorf("malformed request")

// PubsubID returns the reply channel named by whichever variant is set.
func (r OrderRequest) PubsubID() (string, error) {
	switch {
	case r.CreateOrder != nil:
		return r.CreateOrder.PubsubID, nil
	case r.CancelOrder != nil:
		return r.CancelOrder.PubsubID, nil
	case r.GetOpenOrders != nil:
		return r.GetOpenOrders.PubsubID, nil
	case r.GetDepth != nil:
		return r.GetDepth.PubsubID, nil
	default:
		return "", ErrMalformedRequest
	}
}

// UnmarshalJSON enforces that exactly one tag is present, rejecting the
// empty object and multi-tag objects that encoding/json's plain struct
// tags would otherwise accept silently.
func (r *OrderRequest) UnmarshalJSON(data []byte) error {
	type shape OrderRequest
	var decoded shape
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	set := 0
	for _, present := range []bool{decoded.CreateOrder != nil, decoded.CancelOrder != nil, decoded.GetOpenOrders != nil, decoded.GetDepth != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one tag, got %d", ErrMalformedRequest, set)
	}

	*r = OrderRequest(decoded)
	return nil
}

// ParseSide resolves the wire's upper-case BUY/SELL token.
func ParseSide(token string) (common.Side, error) {
	switch token {
	case "BUY":
		return common.Buy, nil
	case "SELL":
		return common.Sell, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrMalformedRequest, token)
	}
}

// SideToken renders a Side back onto the wire.
func SideToken(side common.Side) string {
	if side == common.Buy {
		return "BUY"
	}
	return "SELL"
}

// CreateOrderReply is the status reply published for CreateOrder and
// CancelOrder requests, on success and on failure.
type CreateOrderReply struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
}

// StatusCreated/StatusCreateFailed/StatusCancelled/StatusCancelFailed
// are the literal status strings the wire format requires.
const (
	StatusCreated      = "Created Order"
	StatusCreateFailed = "Failed to Create Order"
	StatusCancelled    = "Cancelled Order"
	StatusCancelFailed = "Failed to Cancel Order"
)

// OrderRecord is the wire representation of a common.Order in a
// GetOpenOrders reply.
type OrderRecord struct {
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	Market         string          `json:"market"`
	Side           string          `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	OrderType      string          `json:"order_type"`
	OrderStatus    string          `json:"order_status"`
	Timestamp      int64           `json:"timestamp"`
}

// ToOrderRecord renders a common.Order onto the wire.
func ToOrderRecord(o common.Order) OrderRecord {
	return OrderRecord{
		OrderID:        o.OrderID,
		UserID:         o.UserID,
		Market:         o.Market,
		Side:           SideToken(o.Side),
		Price:          o.Price,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		OrderType:      o.OrderType.String(),
		OrderStatus:    o.OrderStatus.String(),
		Timestamp:      o.Timestamp.UnixMilli(),
	}
}

// DepthLevelPair is one [price, quantity] entry in a GetDepth reply.
type DepthLevelPair [2]decimal.Decimal

// DepthReply is the GetDepth reply payload.
type DepthReply struct {
	Bids []DepthLevelPair `json:"bids"`
	Asks []DepthLevelPair `json:"asks"`
}

// InsertTradeEnvelope is the {"InsertTrade": {...}} envelope left-pushed
// onto the "db" queue once per fill.
type InsertTradeEnvelope struct {
	InsertTrade InsertTradePayload `json:"InsertTrade"`
}

// InsertTradePayload is the persisted row shape for one fill.
type InsertTradePayload struct {
	TradeID     uint64          `json:"trade_id"`
	Market      string          `json:"market"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	UserID      string          `json:"user_id"`
	OtherUserID string          `json:"other_user_id"`
	OrderID     string          `json:"order_id"`
	Timestamp   int64           `json:"timestamp"`
}

// TradeEvent is the payload published on "trade.{TICKER}".
type TradeEvent struct {
	Market    string          `json:"market"`
	TradeID   uint64          `json:"trade_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      string          `json:"side"`
	Timestamp int64           `json:"timestamp"`
}

// DepthEvent is the payload published on "depth.{TICKER}".
type DepthEvent struct {
	Market       string           `json:"market"`
	Bids         []DepthLevelPair `json:"bids"`
	Asks         []DepthLevelPair `json:"asks"`
	LastUpdateID uint64           `json:"last_update_id"`
}
