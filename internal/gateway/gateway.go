// Package gateway implements the HTTP front door: it validates client
// requests, subscribes to a fresh reply channel before enqueueing so no
// reply can be published before anyone is listening for it (spec.md
// §9), left-pushes the tagged-union request onto "orders", and relays
// the single reply back to the HTTP caller.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"fenrir/internal/queue"
	"fenrir/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const replyTimeout = 2 * time.Second

// Gateway wires HTTP routes to the shared queue.
type Gateway struct {
	q *queue.Client
}

// New constructs a Gateway over an already-dialed queue client.
func New(q *queue.Client) *Gateway {
	return &Gateway{q: q}
}

// Routes registers every handler on r, following the teacher's pattern
// of building handlers around injected dependencies rather than global
// state.
func (g *Gateway) Routes(r *gin.Engine) {
	r.POST("/orders", g.createOrder)
	r.DELETE("/orders/:id", g.cancelOrder)
	r.GET("/orders", g.getOpenOrders)
	r.GET("/depth/:market", g.getDepth)
}

type createOrderBody struct {
	Market   string          `json:"market" binding:"required"`
	Price    decimal.Decimal `json:"price" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Side     string          `json:"side" binding:"required"`
	UserID   string          `json:"user_id" binding:"required"`
}

func (g *Gateway) createOrder(c *gin.Context) {
	var body createOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := wire.OrderRequest{CreateOrder: &wire.CreateOrderPayload{
		Market:   body.Market,
		Price:    body.Price,
		Quantity: body.Quantity,
		Side:     body.Side,
		UserID:   body.UserID,
	}}
	g.roundTrip(c, &req, &req.CreateOrder.PubsubID)
}

type cancelOrderBody struct {
	Market string          `json:"market" binding:"required"`
	Price  decimal.Decimal `json:"price" binding:"required"`
	Side   string          `json:"side" binding:"required"`
	UserID string          `json:"user_id" binding:"required"`
}

func (g *Gateway) cancelOrder(c *gin.Context) {
	var body cancelOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := wire.OrderRequest{CancelOrder: &wire.CancelOrderPayload{
		OrderID: c.Param("id"),
		UserID:  body.UserID,
		Market:  body.Market,
		Price:   body.Price,
		Side:    body.Side,
	}}
	g.roundTrip(c, &req, &req.CancelOrder.PubsubID)
}

func (g *Gateway) getOpenOrders(c *gin.Context) {
	req := wire.OrderRequest{GetOpenOrders: &wire.GetOpenOrdersPayload{
		UserID: c.Query("user_id"),
		Market: c.Query("market"),
	}}
	g.roundTrip(c, &req, &req.GetOpenOrders.PubsubID)
}

func (g *Gateway) getDepth(c *gin.Context) {
	req := wire.OrderRequest{GetDepth: &wire.GetDepthPayload{
		Market: c.Param("market"),
	}}
	g.roundTrip(c, &req, &req.GetDepth.PubsubID)
}

// roundTrip mints a reply channel, subscribes to it, enqueues req, and
// relays whatever the dispatcher publishes back to the HTTP caller.
// pubsubID points at the field inside req that the wire format carries
// the reply-channel id in, so it is set before req is marshalled.
func (g *Gateway) roundTrip(c *gin.Context, req *wire.OrderRequest, pubsubID *string) {
	ctx := c.Request.Context()

	replyChannel := uuid.New().String()
	*pubsubID = replyChannel

	sub := g.q.Subscribe(ctx, replyChannel)
	defer sub.Close()

	raw, err := json.Marshal(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode request"})
		return
	}

	if err := g.q.LPush(ctx, "orders", string(raw)); err != nil {
		log.Error().Err(err).Msg("failed to enqueue request")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue request"})
		return
	}

	payload, err := queue.WaitForReply(ctx, sub, replyTimeout)
	if err != nil {
		log.Error().Err(err).Str("replyChannel", replyChannel).Msg("timed out waiting for reply")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timed out waiting for engine reply"})
		return
	}

	c.Data(http.StatusOK, "application/json", []byte(payload))
}
