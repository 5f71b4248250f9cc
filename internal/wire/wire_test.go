package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRequestUnmarshalsCreateOrder(t *testing.T) {
	raw := `{"CreateOrder":{"market":"BTC_USDT","price":"100.5","quantity":"2","side":"BUY","user_id":"u1","pubsub_id":"r1"}}`

	var req OrderRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.NotNil(t, req.CreateOrder)
	assert.Equal(t, "BTC_USDT", req.CreateOrder.Market)
	assert.Equal(t, "BUY", req.CreateOrder.Side)

	id, err := req.PubsubID()
	require.NoError(t, err)
	assert.Equal(t, "r1", id)
}

func TestOrderRequestUnmarshalsCancelOrder(t *testing.T) {
	raw := `{"CancelOrder":{"order_id":"o1","user_id":"u1","market":"BTC_USDT","price":"100.5","side":"BUY","pubsub_id":"r1"}}`

	var req OrderRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.NotNil(t, req.CancelOrder)
	assert.Equal(t, "o1", req.CancelOrder.OrderID)
}

func TestOrderRequestRejectsEmptyObject(t *testing.T) {
	var req OrderRequest
	err := json.Unmarshal([]byte(`{}`), &req)
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestOrderRequestRejectsMultipleTags(t *testing.T) {
	raw := `{"CreateOrder":{"market":"BTC_USDT","price":"1","quantity":"1","side":"BUY","user_id":"u1","pubsub_id":"r1"},
	         "GetDepth":{"market":"BTC_USDT","pubsub_id":"r2"}}`

	var req OrderRequest
	err := json.Unmarshal([]byte(raw), &req)
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestOrderRequestRejectsGarbage(t *testing.T) {
	var req OrderRequest
	// encoding/json rejects invalid syntax before it calls a custom
	// UnmarshalJSON, so the method is called directly here.
	err := req.UnmarshalJSON([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestParseSideRoundTrips(t *testing.T) {
	side, err := ParseSide("SELL")
	require.NoError(t, err)
	assert.Equal(t, "SELL", SideToken(side))

	_, err = ParseSide("sideways")
	assert.ErrorIs(t, err, ErrMalformedRequest)
}
