package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/wire"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	lists     map[string][]string
	published map[string][]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{lists: make(map[string][]string), published: make(map[string][]string)}
}

func (f *fakeBackend) LPush(_ context.Context, key, value string) error {
	f.lists[key] = append(f.lists[key], value)
	return nil
}

func (f *fakeBackend) RPop(_ context.Context, _ string) (string, error) { return "", nil }

func (f *fakeBackend) Publish(_ context.Context, channel, msg string) error {
	f.published[channel] = append(f.published[channel], msg)
	return nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestEmitFillsPublishesTradeAndEnqueuesInsertTrade(t *testing.T) {
	backend := newFakeBackend()
	e := New(backend)

	fill := common.Fill{
		Price:        d("100"),
		Quantity:     d("5"),
		TradeID:      1,
		MakerOrderID: "m",
		MakerUserID:  "maker",
		TakerOrderID: "t",
		TakerUserID:  "taker",
		Timestamp:    time.Unix(0, 0),
	}

	e.EmitFills(context.Background(), "SOL_USDT", common.Buy, []common.Fill{fill})

	require.Len(t, backend.lists["db"], 1)
	var envelope wire.InsertTradeEnvelope
	require.NoError(t, json.Unmarshal([]byte(backend.lists["db"][0]), &envelope))
	assert.Equal(t, uint64(1), envelope.InsertTrade.TradeID)
	assert.Equal(t, "taker", envelope.InsertTrade.UserID)
	assert.Equal(t, "maker", envelope.InsertTrade.OtherUserID)

	require.Len(t, backend.published["trade.SOL_USDT"], 1)
	var tick wire.TradeEvent
	require.NoError(t, json.Unmarshal([]byte(backend.published["trade.SOL_USDT"][0]), &tick))
	assert.Equal(t, "BUY", tick.Side)
}

func TestEmitDepthPublishesOneEventPerMarket(t *testing.T) {
	backend := newFakeBackend()
	e := New(backend)

	changes := []engine.DepthChange{
		{Side: common.Buy, Price: d("100"), Quantity: d("5")},
		{Side: common.Sell, Price: d("101"), Quantity: d("2")},
	}
	e.EmitDepth(context.Background(), "SOL_USDT", 7, changes)

	require.Len(t, backend.published["depth.SOL_USDT"], 1)
	var evt wire.DepthEvent
	require.NoError(t, json.Unmarshal([]byte(backend.published["depth.SOL_USDT"][0]), &evt))
	assert.Equal(t, uint64(7), evt.LastUpdateID)
	require.Len(t, evt.Bids, 1)
	require.Len(t, evt.Asks, 1)
}

func TestEmitDepthSkipsPublishWhenNoChanges(t *testing.T) {
	backend := newFakeBackend()
	e := New(backend)

	e.EmitDepth(context.Background(), "SOL_USDT", 1, nil)
	assert.Empty(t, backend.published["depth.SOL_USDT"])
}
