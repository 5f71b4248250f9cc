package engine

import (
	"testing"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(common.AssetPair{Base: common.SOL, Quote: common.USDT})
	return e
}

func fundUser(e *Engine, userID string) {
	e.Ledger().Fund(userID, common.USDT, d("1000000"))
	e.Ledger().Fund(userID, common.SOL, d("10000"))
}

func TestScenario1_RestingAndFullCross(t *testing.T) {
	e := newTestEngine(t)
	fundUser(e, "A")
	fundUser(e, "B")

	_, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("100"), Quantity: d("5"), UserID: "A"})
	require.NoError(t, err)

	snapA, _ := e.Ledger().Snapshot("A")
	assert.True(t, snapA[common.USDT].Locked.Equal(d("500")))
	assert.True(t, snapA[common.USDT].Available.Equal(d("999500")))

	result, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("100"), Quantity: d("5"), UserID: "B"})
	require.NoError(t, err)
	require.Len(t, result.Fills, 1)
	assert.True(t, result.Fills[0].Price.Equal(d("100")))
	assert.True(t, result.Fills[0].Quantity.Equal(d("5")))

	snapA, _ = e.Ledger().Snapshot("A")
	snapB, _ := e.Ledger().Snapshot("B")
	assert.True(t, snapA[common.SOL].Available.Equal(d("10005")))
	assert.True(t, snapA[common.USDT].Locked.IsZero())
	assert.True(t, snapA[common.USDT].Available.Equal(d("999500")))

	assert.True(t, snapB[common.SOL].Available.Equal(d("9995")))
	assert.True(t, snapB[common.SOL].Locked.IsZero())
	assert.True(t, snapB[common.USDT].Available.Equal(d("1000500")))

	bids, asks, err := e.GetDepth("SOL_USDT")
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestScenario2_PartialFill(t *testing.T) {
	e := newTestEngine(t)
	fundUser(e, "A")
	fundUser(e, "B")

	_, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("100"), Quantity: d("5"), UserID: "A"})
	require.NoError(t, err)
	_, _, err = e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("100"), Quantity: d("5"), UserID: "B"})
	require.NoError(t, err)

	_, _, err = e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("100"), Quantity: d("10"), UserID: "A"})
	require.NoError(t, err)

	snapA, _ := e.Ledger().Snapshot("A")
	assert.True(t, snapA[common.USDT].Locked.Equal(d("1000")))

	result, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("100"), Quantity: d("3"), UserID: "B"})
	require.NoError(t, err)
	require.Len(t, result.Fills, 1)
	assert.True(t, result.Fills[0].Quantity.Equal(d("3")))

	bids, _, err := e.GetDepth("SOL_USDT")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Quantity.Equal(d("7")))

	snapA, _ = e.Ledger().Snapshot("A")
	assert.True(t, snapA[common.USDT].Locked.Equal(d("700")))
	assert.True(t, snapA[common.SOL].Available.Equal(d("10008")))

	snapB, _ := e.Ledger().Snapshot("B")
	assert.True(t, snapB[common.SOL].Locked.IsZero())
	assert.True(t, snapB[common.SOL].Available.Equal(d("9992")))
	assert.True(t, snapB[common.USDT].Available.Equal(d("1000800")))
}

func TestScenario3_InsufficientFunds(t *testing.T) {
	e := newTestEngine(t)
	e.Ledger().Fund("C", common.USDT, d("1000000"))
	e.Ledger().Fund("C", common.SOL, d("10000"))

	_, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("1000000"), Quantity: d("5"), UserID: "C"})
	require.Error(t, err)

	snap, _ := e.Ledger().Snapshot("C")
	assert.True(t, snap[common.USDT].Available.Equal(d("1000000")))
	assert.True(t, snap[common.USDT].Locked.IsZero())
}

func TestScenario4_CancelReleasesLocks(t *testing.T) {
	e := newTestEngine(t)
	fundUser(e, "A")

	result, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("100"), Quantity: d("5"), UserID: "A"})
	require.NoError(t, err)

	_, _, err = e.CancelOrder(CancelOrderRequest{Market: "SOL_USDT", OrderID: result.OrderID, Price: d("100"), Side: common.Buy})
	require.NoError(t, err)

	snap, _ := e.Ledger().Snapshot("A")
	assert.True(t, snap[common.USDT].Locked.IsZero())
	assert.True(t, snap[common.USDT].Available.Equal(d("1000000")))

	bids, _, _ := e.GetDepth("SOL_USDT")
	assert.Empty(t, bids)
}

func TestScenario5_PriceImprovement(t *testing.T) {
	e := newTestEngine(t)
	fundUser(e, "A")
	fundUser(e, "B")

	_, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("99"), Quantity: d("1"), UserID: "B"})
	require.NoError(t, err)

	result, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("105"), Quantity: d("1"), UserID: "A"})
	require.NoError(t, err)
	require.Len(t, result.Fills, 1)
	assert.True(t, result.Fills[0].Price.Equal(d("99")), "fill must execute at the maker's price")

	snapA, _ := e.Ledger().Snapshot("A")
	assert.True(t, snapA[common.USDT].Locked.IsZero())
	assert.True(t, snapA[common.USDT].Available.Equal(d("999901")), "only 99 of the 105 lock should be consumed")
}

func TestScenario6_MonotonicTradeIDs(t *testing.T) {
	e := newTestEngine(t)
	fundUser(e, "A")
	fundUser(e, "B")

	_, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("100"), Quantity: d("2"), UserID: "B"})
	require.NoError(t, err)
	_, _, err = e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("100"), Quantity: d("2"), UserID: "B"})
	require.NoError(t, err)

	result1, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("100"), Quantity: d("4"), UserID: "A"})
	require.NoError(t, err)
	require.Len(t, result1.Fills, 2)
	assert.Less(t, result1.Fills[0].TradeID, result1.Fills[1].TradeID)

	_, _, err = e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("100"), Quantity: d("2"), UserID: "B"})
	require.NoError(t, err)

	result2, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("100"), Quantity: d("2"), UserID: "A"})
	require.NoError(t, err)
	require.Len(t, result2.Fills, 1)
	assert.Greater(t, result2.Fills[0].TradeID, result1.Fills[1].TradeID)
}

func TestScenario2b_TakerRestsWithPartiallyFilledStatus(t *testing.T) {
	e := newTestEngine(t)
	fundUser(e, "A")
	fundUser(e, "B")

	_, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Sell, Price: d("100"), Quantity: d("2"), UserID: "B"})
	require.NoError(t, err)

	result, _, err := e.CreateOrder(CreateOrderRequest{Market: "SOL_USDT", Side: common.Buy, Price: d("100"), Quantity: d("5"), UserID: "A"})
	require.NoError(t, err)
	require.Len(t, result.Fills, 1)
	assert.True(t, result.Fills[0].Quantity.Equal(d("2")))

	open, err := e.GetOpenOrders("SOL_USDT", "A")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, result.OrderID, open[0].OrderID)
	assert.Equal(t, common.PartiallyFilled, open[0].OrderStatus)
	assert.True(t, open[0].FilledQuantity.Equal(d("2")))
}

func TestCreateOrderAcceptsLowercaseMarket(t *testing.T) {
	e := newTestEngine(t)
	fundUser(e, "A")

	result, _, err := e.CreateOrder(CreateOrderRequest{Market: "sol_usdt", Side: common.Buy, Price: d("100"), Quantity: d("1"), UserID: "A"})
	require.NoError(t, err)
	assert.Equal(t, "SOL_USDT", result.Order.Market)

	bids, _, err := e.GetDepth("sol_usdt")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Quantity.Equal(d("1")))

	assert.NotNil(t, e.Book("sol_usdt"))
}

func TestCreateOrderUnknownMarket(t *testing.T) {
	e := newTestEngine(t)
	e.Ledger().Fund("A", common.USDT, d("100"))

	_, _, err := e.CreateOrder(CreateOrderRequest{Market: "ETH_USDT", Side: common.Buy, Price: d("1"), Quantity: d("1"), UserID: "A"})
	assert.ErrorIs(t, err, ErrUnknownMarket)
}

func TestCancelOrderNotFound(t *testing.T) {
	e := newTestEngine(t)

	_, _, err := e.CancelOrder(CancelOrderRequest{Market: "SOL_USDT", OrderID: "missing", Price: d("100"), Side: common.Buy})
	assert.ErrorIs(t, err, ErrNotFound)
}
