package balance

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

func TestLockAndUnlockRoundTrip(t *testing.T) {
	l := New()
	l.Fund("alice", common.USDT, d("1000"))

	require.NoError(t, l.Lock("alice", common.USDT, d("500")))
	snap, err := l.Snapshot("alice")
	require.NoError(t, err)
	assert.True(t, snap[common.USDT].Available.Equal(d("500")))
	assert.True(t, snap[common.USDT].Locked.Equal(d("500")))

	require.NoError(t, l.Unlock("alice", common.USDT, d("500")))
	snap, _ = l.Snapshot("alice")
	assert.True(t, snap[common.USDT].Available.Equal(d("1000")))
	assert.True(t, snap[common.USDT].Locked.IsZero())
}

func TestLockFailsInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	l := New()
	l.Fund("alice", common.USDT, d("100"))

	err := l.Lock("alice", common.USDT, d("1000"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	snap, _ := l.Snapshot("alice")
	assert.True(t, snap[common.USDT].Available.Equal(d("100")))
	assert.True(t, snap[common.USDT].Locked.IsZero())
}

func TestUnknownUserAndAsset(t *testing.T) {
	l := New()

	_, err := l.Snapshot("ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)

	l.Fund("alice", common.USDT, d("100"))
	err = l.Lock("alice", common.BTC, d("1"))
	assert.ErrorIs(t, err, ErrUnknownAssetForUser)
}

func TestSettleFillConservesValueAcrossBothUsers(t *testing.T) {
	l := New()
	l.Fund("buyer", common.USDT, d("1000"))
	l.Fund("buyer", common.SOL, d("0"))
	l.Fund("seller", common.SOL, d("10"))
	l.Fund("seller", common.USDT, d("0"))

	require.NoError(t, l.Lock("buyer", common.USDT, d("500")))
	require.NoError(t, l.Lock("seller", common.SOL, d("5")))

	err := l.SettleFill(
		Leg{UserID: "buyer", Asset: common.USDT, DeltaLocked: d("-500")},
		Leg{UserID: "buyer", Asset: common.SOL, DeltaAvailable: d("5")},
		Leg{UserID: "seller", Asset: common.SOL, DeltaLocked: d("-5")},
		Leg{UserID: "seller", Asset: common.USDT, DeltaAvailable: d("500")},
	)
	require.NoError(t, err)

	buyer, _ := l.Snapshot("buyer")
	seller, _ := l.Snapshot("seller")

	assert.True(t, buyer[common.USDT].Available.Equal(d("500")))
	assert.True(t, buyer[common.USDT].Locked.IsZero())
	assert.True(t, buyer[common.SOL].Available.Equal(d("5")))

	assert.True(t, seller[common.SOL].Available.Equal(d("5")))
	assert.True(t, seller[common.SOL].Locked.IsZero())
	assert.True(t, seller[common.USDT].Available.Equal(d("500")))

	totalUSDT := buyer[common.USDT].Available.Add(buyer[common.USDT].Locked).
		Add(seller[common.USDT].Available).Add(seller[common.USDT].Locked)
	assert.True(t, totalUSDT.Equal(d("1000")))

	totalSOL := buyer[common.SOL].Available.Add(buyer[common.SOL].Locked).
		Add(seller[common.SOL].Available).Add(seller[common.SOL].Locked)
	assert.True(t, totalSOL.Equal(d("10")))
}
