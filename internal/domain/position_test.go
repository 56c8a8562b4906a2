package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_Variation(t *testing.T) {
	p := Position{EntryPrice: decimal.RequireFromString("100")}
	assert.True(t, p.Variation(decimal.RequireFromString("100.5")).Equal(decimal.RequireFromString("0.005")))
	assert.True(t, p.Variation(decimal.RequireFromString("97")).Equal(decimal.RequireFromString("-0.03")))

	zero := Position{}
	assert.True(t, zero.Variation(decimal.NewFromInt(5)).IsZero())
}

func TestPosition_Close(t *testing.T) {
	entry := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	open := Position{
		ID:         "a",
		Symbol:     "ABCUSDT",
		EntryPrice: decimal.NewFromInt(10),
		Quantity:   decimal.NewFromInt(3),
		EntryTime:  entry,
	}
	require.True(t, open.IsOpen())
	_, ok := open.RealizedPnL()
	assert.False(t, ok)

	closed := open.Close(decimal.NewFromInt(12), entry.Add(time.Hour), ExitReasonTakeProfit)
	assert.True(t, open.IsOpen(), "receiver must not change")
	assert.False(t, closed.IsOpen())
	assert.Equal(t, ExitReasonTakeProfit, closed.ExitReason)
	require.NotNil(t, closed.ExitTime)
	assert.Equal(t, entry.Add(time.Hour), *closed.ExitTime)

	pnl, ok := closed.RealizedPnL()
	require.True(t, ok)
	assert.True(t, pnl.Equal(decimal.NewFromInt(6)))
}

func TestPosition_JSONOpenOmitsExit(t *testing.T) {
	p := Position{ID: "a", Symbol: "XUSDT", EntryPrice: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "exit_price")
	assert.Contains(t, string(raw), `"closed":false`)
}

func TestOrderFill_AvgPrice(t *testing.T) {
	f := OrderFill{ExecutedQty: decimal.NewFromInt(4), QuoteQty: decimal.NewFromInt(10)}
	assert.True(t, f.AvgPrice().Equal(decimal.RequireFromString("2.5")))
	assert.True(t, OrderFill{}.AvgPrice().IsZero())
}
