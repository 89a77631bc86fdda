package backtest

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bouncebot/src/executor"
	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyOverview_FIFO(t *testing.T) {
	fills := FillsFromResults([]*executor.OrderResult{
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 1, 10, 100),
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 2, 10, 110),
		fill("SOL/USDT", strategy.SideSell, strategy.ReasonTakeProfit, 3, 15, 120),
		fill("ETH/USDT", strategy.SideSell, strategy.ReasonStopLoss, 4, 2, 1900), // 昨日持仓
	})

	overviews := DailyOverview(fills)
	require.Len(t, overviews, 2)

	eth := overviews[0]
	assert.Equal(t, "ETH/USDT", eth.Symbol)
	assert.True(t, eth.RealizedPnL.IsZero())
	assert.True(t, eth.UnmatchedSold.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 0, eth.WinningSells)

	sol := overviews[1]
	assert.Equal(t, "SOL/USDT", sol.Symbol)
	assert.Equal(t, 3, sol.TradesCount())
	assert.Equal(t, "105", sol.AvgBuyPrice.String())
	// 10*(120-100) + 5*(120-110)
	assert.True(t, sol.RealizedPnL.Equal(decimal.NewFromInt(250)), "got %s", sol.RealizedPnL)
	assert.True(t, sol.MatchedCost.Equal(decimal.NewFromInt(1550)))
	assert.Equal(t, "16.13", sol.RealizedPct.StringFixed(2))
	assert.True(t, sol.OpenQty.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "100", sol.WinRate.String())
}

func TestDailyOverview_SortsByTime(t *testing.T) {
	sell := Fill{Symbol: "SOL/USDT", Side: strategy.SideSell, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(90), Timestamp: start.Add(2 * time.Hour)}
	buy := Fill{Symbol: "SOL/USDT", Side: strategy.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), Timestamp: start.Add(time.Hour)}

	overviews := DailyOverview([]Fill{sell, buy})
	require.Len(t, overviews, 1)
	assert.True(t, overviews[0].RealizedPnL.Equal(decimal.NewFromInt(-10)))
	assert.True(t, overviews[0].UnmatchedSold.IsZero())
	assert.Equal(t, "0", overviews[0].WinRate.String())
}

func TestDayRange(t *testing.T) {
	from, to, err := DayRange("2025-07-03", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 24*time.Hour, to.Sub(from))

	loc := time.FixedZone("UTC-4", -4*3600)
	from, _, err = DayRange("2025-07-03", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 3, 4, 0, 0, 0, time.UTC), from)

	_, _, err = DayRange("07/03/2025", nil)
	assert.Error(t, err)
}

func TestEncodeTrades(t *testing.T) {
	results := []*executor.OrderResult{
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 1, 10, 95.5),
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeTrades(&buf, results))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "timestamp", records[0][0])
	assert.Equal(t, []string{"2024-05-01T01:00:00Z", "SOL/USDT", "BUY", "ENTRY", "10", "95.5", "955", "0", "backtest_test", "BACKTEST"}, records[1])
}

func TestWriteEquityCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "equity.csv")
	require.NoError(t, WriteEquityCSV(path, equity(10000, 10040.5)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,equity,cash\n2024-05-01T00:00:00Z,10000.00,0.00\n2024-05-01T01:00:00Z,10040.50,0.00\n", string(data))

	assert.Error(t, WriteTradesCSV(filepath.Join(t.TempDir(), "missing", "trades.csv"), nil))
}
