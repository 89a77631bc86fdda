package backtest

import (
	"testing"
	"time"

	"bouncebot/src/executor"
	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func fill(instrument string, side strategy.Side, reason strategy.Reason, hour int, qty, price float64) *executor.OrderResult {
	return &executor.OrderResult{
		OrderID:    "backtest_test",
		Instrument: instrument,
		Side:       side,
		Reason:     reason,
		Quantity:   decimal.NewFromFloat(qty),
		Price:      decimal.NewFromFloat(price),
		Timestamp:  start.Add(time.Duration(hour) * time.Hour),
		Mode:       executor.ModeBacktest,
	}
}

func equity(values ...float64) []EquityPoint {
	curve := make([]EquityPoint, len(values))
	for i, v := range values {
		curve[i] = EquityPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Equity: decimal.NewFromFloat(v)}
	}
	return curve
}

func TestMatchRoundTrips(t *testing.T) {
	results := []*executor.OrderResult{
		fill("SOL/USDT", strategy.SideSell, strategy.ReasonForcedClose, 0, 3, 90), // 恢复持仓，无买入
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 1, 10, 100),
		fill("ETH/USDT", strategy.SideBuy, strategy.ReasonEntry, 2, 1, 2000),
		fill("SOL/USDT", strategy.SideSell, strategy.ReasonTakeProfit, 5, 10, 104),
		fill("ETH/USDT", strategy.SideSell, strategy.ReasonStopLoss, 6, 1, 1900),
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 8, 10, 95), // 未平仓
	}

	trips := MatchRoundTrips(results)
	require.Len(t, trips, 2)

	assert.Equal(t, "SOL/USDT", trips[0].Instrument)
	assert.Equal(t, strategy.ReasonTakeProfit, trips[0].Reason)
	assert.True(t, trips[0].ReturnPct().Equal(decimal.NewFromInt(4)))
	assert.True(t, trips[0].PnL().Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 4*time.Hour, trips[0].HeldFor())

	assert.Equal(t, "ETH/USDT", trips[1].Instrument)
	assert.True(t, trips[1].ReturnPct().Equal(decimal.NewFromInt(-5)))
}

func TestCalculate(t *testing.T) {
	results := []*executor.OrderResult{
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 0, 10, 100),
		fill("SOL/USDT", strategy.SideSell, strategy.ReasonTakeProfit, 3, 10, 104),
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 5, 10, 100),
		fill("SOL/USDT", strategy.SideSell, strategy.ReasonStopLoss, 7, 10, 95),
		fill("SOL/USDT", strategy.SideBuy, strategy.ReasonEntry, 9, 10, 100),
		fill("SOL/USDT", strategy.SideSell, strategy.ReasonTakeProfit, 12, 10, 104),
	}
	curve := equity(10000, 10040, 10020, 9990, 10030)

	stats := Calculate(decimal.NewFromInt(10000), decimal.NewFromInt(10030), results, curve)

	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 2, stats.WinningTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.Equal(t, "66.67", stats.WinRate.StringFixed(2))
	assert.Equal(t, "1.00", stats.AvgReturnPct.StringFixed(2))
	assert.True(t, stats.TotalPnL.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "0.30", stats.TotalReturnPct.StringFixed(2))
	assert.Equal(t, 2, stats.ExitReasons[strategy.ReasonTakeProfit])
	assert.Equal(t, 1, stats.ExitReasons[strategy.ReasonStopLoss])

	// 收益 4, -5, 4：均值 1，总体标准差 sqrt(18)
	assert.Equal(t, "0.2357", stats.SharpeRatio.StringFixed(4))

	// 峰值 10040 回撤到 9990
	assert.Equal(t, "0.4980", stats.MaxDrawdownPct.StringFixed(4))
}

func TestCalculate_NoTrades(t *testing.T) {
	stats := Calculate(decimal.NewFromInt(10000), decimal.NewFromInt(10000), nil, equity(10000, 10000))

	assert.Equal(t, 0, stats.TotalTrades)
	assert.True(t, stats.WinRate.IsZero())
	assert.True(t, stats.SharpeRatio.IsZero())
	assert.True(t, stats.TotalReturnPct.IsZero())
	assert.True(t, stats.MaxDrawdownPct.IsZero())
}

func TestMaxDrawdownPct(t *testing.T) {
	tests := []struct {
		name  string
		curve []EquityPoint
		want  string
	}{
		{"empty", nil, "0.00"},
		{"monotonic", equity(100, 110, 120), "0.00"},
		{"single dip", equity(100, 80, 120), "20.00"},
		{"new peak then deeper dip", equity(100, 90, 200, 150), "25.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxDrawdownPct(tt.curve).StringFixed(2))
		})
	}
}
