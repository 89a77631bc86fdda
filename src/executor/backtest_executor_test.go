package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tradeTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func createIntent(side strategy.Side, size, price float64) *strategy.TradeIntent {
	reason := strategy.ReasonEntry
	if side == strategy.SideSell {
		reason = strategy.ReasonTakeProfit
	}
	return &strategy.TradeIntent{
		Instrument: "SOL/USDT",
		Side:       side,
		Size:       decimal.NewFromFloat(size),
		Price:      decimal.NewFromFloat(price),
		Reason:     reason,
		Timestamp:  tradeTime,
	}
}

func TestNewBacktestExecutor(t *testing.T) {
	executor := NewBacktestExecutor("")
	assert.Equal(t, "BacktestExecutor(BACKTEST)", executor.GetName())
	assert.Empty(t, executor.GetOrders())
	assert.True(t, executor.TotalCommission().IsZero())
	assert.NoError(t, executor.Close())
}

func TestBacktestExecutor_FillsAtIntentPrice(t *testing.T) {
	ctx := context.Background()
	executor := NewBacktestExecutor(ModeBacktest)

	buy, err := executor.Execute(ctx, createIntent(strategy.SideBuy, 10, 95.5))
	require.NoError(t, err)
	assert.True(t, buy.Price.Equal(decimal.NewFromFloat(95.5)))
	assert.True(t, buy.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, buy.Commission.IsZero())
	assert.Equal(t, tradeTime, buy.Timestamp)
	assert.Equal(t, ModeBacktest, buy.Mode)
	assert.True(t, strings.HasPrefix(buy.OrderID, "backtest_"))
	assert.True(t, executor.GetPosition("SOL/USDT").Equal(decimal.NewFromInt(10)))

	sell, err := executor.Execute(ctx, createIntent(strategy.SideSell, 10, 99.5))
	require.NoError(t, err)
	assert.Equal(t, strategy.ReasonTakeProfit, sell.Reason)
	assert.True(t, executor.GetPosition("SOL/USDT").IsZero())
	assert.Len(t, executor.GetOrders(), 2)
	assert.NotEqual(t, buy.OrderID, sell.OrderID)
}

func TestBacktestExecutor_CommissionAndSlippage(t *testing.T) {
	executor := NewBacktestExecutor(ModeDryRun)
	executor.SetCommission(0.001)
	executor.SetSlippage(0.01)

	result, err := executor.Execute(context.Background(), createIntent(strategy.SideBuy, 10, 100))
	require.NoError(t, err)
	assert.True(t, result.Price.Equal(decimal.NewFromInt(101)), "got %s", result.Price)
	assert.True(t, result.Commission.Equal(decimal.NewFromFloat(1.01)), "got %s", result.Commission)
	assert.True(t, strings.HasPrefix(result.OrderID, "dryrun_"))
	assert.True(t, executor.TotalCommission().Equal(result.Commission))

	sell, err := executor.Execute(context.Background(), createIntent(strategy.SideSell, 10, 100))
	require.NoError(t, err)
	assert.True(t, sell.Price.Equal(decimal.NewFromInt(99)))
}

func TestBacktestExecutor_InsufficientPosition(t *testing.T) {
	executor := NewBacktestExecutor(ModeBacktest)

	_, err := executor.Execute(context.Background(), createIntent(strategy.SideSell, 1, 100))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient position")
	assert.Empty(t, executor.GetOrders())

	// 恢复的持仓可以卖出
	executor.SetPosition("SOL/USDT", decimal.NewFromInt(1))
	_, err = executor.Execute(context.Background(), createIntent(strategy.SideSell, 1, 100))
	assert.NoError(t, err)
}
