package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// Helper function to create test Position
func createTestPosition(entry, highWater float64) *Position {
	return &Position{
		EntryTime:      entryAt,
		EntryPrice:     decimal.NewFromFloat(entry),
		Shares:         decimal.NewFromInt(7),
		HighWaterPrice: decimal.NewFromFloat(highWater),
	}
}

func TestNewTradeInfo(t *testing.T) {
	pos := createTestPosition(100, 110)

	t.Run("drawdown from peak", func(t *testing.T) {
		info := NewTradeInfo(pos, decimal.NewFromInt(99), entryAt.Add(6*time.Hour))
		assert.True(t, info.ReturnPct.Equal(decimal.NewFromInt(-1)), "got %s", info.ReturnPct)
		assert.True(t, info.TrailingDropPct.Equal(decimal.NewFromInt(-10)), "got %s", info.TrailingDropPct)
		assert.Equal(t, 6.0, info.HeldHours)
	})

	t.Run("new high resets drawdown", func(t *testing.T) {
		info := NewTradeInfo(pos, decimal.NewFromInt(120), entryAt)
		assert.True(t, info.HighWaterPrice.Equal(decimal.NewFromInt(120)))
		assert.True(t, info.TrailingDropPct.IsZero())
		// 计算不修改原持仓
		assert.True(t, pos.HighWaterPrice.Equal(decimal.NewFromInt(110)))
	})
}

func TestExitRules_Individual(t *testing.T) {
	tests := []struct {
		name    string
		rule    ExitRule
		price   float64
		peak    float64
		held    time.Duration
		want    bool
		wantWhy Reason
	}{
		{name: "take profit at threshold", rule: &TakeProfitRule{TakeProfitPct: 4}, price: 104, peak: 104, want: true, wantWhy: ReasonTakeProfit},
		{name: "take profit below threshold", rule: &TakeProfitRule{TakeProfitPct: 4}, price: 103.9, peak: 104, want: false},
		{name: "stop loss at threshold", rule: &StopLossRule{StopLossPct: -5}, price: 95, peak: 100, want: true, wantWhy: ReasonStopLoss},
		{name: "stop loss above threshold", rule: &StopLossRule{StopLossPct: -5}, price: 95.1, peak: 100, want: false},
		{name: "trailing from peak", rule: &TrailingStopRule{TrailingStopPct: -5}, price: 104.5, peak: 110, want: true, wantWhy: ReasonTrailingStop},
		{name: "trailing shallow pullback", rule: &TrailingStopRule{TrailingStopPct: -5}, price: 106, peak: 110, want: false},
		{name: "time exit reached", rule: &TimeExitRule{HoldHoursMax: 72}, price: 100, peak: 100, held: 72 * time.Hour, want: true, wantWhy: ReasonTimeExit},
		{name: "time exit not yet", rule: &TimeExitRule{HoldHoursMax: 72}, price: 100, peak: 100, held: 71 * time.Hour, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := NewTradeInfo(createTestPosition(100, tt.peak), decimal.NewFromFloat(tt.price), entryAt.Add(tt.held))
			signal := tt.rule.Check(info)
			assert.Equal(t, tt.want, signal.ShouldExit)
			if tt.want {
				assert.Equal(t, tt.wantWhy, signal.Reason)
				assert.NotEmpty(t, signal.Detail)
			}
			assert.NotEmpty(t, tt.rule.GetName())
		})
	}
}

func TestExitRules_Priority(t *testing.T) {
	params := GetDefaultBounceParams()
	rules := NewExitRules(params)
	require.Len(t, rules, 4)

	t.Run("take profit wins over time exit", func(t *testing.T) {
		info := NewTradeInfo(createTestPosition(100, 104), decimal.NewFromInt(105), entryAt.Add(100*time.Hour))
		assert.Equal(t, ReasonTakeProfit, rules.Check(info).Reason)
	})

	t.Run("stop loss wins over trailing stop", func(t *testing.T) {
		// 回撤和止损同时满足
		info := NewTradeInfo(createTestPosition(100, 103), decimal.NewFromInt(94), entryAt.Add(time.Hour))
		assert.Equal(t, ReasonStopLoss, rules.Check(info).Reason)
	})

	t.Run("trailing stop wins over time exit", func(t *testing.T) {
		info := NewTradeInfo(createTestPosition(100, 103.9), decimal.NewFromFloat(98.5), entryAt.Add(80*time.Hour))
		assert.Equal(t, ReasonTrailingStop, rules.Check(info).Reason)
	})

	t.Run("nothing triggers", func(t *testing.T) {
		info := NewTradeInfo(createTestPosition(100, 101), decimal.NewFromInt(100), entryAt.Add(time.Hour))
		assert.False(t, rules.Check(info).ShouldExit)
	})
}

func TestNewExitRules_OptionalRules(t *testing.T) {
	params := GetDefaultBounceParams()
	params.TrailingStopPct = 0
	params.HoldHoursMax = 0

	rules := NewExitRules(params)
	assert.Len(t, rules, 2)
	assert.Equal(t, "TakeProfit(4.0%) > StopLoss(-5.0%)", rules.GetName())
}
