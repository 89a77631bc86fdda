package backtest

import (
	"math"
	"time"

	"bouncebot/src/executor"
	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EquityPoint 权益曲线点（cash + 持仓市值）
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Cash      decimal.Decimal `json:"cash"`
}

// RoundTrip 一次完整的开平仓
type RoundTrip struct {
	Instrument string          `json:"instrument"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Shares     decimal.Decimal `json:"shares"`
	Reason     strategy.Reason `json:"reason"`
	Commission decimal.Decimal `json:"commission"`
}

// ReturnPct 单笔收益率（百分比，不含手续费）
func (r *RoundTrip) ReturnPct() decimal.Decimal {
	if r.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return r.ExitPrice.Sub(r.EntryPrice).Div(r.EntryPrice).Mul(hundred)
}

// PnL 单笔盈亏（扣手续费）
func (r *RoundTrip) PnL() decimal.Decimal {
	return r.ExitPrice.Sub(r.EntryPrice).Mul(r.Shares).Sub(r.Commission)
}

// HeldFor 持仓时长
func (r *RoundTrip) HeldFor() time.Duration {
	return r.ExitTime.Sub(r.EntryTime)
}

// MatchRoundTrips 按交易对把 BUY 与随后的 SELL 配对，未平仓的 BUY 不计入
func MatchRoundTrips(results []*executor.OrderResult) []*RoundTrip {
	open := make(map[string]*executor.OrderResult)
	var trips []*RoundTrip

	for _, result := range results {
		switch result.Side {
		case strategy.SideBuy:
			open[result.Instrument] = result
		case strategy.SideSell:
			entry, ok := open[result.Instrument]
			if !ok {
				// 恢复的持仓没有对应的买入记录
				continue
			}
			delete(open, result.Instrument)
			trips = append(trips, &RoundTrip{
				Instrument: result.Instrument,
				EntryTime:  entry.Timestamp,
				ExitTime:   result.Timestamp,
				EntryPrice: entry.Price,
				ExitPrice:  result.Price,
				Shares:     result.Quantity,
				Reason:     result.Reason,
				Commission: entry.Commission.Add(result.Commission),
			})
		}
	}
	return trips
}

// Statistics 回测统计
type Statistics struct {
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	LosingTrades    int             `json:"losing_trades"`
	WinRate         decimal.Decimal `json:"win_rate"`       // 百分比
	AvgReturnPct    decimal.Decimal `json:"avg_return_pct"` // 单笔平均收益率
	SharpeRatio     decimal.Decimal `json:"sharpe_ratio"`   // 单笔收益均值/标准差
	TotalReturnPct  decimal.Decimal `json:"total_return_pct"`
	MaxDrawdownPct  decimal.Decimal `json:"max_drawdown_pct"`
	InitialCapital  decimal.Decimal `json:"initial_capital"`
	FinalValue      decimal.Decimal `json:"final_value"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalCommission decimal.Decimal `json:"total_commission"`

	ExitReasons map[strategy.Reason]int `json:"exit_reasons"`
	RoundTrips  []*RoundTrip            `json:"round_trips"`
	EquityCurve []EquityPoint           `json:"equity_curve"`
}

// Calculate 根据成交记录与权益曲线计算统计，finalValue 为最后一根K线时的组合价值
func Calculate(initialCapital, finalValue decimal.Decimal, results []*executor.OrderResult, curve []EquityPoint) *Statistics {
	stats := &Statistics{
		InitialCapital: initialCapital,
		FinalValue:     finalValue,
		ExitReasons:    make(map[strategy.Reason]int),
		RoundTrips:     MatchRoundTrips(results),
		EquityCurve:    curve,
	}

	for _, result := range results {
		stats.TotalCommission = stats.TotalCommission.Add(result.Commission)
	}

	returns := make([]decimal.Decimal, 0, len(stats.RoundTrips))
	for _, trip := range stats.RoundTrips {
		ret := trip.ReturnPct()
		returns = append(returns, ret)
		stats.TotalPnL = stats.TotalPnL.Add(trip.PnL())
		stats.ExitReasons[trip.Reason]++
		if ret.IsPositive() {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
	}
	stats.TotalTrades = len(stats.RoundTrips)

	if stats.TotalTrades > 0 {
		n := decimal.NewFromInt(int64(stats.TotalTrades))
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).Div(n).Mul(hundred)
		stats.AvgReturnPct = decimal.Sum(decimal.Zero, returns...).Div(n)
		stats.SharpeRatio = sharpe(returns, stats.AvgReturnPct)
	}

	if initialCapital.IsPositive() {
		stats.TotalReturnPct = finalValue.Sub(initialCapital).Div(initialCapital).Mul(hundred)
	}
	stats.MaxDrawdownPct = MaxDrawdownPct(curve)

	return stats
}

// sharpe 单笔收益的均值/总体标准差，无风险利率按 0 计
func sharpe(returns []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}

	varianceSum := decimal.Zero
	for _, ret := range returns {
		diff := ret.Sub(mean)
		varianceSum = varianceSum.Add(diff.Mul(diff))
	}
	variance, _ := varianceSum.Div(decimal.NewFromInt(int64(len(returns)))).Float64()
	std := math.Sqrt(variance)
	if std == 0 {
		return decimal.Zero
	}
	return mean.Div(decimal.NewFromFloat(std))
}

// MaxDrawdownPct 权益曲线最大回撤（百分比）
func MaxDrawdownPct(curve []EquityPoint) decimal.Decimal {
	if len(curve) == 0 {
		return decimal.Zero
	}

	peak := curve[0].Equity
	maxDrawdown := decimal.Zero
	for _, point := range curve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		drawdown := peak.Sub(point.Equity).Div(peak).Mul(hundred)
		if drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}
