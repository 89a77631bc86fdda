package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TradeInfo 持仓在当前K线上的状态
type TradeInfo struct {
	EntryPrice      decimal.Decimal // 开仓价格
	EntryTime       time.Time       // 开仓时间
	HighWaterPrice  decimal.Decimal // 持仓期间最高价格（已含当前价）
	CurrentPrice    decimal.Decimal // 当前价格
	Now             time.Time       // 当前K线时间
	ReturnPct       decimal.Decimal // 相对开仓价收益(%)
	TrailingDropPct decimal.Decimal // 相对最高价回撤(%)，非正
	HeldHours       float64         // 持仓小时数
}

// NewTradeInfo 根据持仓和当前价格计算退出判断所需的各项指标
func NewTradeInfo(pos *Position, price decimal.Decimal, now time.Time) *TradeInfo {
	hwm := pos.HighWaterPrice
	if price.GreaterThan(hwm) {
		hwm = price
	}
	info := &TradeInfo{
		EntryPrice:     pos.EntryPrice,
		EntryTime:      pos.EntryTime,
		HighWaterPrice: hwm,
		CurrentPrice:   price,
		Now:            now,
		HeldHours:      now.Sub(pos.EntryTime).Hours(),
	}
	info.ReturnPct = price.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(hundred)
	if hwm.IsPositive() {
		info.TrailingDropPct = price.Sub(hwm).Div(hwm).Mul(hundred)
	}
	return info
}

// ExitSignal 退出信号
type ExitSignal struct {
	ShouldExit bool
	Reason     Reason
	Detail     string
}

var noExit = &ExitSignal{ShouldExit: false}

// ExitRule 单条退出规则
type ExitRule interface {
	// Check 判断是否应该退出
	Check(info *TradeInfo) *ExitSignal

	// GetName 获取规则名称
	GetName() string
}

// TakeProfitRule 固定止盈
type TakeProfitRule struct {
	TakeProfitPct float64
}

func (r *TakeProfitRule) Check(info *TradeInfo) *ExitSignal {
	if info.ReturnPct.GreaterThanOrEqual(decimal.NewFromFloat(r.TakeProfitPct)) {
		return &ExitSignal{
			ShouldExit: true,
			Reason:     ReasonTakeProfit,
			Detail:     fmt.Sprintf("take profit: %s%% >= %.2f%%", info.ReturnPct.StringFixed(2), r.TakeProfitPct),
		}
	}
	return noExit
}

func (r *TakeProfitRule) GetName() string {
	return fmt.Sprintf("TakeProfit(%.1f%%)", r.TakeProfitPct)
}

// StopLossRule 固定止损，阈值为负数
type StopLossRule struct {
	StopLossPct float64
}

func (r *StopLossRule) Check(info *TradeInfo) *ExitSignal {
	if info.ReturnPct.LessThanOrEqual(decimal.NewFromFloat(r.StopLossPct)) {
		return &ExitSignal{
			ShouldExit: true,
			Reason:     ReasonStopLoss,
			Detail:     fmt.Sprintf("stop loss: %s%% <= %.2f%%", info.ReturnPct.StringFixed(2), r.StopLossPct),
		}
	}
	return noExit
}

func (r *StopLossRule) GetName() string {
	return fmt.Sprintf("StopLoss(%.1f%%)", r.StopLossPct)
}

// TrailingStopRule 从持仓最高价回撤止盈
type TrailingStopRule struct {
	TrailingStopPct float64
}

func (r *TrailingStopRule) Check(info *TradeInfo) *ExitSignal {
	if info.TrailingDropPct.LessThanOrEqual(decimal.NewFromFloat(r.TrailingStopPct)) {
		return &ExitSignal{
			ShouldExit: true,
			Reason:     ReasonTrailingStop,
			Detail: fmt.Sprintf("trailing stop: %s%% from peak %s",
				info.TrailingDropPct.StringFixed(2), info.HighWaterPrice.String()),
		}
	}
	return noExit
}

func (r *TrailingStopRule) GetName() string {
	return fmt.Sprintf("Trailing(%.1f%%)", r.TrailingStopPct)
}

// TimeExitRule 最长持仓时间
type TimeExitRule struct {
	HoldHoursMax float64
}

func (r *TimeExitRule) Check(info *TradeInfo) *ExitSignal {
	if info.HeldHours >= r.HoldHoursMax {
		return &ExitSignal{
			ShouldExit: true,
			Reason:     ReasonTimeExit,
			Detail:     fmt.Sprintf("max holding time: %.1fh", info.HeldHours),
		}
	}
	return noExit
}

func (r *TimeExitRule) GetName() string {
	return fmt.Sprintf("TimeExit(%.0fh)", r.HoldHoursMax)
}

// ExitRules 按优先级排列的规则链，第一条触发的规则生效
type ExitRules []ExitRule

// NewExitRules 按 止盈 > 止损 > 移动止损 > 超时 的顺序组装规则
func NewExitRules(params *BounceParams) ExitRules {
	rules := ExitRules{
		&TakeProfitRule{TakeProfitPct: params.TakeProfitPct},
		&StopLossRule{StopLossPct: params.StopLossPct},
	}
	if params.TrailingStopPct < 0 {
		rules = append(rules, &TrailingStopRule{TrailingStopPct: params.TrailingStopPct})
	}
	if params.HoldHoursMax > 0 {
		rules = append(rules, &TimeExitRule{HoldHoursMax: params.HoldHoursMax})
	}
	return rules
}

// Check 依次检查规则
func (rules ExitRules) Check(info *TradeInfo) *ExitSignal {
	for _, rule := range rules {
		if signal := rule.Check(info); signal.ShouldExit {
			return signal
		}
	}
	return noExit
}

func (rules ExitRules) GetName() string {
	name := ""
	for i, rule := range rules {
		if i > 0 {
			name += " > "
		}
		name += rule.GetName()
	}
	return name
}
