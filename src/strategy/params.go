package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BounceParams 反弹策略参数，百分比字段单位为 %（4 表示 4%）
type BounceParams struct {
	DropThresholdPct    float64       // 相对前高跌幅达到该值才开仓
	TakeProfitPct       float64       // 止盈收益率
	StopLossPct         float64       // 止损收益率，负数
	TrailingStopPct     float64       // 相对持仓最高价的回撤，负数；0 表示关闭
	HoldHoursMax        float64       // 最长持仓小时数；0 表示不限
	LookbackBars        int           // 前高回看K线数，不含当前K线
	SMAPeriod           int           // 趋势均线周期
	PositionSizeDollars float64       // 每笔开仓金额
	CooldownDuration    time.Duration // 止损后的冷却时长
	MaxTradesPerPeriod  int           // 每个周期最多开仓次数；0 表示不限
	TradePeriod         time.Duration // 开仓计数周期
	WindowMargin        int           // 窗口额外保留的K线数
	TrendFastPeriod     int           // 可选：快均线
	TrendSlowPeriod     int           // 可选：慢均线，要求快线在慢线之上
	RequireBounce       bool          // 可选：要求收盘价高于上一根
	InitialCash         float64       // 初始资金
}

// GetDefaultBounceParams 默认参数
func GetDefaultBounceParams() *BounceParams {
	return &BounceParams{
		DropThresholdPct:    4,
		TakeProfitPct:       4,
		StopLossPct:         -5,
		TrailingStopPct:     -5,
		HoldHoursMax:        72,
		LookbackBars:        60,
		SMAPeriod:           10,
		PositionSizeDollars: 700,
		CooldownDuration:    4 * time.Hour,
		MaxTradesPerPeriod:  0,
		TradePeriod:         24 * time.Hour,
		WindowMargin:        10,
		InitialCash:         10000,
	}
}

func configErr(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate 校验参数，返回 *ConfigError
func (p *BounceParams) Validate() error {
	if p.LookbackBars <= 0 {
		return configErr("lookback_bars", "must be positive, got %d", p.LookbackBars)
	}
	if p.SMAPeriod <= 0 {
		return configErr("sma_period", "must be positive, got %d", p.SMAPeriod)
	}
	if p.DropThresholdPct <= 0 {
		return configErr("drop_threshold_pct", "must be positive, got %g", p.DropThresholdPct)
	}
	if p.StopLossPct >= 0 {
		return configErr("stop_loss_pct", "must be negative, got %g", p.StopLossPct)
	}
	if p.TakeProfitPct <= p.StopLossPct {
		return configErr("take_profit_pct", "(%g) must be greater than stop_loss_pct (%g)", p.TakeProfitPct, p.StopLossPct)
	}
	if p.TakeProfitPct <= 0 {
		return configErr("take_profit_pct", "must be positive, got %g", p.TakeProfitPct)
	}
	if p.TrailingStopPct > 0 {
		return configErr("trailing_stop_pct", "must be negative or 0 (disabled), got %g", p.TrailingStopPct)
	}
	if p.HoldHoursMax < 0 {
		return configErr("hold_hours_max", "must be non-negative, got %g", p.HoldHoursMax)
	}
	if p.PositionSizeDollars <= 0 {
		return configErr("position_size_dollars", "must be positive, got %g", p.PositionSizeDollars)
	}
	if p.CooldownDuration < 0 {
		return configErr("cooldown_duration", "must be non-negative, got %s", p.CooldownDuration)
	}
	if p.MaxTradesPerPeriod < 0 {
		return configErr("max_trades_per_period", "must be non-negative, got %d", p.MaxTradesPerPeriod)
	}
	if p.MaxTradesPerPeriod > 0 && p.TradePeriod <= 0 {
		return configErr("trade_period", "must be positive when max_trades_per_period is set")
	}
	if p.WindowMargin < 0 {
		return configErr("window_margin", "must be non-negative, got %d", p.WindowMargin)
	}
	if p.TrendFastPeriod < 0 || p.TrendSlowPeriod < 0 {
		return configErr("trend_periods", "must be non-negative")
	}
	if (p.TrendFastPeriod == 0) != (p.TrendSlowPeriod == 0) {
		return configErr("trend_periods", "fast and slow must be set together")
	}
	if p.TrendFastPeriod > 0 && p.TrendFastPeriod >= p.TrendSlowPeriod {
		return configErr("trend_fast_period", "(%d) must be less than trend_slow_period (%d)", p.TrendFastPeriod, p.TrendSlowPeriod)
	}
	if p.InitialCash < 0 {
		return configErr("initial_cash", "must be non-negative, got %g", p.InitialCash)
	}
	return nil
}

// WindowCapacity 窗口容量：满足所有信号的最长需求再加余量
func (p *BounceParams) WindowCapacity() int {
	need := p.LookbackBars + 1
	for _, n := range []int{p.SMAPeriod, p.TrendSlowPeriod, 2} {
		if n > need {
			need = n
		}
	}
	return need + p.WindowMargin
}

// ParseParamOverrides 解析 "key1=value1,key2=value2" 形式的参数覆盖
func ParseParamOverrides(paramsStr string) (map[string]float64, error) {
	params := make(map[string]float64)

	if paramsStr == "" {
		return params, nil
	}

	for _, pair := range strings.Split(paramsStr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid parameter format: %s (expected key=value)", pair)
		}

		key := strings.TrimSpace(parts[0])
		valueStr := strings.TrimSpace(parts[1])

		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter value for %s: %s", key, valueStr)
		}

		params[key] = value
	}

	return params, nil
}

// ApplyOverrides 把覆盖值写入参数，未知键报错
func (p *BounceParams) ApplyOverrides(overrides map[string]float64) error {
	for key, value := range overrides {
		switch key {
		case "drop_threshold_pct":
			p.DropThresholdPct = value
		case "take_profit_pct":
			p.TakeProfitPct = value
		case "stop_loss_pct":
			p.StopLossPct = value
		case "trailing_stop_pct":
			p.TrailingStopPct = value
		case "hold_hours_max":
			p.HoldHoursMax = value
		case "lookback_bars":
			p.LookbackBars = int(value)
		case "sma_period":
			p.SMAPeriod = int(value)
		case "position_size_dollars":
			p.PositionSizeDollars = value
		case "cooldown_minutes":
			p.CooldownDuration = time.Duration(value * float64(time.Minute))
		case "max_trades_per_period":
			p.MaxTradesPerPeriod = int(value)
		case "trend_fast_period":
			p.TrendFastPeriod = int(value)
		case "trend_slow_period":
			p.TrendSlowPeriod = int(value)
		case "require_bounce":
			p.RequireBounce = value != 0
		default:
			return fmt.Errorf("unknown parameter: %s", key)
		}
	}
	return nil
}
