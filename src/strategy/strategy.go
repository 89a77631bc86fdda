package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionState 单个交易对的持仓状态
type PositionState int

const (
	StateFlat PositionState = iota
	StateLong
)

func (s PositionState) String() string {
	switch s {
	case StateFlat:
		return "FLAT"
	case StateLong:
		return "LONG"
	default:
		return fmt.Sprintf("PositionState(%d)", int(s))
	}
}

// Side 交易方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Reason 交易原因
type Reason string

const (
	ReasonEntry        Reason = "ENTRY"
	ReasonTakeProfit   Reason = "TAKE_PROFIT"
	ReasonStopLoss     Reason = "STOP_LOSS"
	ReasonTrailingStop Reason = "TRAILING_STOP"
	ReasonTimeExit     Reason = "TIME_EXIT"
	ReasonForcedClose  Reason = "FORCED_CLOSE" // 只由 Runner 触发
)

// TradeIntent 引擎产出的交易意图，由 Runner 立即消费
type TradeIntent struct {
	Instrument string          `json:"instrument"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"` // 决策时的K线收盘价
	Reason     Reason          `json:"reason"`
	Timestamp  time.Time       `json:"timestamp"`
	ReturnPct  decimal.Decimal `json:"return_pct"` // 卖出时相对开仓价的收益(%)
}

// Notional 名义金额
func (t *TradeIntent) Notional() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

// Position 多头持仓
type Position struct {
	EntryTime      time.Time       `json:"entry_time"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	Shares         decimal.Decimal `json:"shares"`
	HighWaterPrice decimal.Decimal `json:"high_water_price"`
}

// Validate 检查持仓数据
func (p *Position) Validate() error {
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("%w: entry price %s must be positive", ErrInvalidPosition, p.EntryPrice)
	}
	if !p.Shares.IsPositive() {
		return fmt.Errorf("%w: shares %s must be positive", ErrInvalidPosition, p.Shares)
	}
	if p.HighWaterPrice.IsNegative() {
		return fmt.Errorf("%w: high water price %s is negative", ErrInvalidPosition, p.HighWaterPrice)
	}
	return nil
}

// MarketValue 按给定价格计算市值
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Shares.Mul(price)
}

// Snapshot 引擎状态快照，用于持久化和展示
type Snapshot struct {
	Instrument    string          `json:"instrument"`
	State         PositionState   `json:"state"`
	Position      *Position       `json:"position,omitempty"`
	Cash          decimal.Decimal `json:"cash"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	CooldownUntil time.Time       `json:"cooldown_until"`
	TradeCount    int             `json:"trade_count"`
	Bars          int             `json:"bars"`
}
