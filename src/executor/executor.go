package executor

import (
	"context"
	"time"

	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
)

// Mode 执行模式
type Mode string

const (
	ModeBacktest Mode = "BACKTEST"
	ModeDryRun   Mode = "DRY_RUN"
	ModeLive     Mode = "LIVE"
)

// OrderResult 订单执行结果
type OrderResult struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Instrument    string          `json:"instrument"`
	Side          strategy.Side   `json:"side"`
	Reason        strategy.Reason `json:"reason"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`      // 实际成交价格
	Commission    decimal.Decimal `json:"commission"` // 手续费
	Timestamp     time.Time       `json:"timestamp"`
	Mode          Mode            `json:"mode"`
}

// Notional 成交金额
func (r *OrderResult) Notional() decimal.Decimal {
	return r.Quantity.Mul(r.Price)
}

// Executor 交易执行器接口：把交易意图变成成交
type Executor interface {
	// Execute 执行交易意图
	Execute(ctx context.Context, intent *strategy.TradeIntent) (*OrderResult, error)

	// GetName 获取执行器名称
	GetName() string

	// Close 关闭执行器，清理资源
	Close() error
}

// TradeRecorder 成交记录持久化
type TradeRecorder interface {
	SaveTrade(ctx context.Context, runID string, result *OrderResult) error
}
