package executor

import (
	"context"
	"fmt"
	"sync"

	"bouncebot/src/strategy"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// BacktestExecutor 回测/模拟盘执行器：按意图价格成交，不调用交易所
type BacktestExecutor struct {
	mode       Mode
	commission decimal.Decimal // 手续费率
	slippage   decimal.Decimal // 滑点

	mu              sync.Mutex
	positions       map[string]decimal.Decimal
	orders          []OrderResult
	totalCommission decimal.Decimal
}

// NewBacktestExecutor 创建回测执行器，默认无手续费无滑点
func NewBacktestExecutor(mode Mode) *BacktestExecutor {
	if mode == "" {
		mode = ModeBacktest
	}
	return &BacktestExecutor{
		mode:      mode,
		positions: make(map[string]decimal.Decimal),
		orders:    make([]OrderResult, 0),
	}
}

// SetCommission 设置手续费率
func (e *BacktestExecutor) SetCommission(commission float64) {
	e.commission = decimal.NewFromFloat(commission)
}

// SetSlippage 设置滑点
func (e *BacktestExecutor) SetSlippage(slippage float64) {
	e.slippage = decimal.NewFromFloat(slippage)
}

// Execute 执行订单（模拟）
func (e *BacktestExecutor) Execute(ctx context.Context, intent *strategy.TradeIntent) (*OrderResult, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BacktestExecutor")

	e.mu.Lock()
	defer e.mu.Unlock()

	// 应用滑点
	executionPrice := intent.Price
	if intent.Side == strategy.SideBuy {
		executionPrice = executionPrice.Mul(decimal.NewFromInt(1).Add(e.slippage))
	} else {
		executionPrice = executionPrice.Mul(decimal.NewFromInt(1).Sub(e.slippage))
	}

	held := e.positions[intent.Instrument]
	switch intent.Side {
	case strategy.SideBuy:
		e.positions[intent.Instrument] = held.Add(intent.Size)
	case strategy.SideSell:
		if held.LessThan(intent.Size) {
			logger.Error("持仓不足", "instrument", intent.Instrument, "required", intent.Size.String(), "available", held.String())
			return nil, fmt.Errorf("insufficient position for %s: required %s, available %s",
				intent.Instrument, intent.Size.String(), held.String())
		}
		e.positions[intent.Instrument] = held.Sub(intent.Size)
	default:
		return nil, fmt.Errorf("unknown side: %s", intent.Side)
	}

	result := &OrderResult{
		OrderID:    fmt.Sprintf("%s_%s", e.orderPrefix(), uuid.Must(uuid.NewV4()).String()),
		Instrument: intent.Instrument,
		Side:       intent.Side,
		Reason:     intent.Reason,
		Quantity:   intent.Size,
		Price:      executionPrice,
		Commission: intent.Size.Mul(executionPrice).Mul(e.commission),
		Timestamp:  intent.Timestamp,
		Mode:       e.mode,
	}

	e.orders = append(e.orders, *result)
	e.totalCommission = e.totalCommission.Add(result.Commission)

	// 打印结构化日志用于数据分析
	logger.Info("TRADE_RECORD",
		"mode", string(e.mode),
		"action", string(result.Side),
		"order_id", result.OrderID,
		"symbol", result.Instrument,
		"quantity", result.Quantity.String(),
		"price", result.Price.String(),
		"notional", result.Notional().String(),
		"timestamp", result.Timestamp.Format("2006-01-02T15:04:05Z"),
		"reason", string(result.Reason))

	return result, nil
}

func (e *BacktestExecutor) orderPrefix() string {
	if e.mode == ModeDryRun {
		return "dryrun"
	}
	return "backtest"
}

// SetPosition 登记恢复的持仓，使随后的卖出可以成交
func (e *BacktestExecutor) SetPosition(instrument string, shares decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[instrument] = shares
}

// GetPosition 获取某个交易对的持仓数量
func (e *BacktestExecutor) GetPosition(instrument string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions[instrument]
}

// GetOrders 获取所有订单记录
func (e *BacktestExecutor) GetOrders() []OrderResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	orders := make([]OrderResult, len(e.orders))
	copy(orders, e.orders)
	return orders
}

// TotalCommission 累计手续费
func (e *BacktestExecutor) TotalCommission() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalCommission
}

// GetName 获取执行器名称
func (e *BacktestExecutor) GetName() string {
	return fmt.Sprintf("BacktestExecutor(%s)", e.mode)
}

// Close 关闭执行器
func (e *BacktestExecutor) Close() error {
	// 回测执行器无需清理资源
	return nil
}
