package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/strategy"

	"github.com/gofrs/uuid"
	"github.com/xpwu/go-log/log"
	"golang.org/x/time/rate"
)

// LiveExecutor 实盘交易执行器：市价单提交到交易所
type LiveExecutor struct {
	cexClient cex.CEXClient
	limiter   *rate.Limiter

	checkOnce sync.Once
	checkErr  error
}

// NewLiveExecutor 创建实盘交易执行器，minInterval 为两次下单的最小间隔
func NewLiveExecutor(cexClient cex.CEXClient, minInterval time.Duration) *LiveExecutor {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &LiveExecutor{
		cexClient: cexClient,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// validateTradingEnabled 首次下单前检查交易所连接
func (e *LiveExecutor) validateTradingEnabled(ctx context.Context) error {
	e.checkOnce.Do(func() {
		_, logger := log.WithCtx(ctx)
		if err := e.cexClient.Ping(ctx); err != nil {
			e.checkErr = fmt.Errorf("CEX连接失败: %w", err)
			return
		}
		logger.Info("✅ 实盘交易安全检查通过")
	})
	return e.checkErr
}

// Execute 执行交易意图（真实交易）
func (e *LiveExecutor) Execute(ctx context.Context, intent *strategy.TradeIntent) (*OrderResult, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("LiveExecutor")

	if err := e.validateTradingEnabled(ctx); err != nil {
		return nil, fmt.Errorf("实盘交易安全检查失败: %w", err)
	}

	pair, err := cex.ParseTradingPair(intent.Instrument)
	if err != nil {
		return nil, err
	}

	side := cex.OrderSideBuy
	if intent.Side == strategy.SideSell {
		side = cex.OrderSideSell
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("order rate limiter: %w", err)
	}

	request := cex.OrderRequest{
		TradingPair:   pair,
		Side:          side,
		Type:          cex.OrderTypeMarket,
		Quantity:      intent.Size,
		ClientOrderID: uuid.Must(uuid.NewV4()).String(),
	}

	cexResult, err := e.cexClient.PlaceOrder(ctx, request)
	if err != nil {
		logger.Error("下单失败", "instrument", intent.Instrument, "side", string(side), "error", err)
		return nil, fmt.Errorf("place %s order for %s: %w", side, intent.Instrument, err)
	}

	// 成交均价缺失时按决策价记账
	price := cexResult.Price
	if !price.IsPositive() {
		price = intent.Price
	}
	quantity := cexResult.Quantity
	if !quantity.IsPositive() {
		quantity = intent.Size
	}
	ts := cexResult.TransactTime
	if ts.IsZero() {
		ts = intent.Timestamp
	}

	result := &OrderResult{
		OrderID:       cexResult.OrderID,
		ClientOrderID: request.ClientOrderID,
		Instrument:    intent.Instrument,
		Side:          intent.Side,
		Reason:        intent.Reason,
		Quantity:      quantity,
		Price:         price,
		Timestamp:     ts,
		Mode:          ModeLive,
	}

	logger.Info("TRADE_RECORD",
		"mode", string(ModeLive),
		"action", string(result.Side),
		"order_id", result.OrderID,
		"client_order_id", result.ClientOrderID,
		"symbol", result.Instrument,
		"quantity", result.Quantity.String(),
		"price", result.Price.String(),
		"notional", result.Notional().String(),
		"timestamp", result.Timestamp.Format("2006-01-02T15:04:05Z"),
		"reason", string(result.Reason))

	return result, nil
}

// GetName 获取执行器名称
func (e *LiveExecutor) GetName() string {
	return fmt.Sprintf("LiveExecutor(%s)", e.cexClient.GetName())
}

// Close 关闭执行器
func (e *LiveExecutor) Close() error {
	// 实盘执行器无需特殊清理
	return nil
}
