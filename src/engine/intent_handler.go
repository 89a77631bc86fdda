package engine

import (
	"context"
	"fmt"

	"github.com/xpwu/go-log/log"

	"bouncebot/src/executor"
	"bouncebot/src/strategy"
)

// IntentHandler 交易意图处理器接口
type IntentHandler interface {
	// HandleIntent 处理交易意图，返回成交结果
	HandleIntent(ctx context.Context, intent *strategy.TradeIntent) (*executor.OrderResult, error)
}

// IntentHandlerRegistry 交易意图处理器注册表
type IntentHandlerRegistry struct {
	handlers map[strategy.Side]IntentHandler
}

// NewIntentHandlerRegistry 创建处理器注册表
func NewIntentHandlerRegistry() *IntentHandlerRegistry {
	return &IntentHandlerRegistry{
		handlers: make(map[strategy.Side]IntentHandler),
	}
}

// RegisterHandler 注册处理器
func (r *IntentHandlerRegistry) RegisterHandler(side strategy.Side, handler IntentHandler) {
	r.handlers[side] = handler
}

// HandleIntent 分发交易意图
func (r *IntentHandlerRegistry) HandleIntent(ctx context.Context, intent *strategy.TradeIntent) (*executor.OrderResult, error) {
	handler, exists := r.handlers[intent.Side]
	if !exists {
		return nil, fmt.Errorf("unknown intent side: %s", intent.Side)
	}
	return handler.HandleIntent(ctx, intent)
}

// BuyIntentHandler 买入意图处理器
type BuyIntentHandler struct {
	executor executor.Executor
}

// NewBuyIntentHandler 创建买入处理器
func NewBuyIntentHandler(executor executor.Executor) *BuyIntentHandler {
	return &BuyIntentHandler{executor: executor}
}

// HandleIntent 执行买入
func (h *BuyIntentHandler) HandleIntent(ctx context.Context, intent *strategy.TradeIntent) (*executor.OrderResult, error) {
	ctx, logger := log.WithCtx(ctx)

	logger.Info("处理买入意图",
		"instrument", intent.Instrument,
		"size", intent.Size.String(),
		"price", intent.Price.String(),
		"cost", intent.Notional().StringFixed(2))

	result, err := h.executor.Execute(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to execute buy order: %w", err)
	}

	logger.Info("买入订单执行成功",
		"order_id", result.OrderID,
		"quantity", result.Quantity.String(),
		"price", result.Price.String())
	return result, nil
}

// SellIntentHandler 卖出意图处理器
type SellIntentHandler struct {
	executor executor.Executor
}

// NewSellIntentHandler 创建卖出处理器
func NewSellIntentHandler(executor executor.Executor) *SellIntentHandler {
	return &SellIntentHandler{executor: executor}
}

// HandleIntent 执行卖出（全部持仓）
func (h *SellIntentHandler) HandleIntent(ctx context.Context, intent *strategy.TradeIntent) (*executor.OrderResult, error) {
	ctx, logger := log.WithCtx(ctx)

	logger.Info("处理卖出意图",
		"instrument", intent.Instrument,
		"reason", intent.Reason,
		"size", intent.Size.String(),
		"return_pct", intent.ReturnPct.StringFixed(2))

	if !intent.Size.IsPositive() {
		return nil, fmt.Errorf("sell size must be positive: %s", intent.Size)
	}

	result, err := h.executor.Execute(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to execute sell order: %w", err)
	}

	logger.Info("卖出订单执行成功",
		"order_id", result.OrderID,
		"quantity", result.Quantity.String(),
		"price", result.Price.String())
	return result, nil
}
