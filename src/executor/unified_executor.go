package executor

import (
	"context"

	"bouncebot/src/strategy"

	"github.com/xpwu/go-log/log"
)

// UnifiedExecutor 统一执行器：委托具体执行器成交，再把成交写入记录器
//
// 回测、模拟盘和实盘共用同一套记录逻辑。记录失败只打日志，不影响成交。
type UnifiedExecutor struct {
	inner    Executor
	recorder TradeRecorder
	runID    string
}

// NewUnifiedExecutor 创建统一执行器，recorder 为 nil 时只做转发
func NewUnifiedExecutor(inner Executor, recorder TradeRecorder, runID string) *UnifiedExecutor {
	return &UnifiedExecutor{
		inner:    inner,
		recorder: recorder,
		runID:    runID,
	}
}

// Execute 执行并记录
func (e *UnifiedExecutor) Execute(ctx context.Context, intent *strategy.TradeIntent) (*OrderResult, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("UnifiedExecutor")

	result, err := e.inner.Execute(ctx, intent)
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		if err := e.recorder.SaveTrade(ctx, e.runID, result); err != nil {
			logger.Error("保存成交记录失败", "order_id", result.OrderID, "error", err)
		}
	}
	return result, nil
}

// RunID 本次运行的编号
func (e *UnifiedExecutor) RunID() string {
	return e.runID
}

// GetName 获取执行器名称
func (e *UnifiedExecutor) GetName() string {
	return e.inner.GetName()
}

// Close 关闭内部执行器
func (e *UnifiedExecutor) Close() error {
	return e.inner.Close()
}
