package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bouncebot/src/backtest"
	"bouncebot/src/cex"
	"bouncebot/src/database"
	"bouncebot/src/executor"
	"bouncebot/src/strategies"
	"bouncebot/src/strategy"
	"bouncebot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// GapPolicy 实时模式下K线缺口的处理方式
type GapPolicy string

const (
	GapPolicySkip     GapPolicy = "skip"     // 直接处理新K线
	GapPolicyBackfill GapPolicy = "backfill" // 先补齐缺失的K线
)

// ParseGapPolicy 解析缺口策略，空串视为 skip
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(s) {
	case "", GapPolicySkip:
		return GapPolicySkip, nil
	case GapPolicyBackfill:
		return GapPolicyBackfill, nil
	}
	return "", fmt.Errorf("invalid gap policy: %q (expected skip or backfill)", s)
}

// Backfiller 补齐 (after, before) 之间缺失的K线
type Backfiller interface {
	Backfill(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, after, before time.Time) ([]*cex.KlineData, error)
}

// TradingEngine 统一的交易引擎（支持回测和实盘）
//
// 引擎本身不取数据：回测时遍历 DataFeed 给出的有序K线，
// 实盘时每个交易对一个 goroutine 按顺序消费K线。
type TradingEngine struct {
	registry  *strategies.Registry
	executor  executor.Executor
	timeframe timeframes.Timeframe

	// 意图处理器
	handlers *IntentHandlerRegistry

	// 可选组件
	positionStore   database.PositionStore
	backfiller      Backfiller
	gapPolicy       GapPolicy
	forceCloseAtEnd bool
	now             func() time.Time

	// 下单串行化，同时保护成交记录
	execMu sync.Mutex
	trades []*executor.OrderResult
}

// NewTradingEngine 创建交易引擎
func NewTradingEngine(registry *strategies.Registry, exec executor.Executor, timeframe timeframes.Timeframe) *TradingEngine {
	engine := &TradingEngine{
		registry:  registry,
		executor:  exec,
		timeframe: timeframe,
		gapPolicy: GapPolicySkip,
		now:       time.Now,
	}

	engine.handlers = NewIntentHandlerRegistry()
	engine.handlers.RegisterHandler(strategy.SideBuy, NewBuyIntentHandler(exec))
	engine.handlers.RegisterHandler(strategy.SideSell, NewSellIntentHandler(exec))

	return engine
}

// SetPositionStore 设置持仓快照存储，每次成交后保存
func (e *TradingEngine) SetPositionStore(store database.PositionStore) {
	e.positionStore = store
}

// SetGapPolicy 设置缺口策略，backfill 需要提供 Backfiller
func (e *TradingEngine) SetGapPolicy(policy GapPolicy, backfiller Backfiller) {
	e.gapPolicy = policy
	e.backfiller = backfiller
}

// SetForceCloseAtEnd 回测结束时是否强制平仓
func (e *TradingEngine) SetForceCloseAtEnd(enabled bool) {
	e.forceCloseAtEnd = enabled
}

// Registry 引擎使用的交易对注册表
func (e *TradingEngine) Registry() *strategies.Registry {
	return e.registry
}

// Trades 成交记录副本
func (e *TradingEngine) Trades() []*executor.OrderResult {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	trades := make([]*executor.OrderResult, len(e.trades))
	copy(trades, e.trades)
	return trades
}

// RunBacktest 运行回测：逐根处理K线，记录权益曲线，最后计算统计
func (e *TradingEngine) RunBacktest(ctx context.Context, feed DataFeed) (*backtest.Statistics, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	if err := feed.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start data feed: %w", err)
	}
	defer feed.Stop()

	instruments := e.registry.Instruments()
	initialCapital := decimal.Zero
	for _, instrument := range instruments {
		s, _ := e.registry.Get(instrument)
		initialCapital = initialCapital.Add(s.Cash())
	}

	logger.Info("开始回测", "instruments", instruments, "timeframe", e.timeframe.String(),
		"initial_capital", initialCapital.StringFixed(2))

	lastBars := make(map[string]*cex.KlineData)
	var curve []backtest.EquityPoint
	count := 0

	for {
		bar, err := feed.GetNext(ctx)
		if err != nil {
			return nil, err
		}
		if bar == nil {
			break
		}

		if _, err := e.processBar(ctx, bar); err != nil {
			// 记录错误但继续执行
			logger.Error("处理K线失败", "instrument", bar.TradingPair.String(), "error", err)
		}

		lastBars[bar.TradingPair.String()] = bar
		cash, equity := e.portfolioValue(lastBars)
		curve = append(curve, backtest.EquityPoint{Timestamp: bar.OpenTime, Equity: equity, Cash: cash})

		count++
		if count%100 == 0 {
			logger.Debug("回测进度", "bars", count, "time", bar.OpenTime.Format("2006-01-02 15:04"))
		}
	}

	if count == 0 {
		return nil, fmt.Errorf("no historical data available")
	}

	if e.forceCloseAtEnd {
		for _, instrument := range instruments {
			bar, ok := lastBars[instrument]
			if !ok {
				continue
			}
			s, _ := e.registry.Get(instrument)
			if s.State() != strategy.StateLong {
				continue
			}
			if _, err := e.forceClose(ctx, s, bar.Close, bar.OpenTime); err != nil {
				logger.Error("回测结束强制平仓失败", "instrument", instrument, "error", err)
			}
		}
	}

	_, finalValue := e.portfolioValue(lastBars)
	logger.Info("回测完成", "bars", count, "trades", len(e.Trades()), "final_value", finalValue.StringFixed(2))

	return backtest.Calculate(initialCapital, finalValue, e.Trades(), curve), nil
}

// portfolioValue 所有交易对的现金与按最新收盘价计算的总权益
func (e *TradingEngine) portfolioValue(lastBars map[string]*cex.KlineData) (decimal.Decimal, decimal.Decimal) {
	cash := decimal.Zero
	equity := decimal.Zero
	for _, instrument := range e.registry.Instruments() {
		s, _ := e.registry.Get(instrument)
		price := decimal.Zero
		if bar, ok := lastBars[instrument]; ok {
			price = bar.Close
		} else if pos := s.Position(); pos != nil {
			price = pos.EntryPrice
		}
		cash = cash.Add(s.Cash())
		equity = equity.Add(s.Equity(price))
	}
	return cash, equity
}

// RunLive 运行实盘交易，直到数据流结束或 ctx 取消
func (e *TradingEngine) RunLive(ctx context.Context, feed DataFeed) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	logger.Info("开始实盘交易", "instruments", e.registry.Instruments(),
		"timeframe", e.timeframe.String(), "gap_policy", e.gapPolicy)

	if err := feed.Start(ctx); err != nil {
		return fmt.Errorf("failed to start data feed: %w", err)
	}

	// 每个交易对一个 goroutine，保证同一交易对内顺序处理
	channels := make(map[string]chan *cex.KlineData)
	var wg sync.WaitGroup
	for _, instrument := range e.registry.Instruments() {
		s, _ := e.registry.Get(instrument)
		ch := make(chan *cex.KlineData, 64)
		channels[instrument] = ch

		wg.Add(1)
		go func(s *strategies.BounceStrategy, ch <-chan *cex.KlineData) {
			defer wg.Done()
			for bar := range ch {
				e.handleLiveBar(ctx, s, bar)
			}
		}(s, ch)
	}

	shutdown := func() {
		for _, ch := range channels {
			close(ch)
		}
		wg.Wait()
		feed.Stop()
	}

	for {
		bar, err := feed.GetNext(ctx)
		if err != nil {
			shutdown()
			if ctx.Err() != nil {
				logger.Info("收到停止信号，退出实盘交易")
				return ctx.Err()
			}
			return fmt.Errorf("data feed failed: %w", err)
		}
		if bar == nil {
			logger.Info("数据流结束，退出实盘交易")
			shutdown()
			return nil
		}

		ch, ok := channels[bar.TradingPair.String()]
		if !ok {
			logger.Error("收到未知交易对的K线", "instrument", bar.TradingPair.String())
			continue
		}
		select {
		case ch <- bar:
		case <-ctx.Done():
		}
	}
}

// handleLiveBar 处理一根实时K线，按缺口策略先补齐
func (e *TradingEngine) handleLiveBar(ctx context.Context, s *strategies.BounceStrategy, bar *cex.KlineData) {
	ctx, logger := log.WithCtx(ctx)

	if last := s.LastBar(); last != nil {
		interval := e.timeframe.MustDuration()
		if bar.OpenTime.Sub(last.OpenTime) > interval {
			missing := len(e.timeframe.MissingOpenTimes(last.OpenTime, bar.OpenTime))
			if e.gapPolicy == GapPolicyBackfill && e.backfiller != nil {
				e.backfill(ctx, s, last.OpenTime, bar)
			} else {
				logger.Info("检测到K线缺口，直接处理新K线", "instrument", s.Instrument(),
					"missing", missing, "last", last.OpenTime.Format(time.RFC3339))
			}
		}
	}

	if _, err := e.processBar(ctx, bar); err != nil {
		logger.Error("处理K线失败", "instrument", s.Instrument(), "error", err)
	}
}

// backfill 补齐缺口并按顺序交给引擎
func (e *TradingEngine) backfill(ctx context.Context, s *strategies.BounceStrategy, after time.Time, bar *cex.KlineData) {
	ctx, logger := log.WithCtx(ctx)

	klines, err := e.backfiller.Backfill(ctx, bar.TradingPair, e.timeframe, after, bar.OpenTime)
	if err != nil {
		logger.Error("补齐K线失败，直接处理新K线", "instrument", s.Instrument(), "error", err)
		return
	}

	logger.Info("补齐K线缺口", "instrument", s.Instrument(), "count", len(klines))
	for _, kline := range klines {
		kline.TradingPair = bar.TradingPair
		if _, err := e.processBar(ctx, kline); err != nil {
			logger.Error("处理补齐K线失败", "instrument", s.Instrument(), "error", err)
		}
	}
}

// processBar 把一根K线交给对应引擎，并执行产生的交易意图
//
// 坏数据只记调试日志并跳过，返回 nil。
func (e *TradingEngine) processBar(ctx context.Context, bar *cex.KlineData) (*executor.OrderResult, error) {
	ctx, logger := log.WithCtx(ctx)

	instrument := bar.TradingPair.String()
	s, err := e.registry.Get(instrument)
	if err != nil {
		return nil, err
	}

	intent, err := s.Evaluate(bar)
	if err != nil {
		if strategy.IsDataError(err) {
			logger.Debug("跳过K线", "instrument", instrument, "time", bar.OpenTime.Format(time.RFC3339), "reason", err)
			return nil, nil
		}
		return nil, err
	}
	if intent == nil {
		return nil, nil
	}

	logger.Info("产生交易意图",
		"instrument", instrument,
		"side", intent.Side,
		"reason", intent.Reason,
		"size", intent.Size.String(),
		"price", intent.Price.String())

	return e.execute(ctx, s, intent)
}

// execute 执行交易意图；失败时回滚引擎状态，成交价不同则修正记账
func (e *TradingEngine) execute(ctx context.Context, s *strategies.BounceStrategy, intent *strategy.TradeIntent) (*executor.OrderResult, error) {
	ctx, logger := log.WithCtx(ctx)

	e.execMu.Lock()
	defer e.execMu.Unlock()

	result, err := e.handlers.HandleIntent(ctx, intent)
	if err != nil {
		if rollbackErr := s.RejectFill(intent); rollbackErr != nil {
			logger.Error("回滚交易意图失败", "instrument", intent.Instrument, "error", rollbackErr)
		}
		return nil, err
	}

	if result.Price.IsPositive() && !result.Price.Equal(intent.Price) {
		if err := s.ConfirmFill(intent, result.Price); err != nil {
			logger.Error("修正成交价失败", "instrument", intent.Instrument, "error", err)
		}
	}

	e.trades = append(e.trades, result)
	e.persistPosition(ctx, s)
	return result, nil
}

// persistPosition 保存持仓快照，失败只记日志
func (e *TradingEngine) persistPosition(ctx context.Context, s *strategies.BounceStrategy) {
	if e.positionStore == nil {
		return
	}
	ctx, logger := log.WithCtx(ctx)

	var err error
	if pos := s.Position(); pos != nil {
		err = e.positionStore.SavePosition(ctx, s.Instrument(), pos)
	} else {
		err = e.positionStore.DeletePosition(ctx, s.Instrument())
	}
	if err != nil {
		logger.Error("保存持仓快照失败", "instrument", s.Instrument(), "error", err)
	}
}

func (e *TradingEngine) forceClose(ctx context.Context, s *strategies.BounceStrategy, price decimal.Decimal, at time.Time) (*executor.OrderResult, error) {
	intent, err := s.ForceClose(price, at)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, s, intent)
}

// CloseAll 强制平掉所有持仓，价格取各交易对最新收盘价
func (e *TradingEngine) CloseAll(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	var errs []error
	for _, instrument := range e.registry.Instruments() {
		s, _ := e.registry.Get(instrument)
		pos := s.Position()
		if pos == nil {
			continue
		}

		price := pos.EntryPrice
		if bar := s.LastBar(); bar != nil {
			price = bar.Close
		}

		result, err := e.forceClose(ctx, s, price, e.now().UTC())
		if err != nil {
			logger.Error("强制平仓失败", "instrument", instrument, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", instrument, err))
			continue
		}
		logger.Info("强制平仓", "instrument", instrument, "quantity", result.Quantity.String(), "price", result.Price.String())
	}
	return errors.Join(errs...)
}

// Close 关闭交易引擎
func (e *TradingEngine) Close() error {
	return e.executor.Close()
}
