package trading

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bouncebot/src/backtest"
	"bouncebot/src/cex"
	"bouncebot/src/config"
	"bouncebot/src/database"
	"bouncebot/src/engine"
	"bouncebot/src/executor"
	"bouncebot/src/strategies"
	"bouncebot/src/strategy"
	"bouncebot/src/timeframes"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// TradingSystem 交易系统：把配置、交易所、数据库和交易引擎组装起来
type TradingSystem struct {
	config    *config.Config
	params    *strategy.BounceParams
	pairs     []cex.TradingPair
	timeframe timeframes.Timeframe

	cexClient     cex.CEXClient
	database      *database.PostgresDB
	klineManager  *database.KlineManager
	tradingEngine *engine.TradingEngine

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTradingSystem 按全局配置创建交易系统
func NewTradingSystem() (*TradingSystem, error) {
	return NewTradingSystemWithConfig(config.AppConfig)
}

// NewTradingSystemWithConfig 按给定配置创建交易系统
func NewTradingSystemWithConfig(cfg *config.Config) (*TradingSystem, error) {
	params, err := cfg.BounceParams()
	if err != nil {
		return nil, err
	}
	tf, err := cfg.GetTimeframe()
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TradingSystem{
		config:    cfg,
		params:    params,
		timeframe: tf,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SetTradingPairs 设置交易对（逗号分隔）和时间周期，timeframe 为空时沿用配置
func (ts *TradingSystem) SetTradingPairs(list, timeframe string) error {
	if timeframe != "" {
		tf, err := timeframes.ParseTimeframe(timeframe)
		if err != nil {
			return fmt.Errorf("invalid timeframe: %s", timeframe)
		}
		ts.timeframe = tf
	}

	pairs, err := ts.config.ResolveTradingPairs(list)
	if err != nil {
		return err
	}
	ts.pairs = pairs
	return nil
}

// SetParamOverrides 覆盖策略参数，覆盖后重新校验
func (ts *TradingSystem) SetParamOverrides(overrides map[string]float64) error {
	params := *ts.params
	if err := params.ApplyOverrides(overrides); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	ts.params = &params
	return nil
}

// SetCEXClient 使用指定的交易所客户端，Initialize 不再按配置创建
func (ts *TradingSystem) SetCEXClient(client cex.CEXClient) {
	ts.cexClient = client
}

// Instruments 当前交易对列表
func (ts *TradingSystem) Instruments() []string {
	instruments := make([]string, len(ts.pairs))
	for i, pair := range ts.pairs {
		instruments[i] = pair.String()
	}
	return instruments
}

// Params 当前策略参数
func (ts *TradingSystem) Params() strategy.BounceParams {
	return *ts.params
}

// Initialize 初始化交易所客户端、数据库与K线管理器
//
// requireConnection 为 true 时先 ping 交易所，用于模拟盘与实盘。
func (ts *TradingSystem) Initialize(requireConnection bool) error {
	if ts.cexClient == nil {
		client, err := cex.CreateCEXClient(ts.config.Trading.CEX)
		if err != nil {
			return err
		}
		ts.cexClient = client
	}

	dbConfig := database.GlobalDatabaseConfig
	if dbConfig.Enabled {
		fmt.Printf("🗄️ Connecting to database %s...", dbConfig.DBName)
		db, err := database.NewPostgresDB(dbConfig)
		if err != nil {
			fmt.Printf(" failed: %v\n", err)
			fmt.Println("⚠️ Database unavailable, using network only")
		} else if err := db.EnsureSchema(ts.ctx); err != nil {
			fmt.Printf(" schema failed: %v\n", err)
			fmt.Println("⚠️ Database unavailable, using network only")
			db.Close()
		} else {
			ts.database = db
			fmt.Println(" connected!")
		}
	}
	ts.klineManager = database.NewKlineManager(ts.database, ts.cexClient, ts.config.BackfillInterval())

	if requireConnection {
		if err := ts.cexClient.Ping(ts.ctx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", ts.cexClient.GetName(), err)
		}
		fmt.Printf("✓ Connected to %s API\n", ts.cexClient.GetName())
	}

	return nil
}

// recorder 成交记录器，没有数据库时为 nil
func (ts *TradingSystem) recorder() executor.TradeRecorder {
	if ts.database == nil {
		return nil
	}
	return ts.database
}

// positionStore 按配置创建持仓快照存储，none 时为 nil
func (ts *TradingSystem) positionStore() (database.PositionStore, error) {
	switch ts.config.Positions.Type {
	case "", "none":
		return nil, nil
	case "postgres":
		if ts.database == nil {
			return nil, fmt.Errorf("postgres position store requires a database connection")
		}
		return ts.database, nil
	case "yaml":
		return database.NewFilePositionStore(ts.config.Positions.Path), nil
	}
	return nil, fmt.Errorf("invalid position store type: %s", ts.config.Positions.Type)
}

// BacktestResult 回测结果
type BacktestResult struct {
	RunID      string
	StartTime  time.Time
	EndTime    time.Time
	Statistics *backtest.Statistics
	Trades     []*executor.OrderResult
	Snapshots  []strategy.Snapshot
}

// RunBacktest 运行回测
func (ts *TradingSystem) RunBacktest() (*BacktestResult, error) {
	if len(ts.pairs) == 0 {
		return nil, fmt.Errorf("no trading pairs set")
	}
	ctx, logger := log.WithCtx(ts.ctx)
	logger.PushPrefix("TradingSystem")

	fmt.Println("🔄 Starting backtest...")

	registry, err := strategies.NewRegistry(ts.Instruments(), ts.params)
	if err != nil {
		return nil, err
	}

	backtestExecutor := executor.NewBacktestExecutor(executor.ModeBacktest)
	backtestExecutor.SetCommission(ts.config.Backtest.Fee)
	backtestExecutor.SetSlippage(ts.config.Backtest.Slippage)

	runID := uuid.Must(uuid.NewV4()).String()
	exec := executor.NewUnifiedExecutor(backtestExecutor, ts.recorder(), runID)

	ts.tradingEngine = engine.NewTradingEngine(registry, exec, ts.timeframe)
	ts.tradingEngine.SetForceCloseAtEnd(ts.config.Backtest.ForceCloseAtEnd)

	startTime, err := ts.config.GetStartTime()
	if err != nil {
		return nil, fmt.Errorf("invalid start time: %w", err)
	}
	endTime, err := ts.config.GetEndTime()
	if err != nil {
		return nil, fmt.Errorf("invalid end time: %w", err)
	}

	var klines []*cex.KlineData
	for _, pair := range ts.pairs {
		bars, err := ts.klineManager.GetKlinesInRange(ctx, pair, ts.timeframe, startTime, endTime)
		if err != nil {
			return nil, fmt.Errorf("failed to load klines for %s: %w", pair, err)
		}
		for _, bar := range bars {
			bar.TradingPair = pair
		}
		fmt.Printf("✓ Loaded %d %s klines for %s\n", len(bars), ts.timeframe, pair)
		klines = append(klines, bars...)
	}

	stats, err := ts.tradingEngine.RunBacktest(ctx, engine.NewBacktestDataFeed(klines))
	if err != nil {
		return nil, fmt.Errorf("backtest failed: %w", err)
	}
	fmt.Println("✅ Backtest completed")

	result := &BacktestResult{
		RunID:      runID,
		StartTime:  startTime,
		EndTime:    endTime,
		Statistics: stats,
		Trades:     ts.tradingEngine.Trades(),
		Snapshots:  registry.Snapshots(),
	}

	ts.saveRun(ctx, runID, executor.ModeBacktest, startTime, endTime, stats, "completed")

	if dir := ts.config.Backtest.ExportDir; dir != "" {
		if err := ExportBacktest(dir, result); err != nil {
			logger.Error("导出回测结果失败", "dir", dir, "error", err)
		} else {
			fmt.Printf("💾 Exported trades and equity curve to %s\n", dir)
		}
	}

	return result, nil
}

// saveRun 保存运行记录，没有数据库时跳过
func (ts *TradingSystem) saveRun(ctx context.Context, runID string, mode executor.Mode, start, end time.Time, stats *backtest.Statistics, status string) {
	if ts.database == nil {
		return
	}
	ctx, logger := log.WithCtx(ctx)

	run := &database.BacktestRun{
		ID:             runID,
		Mode:           string(mode),
		Instruments:    ts.Instruments(),
		Timeframe:      ts.timeframe.String(),
		StrategyName:   SystemConfigValue.StrategyName,
		StrategyParams: ParamsMap(ts.params),
		StartTime:      start,
		EndTime:        end,
		Status:         status,
	}
	if stats != nil {
		run.InitialCapital = stats.InitialCapital
		run.FinalCapital = stats.FinalValue
		run.TotalReturn = stats.TotalReturnPct
		run.MaxDrawdown = stats.MaxDrawdownPct
		run.SharpeRatio = stats.SharpeRatio
		run.WinRate = stats.WinRate
		run.TotalTrades = stats.TotalTrades
		run.WinningTrades = stats.WinningTrades
		run.LosingTrades = stats.LosingTrades
		run.TotalCommission = stats.TotalCommission
	}
	if status == "completed" {
		completedAt := ts.now().UTC()
		run.CompletedAt = &completedAt
	}

	if err := ts.database.SaveBacktestRun(ctx, run); err != nil {
		logger.Error("保存运行记录失败", "run_id", runID, "error", err)
	}
}

// ExportBacktest 把成交记录和权益曲线写成 CSV
func ExportBacktest(dir string, result *BacktestResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	prefix := result.StartTime.Format("20060102") + "_" + result.EndTime.Format("20060102")
	if err := backtest.WriteTradesCSV(filepath.Join(dir, prefix+"_trades.csv"), result.Trades); err != nil {
		return err
	}
	return backtest.WriteEquityCSV(filepath.Join(dir, prefix+"_equity.csv"), result.Statistics.EquityCurve)
}

// RunLive 运行模拟盘（dryRun）或实盘，直到 Stop 或数据流结束
func (ts *TradingSystem) RunLive(dryRun bool) error {
	if len(ts.pairs) == 0 {
		return fmt.Errorf("no trading pairs set")
	}
	ctx, logger := log.WithCtx(ts.ctx)
	logger.PushPrefix("TradingSystem")

	mode := executor.ModeLive
	if dryRun {
		mode = executor.ModeDryRun
		fmt.Println("🟡 Starting dry-run trading...")
	} else {
		fmt.Println("🔴 Starting live trading...")
	}

	registry, err := strategies.NewRegistry(ts.Instruments(), ts.params)
	if err != nil {
		return err
	}

	var inner executor.Executor
	var paperExecutor *executor.BacktestExecutor
	if dryRun {
		paperExecutor = executor.NewBacktestExecutor(executor.ModeDryRun)
		paperExecutor.SetCommission(ts.config.Backtest.Fee)
		inner = paperExecutor
	} else {
		inner = executor.NewLiveExecutor(ts.cexClient, ts.config.OrderInterval())
	}

	runID := uuid.Must(uuid.NewV4()).String()
	eng := engine.NewTradingEngine(registry, executor.NewUnifiedExecutor(inner, ts.recorder(), runID), ts.timeframe)
	ts.tradingEngine = eng

	store, err := ts.positionStore()
	if err != nil {
		return err
	}
	if store != nil {
		eng.SetPositionStore(store)
	}

	policy, err := engine.ParseGapPolicy(ts.config.Live.GapPolicy)
	if err != nil {
		return err
	}
	eng.SetGapPolicy(policy, ts.klineManager)

	latest, err := ts.seed(ctx, registry)
	if err != nil {
		return err
	}

	fromExchange := !dryRun && ts.config.Live.RestoreFromExchange
	restored, err := ts.restorePositions(ctx, registry, store, fromExchange, latest)
	if err != nil {
		return err
	}
	if paperExecutor != nil {
		for instrument, pos := range restored {
			paperExecutor.SetPosition(instrument, pos.Shares)
		}
	}

	feed := ts.liveFeed(latest)
	startTime := ts.now().UTC()
	ts.saveRun(ctx, runID, mode, startTime, time.Time{}, nil, "running")

	runErr := eng.RunLive(ctx, feed)

	if ts.config.Live.CloseOnExit {
		timeout := time.Duration(SystemConfigValue.ShutdownTimeoutSeconds) * time.Second
		closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := eng.CloseAll(closeCtx); err != nil {
			logger.Error("退出时平仓失败", "error", err)
		}
		cancel()
	}

	ts.PrintSnapshots(registry.Snapshots())
	ts.saveRun(context.Background(), runID, mode, startTime, ts.now().UTC(), nil, "completed")

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// seed 用最近的已收盘K线预热每个交易对，返回各交易对最新一根K线
func (ts *TradingSystem) seed(ctx context.Context, registry *strategies.Registry) (map[cex.TradingPair]*cex.KlineData, error) {
	count := ts.config.Live.SeedBars
	if count <= 0 {
		count = ts.params.WindowCapacity()
	}

	now := ts.now()
	latest := make(map[cex.TradingPair]*cex.KlineData)
	for _, pair := range ts.pairs {
		// 多取一根，最新一根可能尚未收盘
		klines, err := ts.klineManager.GetKlines(ctx, pair, ts.timeframe, count+1)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed klines for %s: %w", pair, err)
		}

		closed := make([]*cex.KlineData, 0, len(klines))
		for _, kline := range klines {
			if kline.CloseTime.Before(now) {
				kline.TradingPair = pair
				closed = append(closed, kline)
			}
		}

		if err := registry.Seed(pair.String(), closed); err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", pair, err)
		}
		if len(closed) > 0 {
			latest[pair] = closed[len(closed)-1]
		}

		s, _ := registry.Get(pair.String())
		fmt.Printf("✓ Seeded %s with %d bars (warmup remaining: %d)\n", pair, len(closed), s.WarmupRemaining())
	}
	return latest, nil
}

// restorePositions 从持仓快照和（实盘时）账户余额恢复持仓
//
// 实盘以账户余额为准：快照中有而账户中没有的持仓被丢弃，数量不一致时按余额修正。
func (ts *TradingSystem) restorePositions(ctx context.Context, registry *strategies.Registry, store database.PositionStore,
	fromExchange bool, latest map[cex.TradingPair]*cex.KlineData) (map[string]strategy.Position, error) {
	ctx, logger := log.WithCtx(ctx)

	restored := make(map[string]strategy.Position)
	if store != nil {
		positions, err := store.LoadPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load positions: %w", err)
		}
		for instrument, pos := range positions {
			if _, err := registry.Get(instrument); err != nil {
				logger.Info("忽略不在本次交易列表中的持仓快照", "instrument", instrument)
				continue
			}
			restored[instrument] = *pos
		}
	}

	if fromExchange {
		held, err := ts.positionsFromAccount(ctx, latest)
		if err != nil {
			return nil, err
		}
		for instrument, stored := range restored {
			pos, ok := held[instrument]
			if !ok {
				logger.Info("账户中没有对应余额，丢弃持仓快照", "instrument", instrument)
				delete(restored, instrument)
				if err := store.DeletePosition(ctx, instrument); err != nil {
					logger.Error("删除持仓快照失败", "instrument", instrument, "error", err)
				}
				continue
			}
			if !stored.Shares.Equal(pos.Shares) {
				logger.Info("持仓数量与账户余额不一致，以账户为准", "instrument", instrument,
					"stored", stored.Shares.String(), "account", pos.Shares.String())
				stored.Shares = pos.Shares
				restored[instrument] = stored
			}
		}
		for instrument, pos := range held {
			if _, ok := restored[instrument]; !ok {
				restored[instrument] = pos
			}
		}
	}

	for instrument, pos := range restored {
		if err := registry.RestorePosition(instrument, pos); err != nil {
			return nil, fmt.Errorf("failed to restore position for %s: %w", instrument, err)
		}
		fmt.Printf("📦 Restored %s position: %s @ %s\n", instrument, pos.Shares.String(), pos.EntryPrice.StringFixed(4))
	}
	return restored, nil
}

// positionsFromAccount 按账户中基础资产余额构造持仓，开仓价取最新收盘价
func (ts *TradingSystem) positionsFromAccount(ctx context.Context, latest map[cex.TradingPair]*cex.KlineData) (map[string]strategy.Position, error) {
	balances, err := ts.cexClient.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balances: %w", err)
	}

	byAsset := make(map[string]decimal.Decimal, len(balances))
	for _, balance := range balances {
		byAsset[strings.ToUpper(balance.Asset)] = balance.Total()
	}

	minNotional := decimal.NewFromFloat(SystemConfigValue.MinRestoreNotional)
	now := ts.now().UTC()
	positions := make(map[string]strategy.Position)
	for _, pair := range ts.pairs {
		shares := byAsset[pair.Base]
		bar, ok := latest[pair]
		if !shares.IsPositive() || !ok {
			continue
		}
		if shares.Mul(bar.Close).LessThan(minNotional) {
			continue
		}
		positions[pair.String()] = strategy.Position{
			EntryTime:      now,
			EntryPrice:     bar.Close,
			Shares:         shares,
			HighWaterPrice: bar.Close,
		}
	}
	return positions, nil
}

// liveFeed 按配置选择推送或轮询数据源
func (ts *TradingSystem) liveFeed(latest map[cex.TradingPair]*cex.KlineData) engine.DataFeed {
	if streamer, ok := ts.cexClient.(cex.KlineStreamer); ok && ts.config.Live.DataSource != "poll" {
		fmt.Println("📡 Using websocket kline stream")
		return engine.NewStreamDataFeed(streamer, ts.pairs, ts.timeframe)
	}

	fmt.Println("⏱️ Using REST polling")
	feed := engine.NewPollingDataFeed(ts.cexClient, ts.pairs, ts.timeframe, ts.config.PollInterval())
	for pair, bar := range latest {
		feed.SetLastOpenTime(pair, bar.OpenTime)
	}
	return feed
}

// Stop 停止交易系统
func (ts *TradingSystem) Stop() {
	ts.cancel()
}

// Close 释放资源
func (ts *TradingSystem) Close() {
	if ts.tradingEngine != nil {
		ts.tradingEngine.Close()
	}
	if ts.database != nil {
		ts.database.Close()
	}
	fmt.Println("Trading system stopped")
}

// GetConfig 获取配置
func (ts *TradingSystem) GetConfig() *config.Config {
	return ts.config
}

// ParamsMap 策略参数，用于运行记录
func ParamsMap(p *strategy.BounceParams) map[string]interface{} {
	return map[string]interface{}{
		"drop_threshold_pct":    p.DropThresholdPct,
		"take_profit_pct":       p.TakeProfitPct,
		"stop_loss_pct":         p.StopLossPct,
		"trailing_stop_pct":     p.TrailingStopPct,
		"hold_hours_max":        p.HoldHoursMax,
		"lookback_bars":         p.LookbackBars,
		"sma_period":            p.SMAPeriod,
		"position_size_dollars": p.PositionSizeDollars,
		"cooldown_minutes":      p.CooldownDuration.Minutes(),
		"max_trades_per_period": p.MaxTradesPerPeriod,
		"trade_period_hours":    p.TradePeriod.Hours(),
		"trend_fast_period":     p.TrendFastPeriod,
		"trend_slow_period":     p.TrendSlowPeriod,
		"require_bounce":        p.RequireBounce,
		"initial_cash":          p.InitialCash,
	}
}

// PrintBacktestResults 打印回测结果
func (ts *TradingSystem) PrintBacktestResults(result *BacktestResult) {
	stats := result.Statistics

	fmt.Println("\n============================================================")
	fmt.Println("📊 BACKTEST RESULTS")
	fmt.Println("============================================================")
	fmt.Printf("Strategy: Bounce (drop %.2f%%, TP %.2f%%, SL %.2f%%)\n",
		ts.params.DropThresholdPct, ts.params.TakeProfitPct, ts.params.StopLossPct)
	fmt.Printf("Instruments: %s\n", strings.Join(ts.Instruments(), ", "))
	fmt.Printf("Timeframe: %s\n", ts.timeframe)
	fmt.Printf("Period: %s ~ %s\n", result.StartTime.Format("2006-01-02"), result.EndTime.Format("2006-01-02"))
	fmt.Printf("Initial Capital: $%s\n", stats.InitialCapital.StringFixed(2))

	fmt.Println("\n📈 PERFORMANCE METRICS")
	fmt.Println("------------------------------")
	fmt.Printf("Final Portfolio: $%s\n", stats.FinalValue.StringFixed(2))
	fmt.Printf("Total Return: %s%%\n", stats.TotalReturnPct.StringFixed(2))
	fmt.Printf("Max Drawdown: %s%%\n", stats.MaxDrawdownPct.StringFixed(2))
	fmt.Printf("Sharpe (per trade): %s\n", stats.SharpeRatio.StringFixed(3))

	fmt.Println("\n📊 TRADING STATISTICS")
	fmt.Println("------------------------------")
	fmt.Printf("Total Trades: %d\n", stats.TotalTrades)
	fmt.Printf("Winning Trades: %d\n", stats.WinningTrades)
	fmt.Printf("Losing Trades: %d\n", stats.LosingTrades)
	fmt.Printf("Win Rate: %s%%\n", stats.WinRate.StringFixed(2))
	fmt.Printf("Avg Trade Return: %s%%\n", stats.AvgReturnPct.StringFixed(2))
	fmt.Printf("Total P&L: $%s\n", stats.TotalPnL.StringFixed(2))
	fmt.Printf("Total Commission: $%s\n", stats.TotalCommission.StringFixed(2))

	if len(stats.ExitReasons) > 0 {
		fmt.Println("\n🚪 EXIT REASONS")
		fmt.Println("------------------------------")
		for _, reason := range []strategy.Reason{
			strategy.ReasonTakeProfit, strategy.ReasonStopLoss, strategy.ReasonTrailingStop,
			strategy.ReasonTimeExit, strategy.ReasonForcedClose,
		} {
			if n := stats.ExitReasons[reason]; n > 0 {
				fmt.Printf("%-14s %d\n", reason, n)
			}
		}
	}

	if len(result.Trades) > 0 {
		fmt.Println("\n💹 PER INSTRUMENT")
		fmt.Println("------------------------------")
		for _, o := range backtest.DailyOverview(backtest.FillsFromResults(result.Trades)) {
			fmt.Printf("%-11s trades=%d realized=$%s (%s%%) win=%s%%\n",
				o.Symbol, o.TradesCount(), o.RealizedPnL.StringFixed(2), o.RealizedPct.StringFixed(2), o.WinRate.StringFixed(1))
		}
	}

	if len(result.Trades) > 0 {
		shown := SystemConfigValue.RecentTrades
		if shown <= 0 || shown > len(result.Trades) {
			shown = len(result.Trades)
		}
		fmt.Printf("\n📋 RECENT TRADES (Last %d)\n", shown)
		fmt.Println("--------------------------------------------------------------------------------")
		fmt.Println("Time         Instrument  Side Quantity     Price        Return     Reason")
		fmt.Println("--------------------------------------------------------------------------------")

		returns := make(map[string]decimal.Decimal)
		for _, rt := range stats.RoundTrips {
			returns[rt.Instrument+rt.ExitTime.String()] = rt.ReturnPct()
		}

		for _, trade := range result.Trades[len(result.Trades)-shown:] {
			returnStr := "-"
			if r, ok := returns[trade.Instrument+trade.Timestamp.String()]; ok && trade.Side == strategy.SideSell {
				returnStr = r.StringFixed(2) + "%"
			}
			fmt.Printf("%s %-11s %4s %12s %12s %10s %s\n",
				trade.Timestamp.UTC().Format("01-02 15:04"),
				trade.Instrument,
				trade.Side,
				trade.Quantity.String(),
				trade.Price.StringFixed(4),
				returnStr,
				trade.Reason)
		}
	}

	ts.PrintSnapshots(result.Snapshots)
	fmt.Println("\n============================================================")
}

// PrintSnapshots 打印每个交易对的引擎状态
func (ts *TradingSystem) PrintSnapshots(snapshots []strategy.Snapshot) {
	if len(snapshots) == 0 {
		return
	}
	fmt.Println("\n🧾 ENGINE STATE")
	fmt.Println("------------------------------")
	for _, snap := range snapshots {
		line := fmt.Sprintf("%-11s %-4s cash=$%s realized=$%s trades=%d",
			snap.Instrument, snap.State, snap.Cash.StringFixed(2), snap.RealizedPnL.StringFixed(2), snap.TradeCount)
		if snap.Position != nil {
			line += fmt.Sprintf(" position=%s@%s", snap.Position.Shares.String(), snap.Position.EntryPrice.StringFixed(4))
		}
		if !snap.CooldownUntil.IsZero() && snap.CooldownUntil.After(ts.now()) {
			line += " cooldown_until=" + snap.CooldownUntil.UTC().Format(time.RFC3339)
		}
		fmt.Println(line)
	}
}
