package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bouncebot/src/config"
	"bouncebot/src/strategy"
	"bouncebot/src/trading"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterBounceCmd 注册均值回归反弹交易命令
func RegisterBounceCmd() {
	var symbols string
	var timeframe string
	var live bool
	var dry bool

	var startDate string
	var endDate string
	var exportDir string
	var paramsStr string
	var gapPolicy string

	cmd.RegisterCmd("bounce", "run mean-reversion bounce trading (default: backtest)", func(args *arg.Arg) {
		args.String(&symbols, "s", "trading pairs, comma separated (e.g., SOL,ETHUSDT,BTC/USDT; default: all configured symbols)")
		args.String(&timeframe, "t", "timeframe (e.g., 1h, 4h, 1d; default from config)")
		args.Bool(&live, "live", "run in live trading mode (real orders)")
		args.Bool(&dry, "dry", "run in dry run mode (live data, simulated orders)")

		args.String(&startDate, "start", "backtest start date (YYYY-MM-DD, default from config)")
		args.String(&endDate, "end", "backtest end date (YYYY-MM-DD, inclusive, default from config)")
		args.String(&exportDir, "export", "directory for trades/equity CSV export")
		args.String(&paramsStr, "params", "strategy parameter overrides (e.g., 'drop_threshold_pct=5,take_profit_pct=3')")
		args.String(&gapPolicy, "gap", "live gap policy: backfill or skip")
		args.Parse()

		if live && dry {
			fmt.Println("❌ Error: -live and -dry are mutually exclusive")
			os.Exit(1)
		}

		cfg := config.AppConfig
		switch {
		case live:
			cfg.Trading.Mode = "live"
		case dry:
			cfg.Trading.Mode = "dry"
		}
		if startDate != "" {
			cfg.Backtest.StartDate = startDate
		}
		if endDate != "" {
			cfg.Backtest.EndDate = endDate
		}
		if exportDir != "" {
			cfg.Backtest.ExportDir = exportDir
		}
		if timeframe != "" {
			cfg.Trading.Timeframe = timeframe
		}
		if gapPolicy != "" {
			cfg.Live.GapPolicy = gapPolicy
		}
		exitOnError("Invalid configuration", cfg.Validate())

		overrides, err := strategy.ParseParamOverrides(paramsStr)
		exitOnError("Failed to parse strategy parameters", err)

		pairs, err := resolvePairs(symbols)
		exitOnError("Invalid trading pairs", err)
		names := make([]string, len(pairs))
		for i, pair := range pairs {
			names[i] = pair.String()
		}

		tradingSystem, err := trading.NewTradingSystemWithConfig(cfg)
		exitOnError("Failed to create trading system", err)
		exitOnError("Failed to set trading pairs", tradingSystem.SetTradingPairs(strings.Join(names, ","), ""))
		exitOnError("Invalid strategy parameters", tradingSystem.SetParamOverrides(overrides))

		if cfg.IsBacktestMode() {
			err = runBounceBacktest(tradingSystem)
		} else {
			err = runBounceLive(tradingSystem, cfg.IsDryRunMode())
		}
		exitOnError("Trading system error", err)
	})
}

func printHeader(ts *trading.TradingSystem, title string) {
	cfg := ts.GetConfig()
	params := ts.Params()

	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("📊 Trading Pairs: %s\n", strings.Join(ts.Instruments(), ", "))
	fmt.Printf("⏰ Timeframe: %s\n", cfg.Trading.Timeframe)
	fmt.Printf("🏢 Exchange: %s\n", cfg.Trading.CEX)
	fmt.Printf("📉 Drop Threshold: %.2f%% below %d-bar high\n", params.DropThresholdPct, params.LookbackBars)
	fmt.Printf("🎯 TP / SL / Trailing: %.2f%% / %.2f%% / %.2f%%\n", params.TakeProfitPct, params.StopLossPct, params.TrailingStopPct)
	fmt.Printf("💵 Position Size: $%.2f  Cash per pair: $%.2f\n", params.PositionSizeDollars, params.InitialCash)
}

// runBounceBacktest 运行回测
func runBounceBacktest(ts *trading.TradingSystem) error {
	cfg := ts.GetConfig()
	printHeader(ts, "🤖 Bounce Backtest System")
	fmt.Printf("📅 Period: %s ~ %s\n", cfg.Backtest.StartDate, cfg.Backtest.EndDate)

	if err := ts.Initialize(false); err != nil {
		return fmt.Errorf("failed to initialize trading system: %w", err)
	}
	defer ts.Close()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		fmt.Println("\n🔄 Shutting down...")
		ts.Stop()
		os.Exit(0)
	}()

	result, err := ts.RunBacktest()
	if err != nil {
		return err
	}
	ts.PrintBacktestResults(result)
	return nil
}

// runBounceLive 运行模拟盘或实盘，Ctrl+C 停止
func runBounceLive(ts *trading.TradingSystem, dryRun bool) error {
	if dryRun {
		printHeader(ts, "🤖 Bounce Dry Run System")
		fmt.Println("💡 Using real-time data with simulated orders")
	} else {
		printHeader(ts, "🤖 Bounce Live Trading System")
		fmt.Println("⚠️  WARNING: This will use real money!")
	}

	if err := ts.Initialize(true); err != nil {
		return fmt.Errorf("failed to initialize trading system: %w", err)
	}
	defer ts.Close()

	// 收到信号后只取消上下文，由 RunLive 完成平仓与持久化
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		fmt.Println("\n🔄 Shutting down...")
		ts.Stop()
	}()

	fmt.Println("Press Ctrl+C to stop...")
	return ts.RunLive(dryRun)
}

// RegisterAllTradingCommands 注册所有交易相关命令
func RegisterAllTradingCommands() {
	RegisterBounceCmd()
	RegisterPingCmd()
	RegisterKlineCmd()
	RegisterOverviewCmd()
}
