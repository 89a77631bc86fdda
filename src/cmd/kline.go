package cmd

import (
	"context"
	"fmt"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/config"
	"bouncebot/src/database"
	"bouncebot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterKlineCmd 注册K线查看与同步命令
func RegisterKlineCmd() {
	var symbols string
	var interval string
	var limit int
	var verbose bool
	var sync bool

	cmd.RegisterCmd("kline", "fetch recent klines from the exchange, optionally syncing them into postgres", func(args *arg.Arg) {
		args.String(&symbols, "s", "trading pairs, comma separated (default: all configured symbols)")
		args.String(&interval, "i", "kline interval (default from config)")
		args.Int(&limit, "l", "number of klines (default: 10, max: 1000)")
		args.Bool(&verbose, "v", "verbose output with detailed information")
		args.Bool(&sync, "sync", "save fetched klines into the database and update sync status")
		args.Parse()

		if interval == "" {
			interval = config.AppConfig.Trading.Timeframe
		}
		if limit <= 0 {
			limit = 10
		}
		if limit > 1000 {
			limit = 1000
		}

		tf, err := timeframes.ParseTimeframe(interval)
		exitOnError("Invalid interval", err)
		pairs, err := resolvePairs(symbols)
		exitOnError("Invalid trading pairs", err)

		err = runKline(pairs, tf, limit, verbose, sync)
		exitOnError("K线数据获取失败", err)
	})
}

// runKline 获取各交易对最近K线，sync 时写入数据库
func runKline(pairs []cex.TradingPair, tf timeframes.Timeframe, limit int, verbose, sync bool) error {
	client, err := cex.CreateCEXClient(config.AppConfig.Trading.CEX)
	if err != nil {
		return err
	}

	var db *database.PostgresDB
	if sync {
		db, err = database.NewPostgresDB(database.GlobalDatabaseConfig)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, pair := range pairs {
		fmt.Printf("📊 %s %s (%s)\n", pair, tf, client.GetName())

		startTime := time.Now()
		klines, err := client.GetKlines(ctx, pair, tf.GetBinanceInterval(), limit)
		if err != nil {
			if db != nil {
				_ = db.UpdateSyncStatus(ctx, pair, tf.String(), time.Time{}, 0, "failed", err.Error())
			}
			return fmt.Errorf("%s: %w", pair, err)
		}
		fmt.Printf("✅ 获取 %d 条K线 (耗时: %v)\n", len(klines), time.Since(startTime))
		if len(klines) == 0 {
			continue
		}

		printKlineSummary(pair, klines, verbose)

		if db != nil {
			if err := db.SaveKlinesBatch(ctx, pair, tf.String(), klines); err != nil {
				_ = db.UpdateSyncStatus(ctx, pair, tf.String(), time.Time{}, 0, "failed", err.Error())
				return fmt.Errorf("failed to save klines for %s: %w", pair, err)
			}
			last := klines[len(klines)-1].OpenTime
			if err := db.UpdateSyncStatus(ctx, pair, tf.String(), last, len(klines), "completed", ""); err != nil {
				return fmt.Errorf("failed to update sync status for %s: %w", pair, err)
			}
			fmt.Printf("💾 已同步到数据库，最新开盘时间 %s\n", formatTime(last))
		}
		fmt.Println()
	}
	return nil
}

func printKlineSummary(pair cex.TradingPair, klines []*cex.KlineData, verbose bool) {
	latest := klines[len(klines)-1]
	fmt.Printf("├─ 最早时间: %s\n", formatTime(klines[0].OpenTime))
	fmt.Printf("├─ 最新时间: %s\n", formatTime(latest.OpenTime))
	fmt.Printf("├─ 最新价格: %s %s\n", latest.Close.String(), pair.Quote)
	fmt.Printf("└─ 最新成交量: %s %s\n", formatVolume(latest.Volume), pair.Base)

	if !verbose {
		return
	}

	fmt.Println("时间         | 开盘价    | 最高价    | 最低价    | 收盘价    | 成交量")
	displayCount := 5
	if len(klines) < displayCount {
		displayCount = len(klines)
	}
	for _, kline := range klines[len(klines)-displayCount:] {
		fmt.Printf("%s | %8s | %8s | %8s | %8s | %8s\n",
			formatTime(kline.OpenTime),
			formatPrice(kline.Open),
			formatPrice(kline.High),
			formatPrice(kline.Low),
			formatPrice(kline.Close),
			formatVolume(kline.Volume),
		)
	}

	if len(klines) >= 2 {
		previous := klines[len(klines)-2]
		change := latest.Close.Sub(previous.Close)
		if previous.Close.IsPositive() {
			pct := change.Div(previous.Close).Mul(decimal.NewFromInt(100))
			fmt.Printf("📈 价格变化: %s (%s%%)\n", change.String(), pct.StringFixed(2))
		}
	}
}

// formatTime 格式化时间
func formatTime(t time.Time) string {
	return t.UTC().Format("01-02 15:04")
}

// formatPrice 格式化价格
func formatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// formatVolume 格式化成交量
func formatVolume(volume decimal.Decimal) string {
	if volume.GreaterThan(decimal.NewFromInt(1000)) {
		return volume.Div(decimal.NewFromInt(1000)).StringFixed(1) + "K"
	}
	return volume.StringFixed(2)
}
