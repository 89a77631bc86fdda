package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bouncebot/src/backtest"
	"bouncebot/src/database"
	"bouncebot/src/strategy"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterOverviewCmd 注册每日成交汇总命令
func RegisterOverviewCmd() {
	var date string
	var symbol string
	var tz string

	cmd.RegisterCmd("overview", "summarize recorded trades of one day per trading pair", func(args *arg.Arg) {
		args.String(&date, "d", "date (YYYY-MM-DD, default: today)")
		args.String(&symbol, "s", "only this trading pair (e.g., SOL/USDT)")
		args.String(&tz, "tz", "timezone for the day boundary (default: UTC)")
		args.Parse()

		loc := time.UTC
		if tz != "" {
			var err error
			loc, err = time.LoadLocation(tz)
			exitOnError("Invalid timezone", err)
		}
		if date == "" {
			date = time.Now().In(loc).Format("2006-01-02")
		}

		exitOnError("Overview failed", runOverview(date, strings.ToUpper(symbol), loc))
	})
}

func runOverview(date, symbol string, loc *time.Location) error {
	from, to, err := backtest.DayRange(date, loc)
	if err != nil {
		return err
	}

	db, err := database.NewPostgresDB(database.GlobalDatabaseConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	trades, err := db.GetTrades(ctx, symbol, from, to)
	if err != nil {
		return err
	}

	fmt.Printf("📅 Trades overview for %s (%s)\n", date, loc)
	fmt.Println(strings.Repeat("=", 50))
	if len(trades) == 0 {
		fmt.Println("📭 No trades recorded")
		return nil
	}

	for _, o := range backtest.DailyOverview(fillsFromRecords(trades)) {
		fmt.Printf("\n📊 %s  (%d trades: %d buys, %d sells)\n", o.Symbol, o.TradesCount(), o.BuyCount, o.SellCount)
		fmt.Printf("├─ Bought: %s @ avg %s (gross %s)\n", o.BoughtQty.String(), o.AvgBuyPrice.StringFixed(4), o.GrossBuy.StringFixed(2))
		fmt.Printf("├─ Sold:   %s @ avg %s (gross %s)\n", o.SoldQty.String(), o.AvgSellPrice.StringFixed(4), o.GrossSell.StringFixed(2))
		if o.UnmatchedSold.IsPositive() {
			fmt.Printf("├─ Sold from earlier holdings: %s\n", o.UnmatchedSold.String())
		}
		if o.OpenQty.IsPositive() {
			fmt.Printf("├─ Still open: %s\n", o.OpenQty.String())
		}
		fmt.Printf("└─ Realized PnL: %s (%s%%), win rate %s%%\n",
			o.RealizedPnL.StringFixed(2), o.RealizedPct.StringFixed(2), o.WinRate.StringFixed(1))
	}
	return nil
}

// fillsFromRecords 把数据库成交记录转换为成交列表
func fillsFromRecords(records []*database.TradeRecord) []backtest.Fill {
	fills := make([]backtest.Fill, 0, len(records))
	for _, r := range records {
		fills = append(fills, backtest.Fill{
			Symbol:    r.Symbol,
			Side:      strategy.Side(r.Side),
			Quantity:  r.Quantity,
			Price:     r.Price,
			Timestamp: r.Timestamp,
		})
	}
	return fills
}
