package backtest

import (
	"fmt"
	"sort"
	"time"

	"bouncebot/src/executor"
	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
)

// Fill 一笔成交
type Fill struct {
	Symbol    string
	Side      strategy.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// FillsFromResults 把执行结果转换为成交列表
func FillsFromResults(results []*executor.OrderResult) []Fill {
	fills := make([]Fill, 0, len(results))
	for _, result := range results {
		fills = append(fills, Fill{
			Symbol:    result.Instrument,
			Side:      result.Side,
			Quantity:  result.Quantity,
			Price:     result.Price,
			Timestamp: result.Timestamp,
		})
	}
	return fills
}

// SymbolOverview 单个交易对当日汇总
type SymbolOverview struct {
	Symbol       string
	BuyCount     int
	SellCount    int
	BoughtQty    decimal.Decimal
	SoldQty      decimal.Decimal
	AvgBuyPrice  decimal.Decimal
	AvgSellPrice decimal.Decimal
	GrossBuy     decimal.Decimal
	GrossSell    decimal.Decimal

	// FIFO 配对后的已实现盈亏，只统计能找到当日买入的卖出数量
	RealizedPnL   decimal.Decimal
	MatchedCost   decimal.Decimal
	UnmatchedSold decimal.Decimal // 卖出的是之前的持仓
	OpenQty       decimal.Decimal // 当日买入尚未卖出
	WinningSells  int
	RealizedPct   decimal.Decimal
	WinRate       decimal.Decimal
}

// TradesCount 买卖总次数
func (o *SymbolOverview) TradesCount() int {
	return o.BuyCount + o.SellCount
}

type lot struct {
	qty   decimal.Decimal
	price decimal.Decimal
}

// DailyOverview 按交易对汇总成交，卖出按 FIFO 与买入配对计算已实现盈亏
func DailyOverview(fills []Fill) []*SymbolOverview {
	sorted := make([]Fill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	overviews := make(map[string]*SymbolOverview)
	lots := make(map[string][]lot)

	for _, fill := range sorted {
		o, ok := overviews[fill.Symbol]
		if !ok {
			o = &SymbolOverview{Symbol: fill.Symbol}
			overviews[fill.Symbol] = o
		}
		notional := fill.Quantity.Mul(fill.Price)

		switch fill.Side {
		case strategy.SideBuy:
			o.BuyCount++
			o.BoughtQty = o.BoughtQty.Add(fill.Quantity)
			o.GrossBuy = o.GrossBuy.Add(notional)
			lots[fill.Symbol] = append(lots[fill.Symbol], lot{qty: fill.Quantity, price: fill.Price})

		case strategy.SideSell:
			o.SellCount++
			o.SoldQty = o.SoldQty.Add(fill.Quantity)
			o.GrossSell = o.GrossSell.Add(notional)

			remaining := fill.Quantity
			pnl := decimal.Zero
			queue := lots[fill.Symbol]
			for remaining.IsPositive() && len(queue) > 0 {
				matched := decimal.Min(remaining, queue[0].qty)
				pnl = pnl.Add(fill.Price.Sub(queue[0].price).Mul(matched))
				o.MatchedCost = o.MatchedCost.Add(queue[0].price.Mul(matched))
				remaining = remaining.Sub(matched)
				queue[0].qty = queue[0].qty.Sub(matched)
				if !queue[0].qty.IsPositive() {
					queue = queue[1:]
				}
			}
			lots[fill.Symbol] = queue

			o.UnmatchedSold = o.UnmatchedSold.Add(remaining)
			o.RealizedPnL = o.RealizedPnL.Add(pnl)
			if pnl.IsPositive() {
				o.WinningSells++
			}
		}
	}

	result := make([]*SymbolOverview, 0, len(overviews))
	for symbol, o := range overviews {
		for _, l := range lots[symbol] {
			o.OpenQty = o.OpenQty.Add(l.qty)
		}
		if o.BoughtQty.IsPositive() {
			o.AvgBuyPrice = o.GrossBuy.Div(o.BoughtQty)
		}
		if o.SoldQty.IsPositive() {
			o.AvgSellPrice = o.GrossSell.Div(o.SoldQty)
		}
		if o.MatchedCost.IsPositive() {
			o.RealizedPct = o.RealizedPnL.Div(o.MatchedCost).Mul(hundred)
		}
		if o.SellCount > 0 {
			o.WinRate = decimal.NewFromInt(int64(o.WinningSells)).Div(decimal.NewFromInt(int64(o.SellCount))).Mul(hundred)
		}
		result = append(result, o)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// DayRange 返回某天在 loc 时区的 [00:00, 次日00:00)，date 格式 2006-01-02
func DayRange(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", date, err)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}
