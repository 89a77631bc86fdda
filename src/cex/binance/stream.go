package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bouncebot/src/cex"

	"github.com/adshao/go-binance/v2"
)

// SubscribeKlines 通过 websocket 订阅K线，只把已收盘(IsFinal)的K线交给 handler
func (c *Client) SubscribeKlines(ctx context.Context, pair cex.TradingPair, interval string, handler cex.KlineHandler, errHandler func(error)) (<-chan struct{}, func(), error) {
	wsHandler := func(event *binance.WsKlineEvent) {
		if kline := convertWsKline(event, pair); kline != nil {
			handler(kline)
		}
	}
	wsErrHandler := func(err error) {
		if errHandler != nil {
			errHandler(fmt.Errorf("binance kline stream %s: %w", pair.Symbol(), err))
		}
	}

	doneC, stopC, err := binance.WsKlineServe(pair.Symbol(), interval, wsHandler, wsErrHandler)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe klines for %s: %w", pair.String(), err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() { close(stopC) })
	}

	// ctx 取消时自动断开
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-doneC:
		}
	}()

	return doneC, stop, nil
}

// convertWsKline 未收盘的K线返回 nil
func convertWsKline(event *binance.WsKlineEvent, pair cex.TradingPair) *cex.KlineData {
	if event == nil || !event.Kline.IsFinal {
		return nil
	}

	k := event.Kline
	return &cex.KlineData{
		TradingPair:         pair,
		OpenTime:            time.UnixMilli(k.StartTime).UTC(),
		Open:                parseDecimal(k.Open),
		High:                parseDecimal(k.High),
		Low:                 parseDecimal(k.Low),
		Close:               parseDecimal(k.Close),
		Volume:              parseDecimal(k.Volume),
		CloseTime:           time.UnixMilli(k.EndTime).UTC(),
		QuoteVolume:         parseDecimal(k.QuoteVolume),
		TakerBuyVolume:      parseDecimal(k.ActiveBuyVolume),
		TakerBuyQuoteVolume: parseDecimal(k.ActiveBuyQuoteVolume),
	}
}
