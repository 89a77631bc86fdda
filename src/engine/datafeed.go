package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/timeframes"

	"github.com/xpwu/go-log/log"
)

// DataFeed 统一的数据喂入接口，多个交易对的K线可交错到达
type DataFeed interface {
	// Start 开始数据流
	Start(ctx context.Context) error

	// GetNext 获取下一根已收盘K线
	// 返回nil表示数据流结束
	GetNext(ctx context.Context) (*cex.KlineData, error)

	// Stop 停止数据流
	Stop() error
}

// BacktestDataFeed 回测数据喂入器，按开盘时间合并多个交易对
type BacktestDataFeed struct {
	klines     []*cex.KlineData
	currentIdx int
}

// NewBacktestDataFeed 创建回测数据喂入器
func NewBacktestDataFeed(klines []*cex.KlineData) *BacktestDataFeed {
	sorted := make([]*cex.KlineData, len(klines))
	copy(sorted, klines)
	// 同一时刻按交易对排序，保证重放顺序确定
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].OpenTime.Equal(sorted[j].OpenTime) {
			return sorted[i].OpenTime.Before(sorted[j].OpenTime)
		}
		return sorted[i].TradingPair.String() < sorted[j].TradingPair.String()
	})
	return &BacktestDataFeed{klines: sorted}
}

func (f *BacktestDataFeed) Start(ctx context.Context) error {
	f.currentIdx = 0
	return nil
}

func (f *BacktestDataFeed) GetNext(ctx context.Context) (*cex.KlineData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.currentIdx >= len(f.klines) {
		return nil, nil
	}
	kline := f.klines[f.currentIdx]
	f.currentIdx++
	return kline, nil
}

func (f *BacktestDataFeed) Stop() error {
	f.currentIdx = len(f.klines)
	return nil
}

// Len K线总数
func (f *BacktestDataFeed) Len() int {
	return len(f.klines)
}

// PollingDataFeed 轮询交易所REST接口获取已收盘K线
type PollingDataFeed struct {
	cexClient    cex.CEXClient
	pairs        []cex.TradingPair
	timeframe    timeframes.Timeframe
	pollInterval time.Duration
	now          func() time.Time

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	polled   bool
	queue    []*cex.KlineData
	lastOpen map[cex.TradingPair]time.Time
}

// NewPollingDataFeed 创建轮询数据喂入器，pollInterval 为 0 时使用K线周期
func NewPollingDataFeed(cexClient cex.CEXClient, pairs []cex.TradingPair, tf timeframes.Timeframe, pollInterval time.Duration) *PollingDataFeed {
	if pollInterval <= 0 {
		pollInterval = tf.MustDuration()
	}
	return &PollingDataFeed{
		cexClient:    cexClient,
		pairs:        pairs,
		timeframe:    tf,
		pollInterval: pollInterval,
		now:          time.Now,
		stopChan:     make(chan struct{}),
		lastOpen:     make(map[cex.TradingPair]time.Time),
	}
}

// SetLastOpenTime 设置已处理的最新K线，之前的K线不会再推送
func (f *PollingDataFeed) SetLastOpenTime(pair cex.TradingPair, openTime time.Time) {
	f.lastOpen[pair] = openTime
}

func (f *PollingDataFeed) Start(ctx context.Context) error {
	f.ticker = time.NewTicker(f.pollInterval)
	return nil
}

func (f *PollingDataFeed) GetNext(ctx context.Context) (*cex.KlineData, error) {
	for len(f.queue) == 0 {
		if f.polled {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-f.stopChan:
				return nil, nil // 数据流结束
			case <-f.ticker.C:
			}
		}
		f.polled = true
		f.poll(ctx)
	}

	kline := f.queue[0]
	f.queue = f.queue[1:]
	return kline, nil
}

// poll 拉取每个交易对最近两根K线，只保留已收盘且未推送过的
func (f *PollingDataFeed) poll(ctx context.Context) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("PollingDataFeed")

	now := f.now()
	for _, pair := range f.pairs {
		klines, err := f.cexClient.GetKlines(ctx, pair, f.timeframe.GetBinanceInterval(), 2)
		if err != nil {
			logger.Error("获取K线失败", "symbol", pair.String(), "error", err)
			continue
		}
		for _, kline := range klines {
			if !kline.CloseTime.Before(now) {
				continue // 未收盘
			}
			if last, ok := f.lastOpen[pair]; ok && !kline.OpenTime.After(last) {
				continue
			}
			kline.TradingPair = pair
			f.lastOpen[pair] = kline.OpenTime
			f.queue = append(f.queue, kline)
		}
	}
}

func (f *PollingDataFeed) Stop() error {
	f.stopOnce.Do(func() {
		close(f.stopChan)
		if f.ticker != nil {
			f.ticker.Stop()
		}
	})
	return nil
}

// StreamDataFeed 通过交易所 websocket 推送获取已收盘K线，断线自动重连
type StreamDataFeed struct {
	streamer       cex.KlineStreamer
	pairs          []cex.TradingPair
	timeframe      timeframes.Timeframe
	reconnectDelay time.Duration

	klines   chan *cex.KlineData
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStreamDataFeed 创建推送数据喂入器
func NewStreamDataFeed(streamer cex.KlineStreamer, pairs []cex.TradingPair, tf timeframes.Timeframe) *StreamDataFeed {
	return &StreamDataFeed{
		streamer:       streamer,
		pairs:          pairs,
		timeframe:      tf,
		reconnectDelay: 5 * time.Second,
		klines:         make(chan *cex.KlineData, 256),
		stopChan:       make(chan struct{}),
	}
}

func (f *StreamDataFeed) Start(ctx context.Context) error {
	for _, pair := range f.pairs {
		f.wg.Add(1)
		go f.subscribe(ctx, pair)
	}
	return nil
}

// subscribe 维持单个交易对的订阅
func (f *StreamDataFeed) subscribe(ctx context.Context, pair cex.TradingPair) {
	defer f.wg.Done()
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("StreamDataFeed")

	handler := func(kline *cex.KlineData) {
		select {
		case f.klines <- kline:
		case <-f.stopChan:
		case <-ctx.Done():
		}
	}
	errHandler := func(err error) {
		logger.Error("K线推送错误", "symbol", pair.String(), "error", err)
	}

	for {
		done, stop, err := f.streamer.SubscribeKlines(ctx, pair, f.timeframe.GetBinanceInterval(), handler, errHandler)
		if err != nil {
			logger.Error("订阅K线失败", "symbol", pair.String(), "error", err)
		} else {
			logger.Info("已订阅K线", "symbol", pair.String(), "timeframe", f.timeframe)
			select {
			case <-ctx.Done():
				stop()
				return
			case <-f.stopChan:
				stop()
				return
			case <-done:
				logger.Info("K线推送断开，准备重连", "symbol", pair.String())
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *StreamDataFeed) GetNext(ctx context.Context) (*cex.KlineData, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.stopChan:
		return nil, nil
	case kline := <-f.klines:
		return kline, nil
	}
}

func (f *StreamDataFeed) Stop() error {
	f.stopOnce.Do(func() {
		close(f.stopChan)
	})
	f.wg.Wait()
	return nil
}
