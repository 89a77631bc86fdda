package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/timeframes"

	"github.com/xpwu/go-log/log"
	"golang.org/x/time/rate"
)

// KlineManager K线数据管理器：优先读数据库，缺失部分从交易所补齐并回写
type KlineManager struct {
	db      *PostgresDB // 可为 nil，此时只走网络
	client  cex.CEXClient
	limiter *rate.Limiter
}

// NewKlineManager 创建K线数据管理器，minInterval 为两次网络请求的最小间隔（0 表示不限速）
func NewKlineManager(db *PostgresDB, client cex.CEXClient, minInterval time.Duration) *KlineManager {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &KlineManager{
		db:      db,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// GetKlines 获取最近 limit 根K线（优先数据库，不足时从网络补充）
func (km *KlineManager) GetKlines(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, limit int) ([]*cex.KlineData, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("KlineManager")

	var dbKlines []*cex.KlineData
	if km.db != nil {
		var err error
		dbKlines, err = km.db.GetKlines(ctx, pair, tf.String(), time.Time{}, time.Time{}, limit)
		if err != nil {
			// 数据库失败，直接从网络获取
			logger.Error("从数据库获取K线数据失败", "error", err)
			dbKlines = nil
		}
	}

	// 数据库最新一根必须是上一根已收盘K线，否则视为不完整
	if len(dbKlines) >= limit && km.isFresh(dbKlines[len(dbKlines)-1], tf) {
		logger.Debug("数据库数据充足", "symbol", pair.Symbol(), "count", len(dbKlines))
		return dbKlines, nil
	}

	logger.Info("数据库数据不足，从网络补充", "symbol", pair.Symbol(), "db_count", len(dbKlines), "required", limit)

	networkKlines, err := km.fetchLatest(ctx, pair, tf, limit)
	if err != nil {
		if len(dbKlines) > 0 {
			logger.Error("从网络获取K线数据失败，使用数据库数据", "error", err)
			return dbKlines, nil
		}
		return nil, err
	}

	km.save(ctx, pair, tf, networkKlines)

	merged := MergeKlines(dbKlines, networkKlines)
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged, nil
}

// GetKlinesInRange 获取 [start, end] 范围内的K线数据，缺失部分从网络补齐
func (km *KlineManager) GetKlinesInRange(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, start, end time.Time) ([]*cex.KlineData, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("KlineManager")

	logger.Debug("获取时间范围K线数据",
		"symbol", pair.Symbol(),
		"timeframe", tf,
		"start", start.Format("2006-01-02 15:04"),
		"end", end.Format("2006-01-02 15:04"))

	var dbKlines []*cex.KlineData
	if km.db != nil {
		var err error
		dbKlines, err = km.db.GetKlines(ctx, pair, tf.String(), start, end, 0)
		if err != nil {
			logger.Error("从数据库获取范围K线数据失败", "error", err)
			dbKlines = nil
		}
	}

	expected := len(tf.MissingOpenTimes(start.Add(-time.Millisecond), end.Add(time.Millisecond)))
	if km.db != nil && len(dbKlines) >= expected && expected > 0 {
		logger.Info("数据库数据完整", "count", len(dbKlines))
		return dbKlines, nil
	}

	logger.Info("数据库数据不完整，从网络补齐", "db_count", len(dbKlines), "expected", expected)

	networkKlines, err := km.fetchRange(ctx, pair, tf, start, end)
	if err != nil {
		return nil, err
	}
	km.save(ctx, pair, tf, networkKlines)

	return MergeKlines(dbKlines, networkKlines), nil
}

// Backfill 补齐 (after, before) 开区间内缺失的K线，按时间升序返回
func (km *KlineManager) Backfill(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, after, before time.Time) ([]*cex.KlineData, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("KlineManager")

	missing := tf.MissingOpenTimes(after, before)
	if len(missing) == 0 {
		return nil, nil
	}

	first, last := missing[0], missing[len(missing)-1]
	logger.Info("检测到K线缺口", "symbol", pair.Symbol(), "missing", len(missing),
		"from", first.Format(time.RFC3339), "to", last.Format(time.RFC3339))

	if km.db != nil {
		dbKlines, err := km.db.GetKlines(ctx, pair, tf.String(), first, last, 0)
		if err != nil {
			logger.Error("从数据库读取缺口K线失败", "error", err)
		} else if len(dbKlines) == len(missing) {
			return dbKlines, nil
		}
	}

	networkKlines, err := km.fetchRange(ctx, pair, tf, first, last)
	if err != nil {
		return nil, fmt.Errorf("backfill %s: %w", pair, err)
	}

	filled := make([]*cex.KlineData, 0, len(networkKlines))
	for _, kline := range networkKlines {
		if kline.OpenTime.After(after) && kline.OpenTime.Before(before) {
			filled = append(filled, kline)
		}
	}
	km.save(ctx, pair, tf, filled)

	if len(filled) < len(missing) {
		logger.Info("缺口未完全补齐", "symbol", pair.Symbol(), "missing", len(missing), "filled", len(filled))
	}
	return MergeKlines(nil, filled), nil
}

func (km *KlineManager) isFresh(kline *cex.KlineData, tf timeframes.Timeframe) bool {
	lastClosed := tf.Truncate(time.Now()).Add(-tf.MustDuration())
	return !kline.OpenTime.Before(lastClosed)
}

// fetchLatest 从网络获取最近K线
func (km *KlineManager) fetchLatest(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, limit int) ([]*cex.KlineData, error) {
	if err := km.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return km.client.GetKlines(ctx, pair, tf.GetBinanceInterval(), limit)
}

// fetchRange 从网络获取开盘时间在 [start, end] 内的K线
func (km *KlineManager) fetchRange(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, start, end time.Time) ([]*cex.KlineData, error) {
	if err := km.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	// 交易所按开盘时间过滤，end 向后留 1ms 使单根K线也能取到
	return km.client.GetKlinesWithTimeRange(ctx, pair, tf.GetBinanceInterval(), start, end.Add(time.Millisecond), 1000)
}

// save 回写数据库，失败只记日志
func (km *KlineManager) save(ctx context.Context, pair cex.TradingPair, tf timeframes.Timeframe, klines []*cex.KlineData) {
	if km.db == nil || len(klines) == 0 {
		return
	}
	ctx, logger := log.WithCtx(ctx)
	if err := km.db.SaveKlinesBatch(ctx, pair, tf.String(), klines); err != nil {
		logger.Error("保存K线数据到数据库失败", "error", err)
		return
	}
	logger.Debug("保存K线数据到数据库", "symbol", pair.Symbol(), "count", len(klines))
}

// MergeKlines 合并K线数据，按开盘时间去重（后者覆盖前者）并升序排列
func MergeKlines(older, newer []*cex.KlineData) []*cex.KlineData {
	byOpenTime := make(map[int64]*cex.KlineData, len(older)+len(newer))
	for _, kline := range older {
		byOpenTime[kline.OpenTime.UnixMilli()] = kline
	}
	for _, kline := range newer {
		byOpenTime[kline.OpenTime.UnixMilli()] = kline
	}

	result := make([]*cex.KlineData, 0, len(byOpenTime))
	for _, kline := range byOpenTime {
		result = append(result, kline)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})
	return result
}
