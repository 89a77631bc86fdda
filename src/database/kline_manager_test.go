package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/timeframes"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rangeCall struct {
	start, end time.Time
}

// stubClient 按小时生成K线的交易所桩
type stubClient struct {
	klines     []*cex.KlineData
	err        error
	latestHits int
	rangeCalls []rangeCall
}

func (s *stubClient) GetName() string { return "stub" }

func (s *stubClient) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	s.latestHits++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.klines) > limit {
		return s.klines[len(s.klines)-limit:], nil
	}
	return s.klines, nil
}

func (s *stubClient) GetKlinesWithTimeRange(ctx context.Context, pair cex.TradingPair, interval string, startTime, endTime time.Time, limit int) ([]*cex.KlineData, error) {
	s.rangeCalls = append(s.rangeCalls, rangeCall{startTime, endTime})
	if s.err != nil {
		return nil, s.err
	}
	var result []*cex.KlineData
	for _, kline := range s.klines {
		if !kline.OpenTime.Before(startTime) && !kline.OpenTime.After(endTime) {
			result = append(result, kline)
		}
	}
	return result, nil
}

func (s *stubClient) PlaceOrder(ctx context.Context, order cex.OrderRequest) (*cex.OrderResult, error) {
	return nil, errors.New("not supported")
}

func (s *stubClient) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	return nil, nil
}

func (s *stubClient) Ping(ctx context.Context) error { return nil }

var baseHour = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func hourlyKlines(n int) []*cex.KlineData {
	klines := make([]*cex.KlineData, n)
	for i := range klines {
		klines[i] = testKline(baseHour.Add(time.Duration(i)*time.Hour), float64(100+i))
	}
	return klines
}

func TestKlineManager_BackfillFromNetwork(t *testing.T) {
	client := &stubClient{klines: hourlyKlines(24)}
	km := NewKlineManager(nil, client, 0)

	after := baseHour.Add(10 * time.Hour)
	before := baseHour.Add(13 * time.Hour)

	filled, err := km.Backfill(context.Background(), solPair, timeframes.Timeframe1h, after, before)
	require.NoError(t, err)
	require.Len(t, filled, 2)
	assert.Equal(t, baseHour.Add(11*time.Hour), filled[0].OpenTime)
	assert.Equal(t, baseHour.Add(12*time.Hour), filled[1].OpenTime)

	require.Len(t, client.rangeCalls, 1)
	assert.Equal(t, baseHour.Add(11*time.Hour), client.rangeCalls[0].start)
}

func TestKlineManager_BackfillNoGap(t *testing.T) {
	client := &stubClient{klines: hourlyKlines(24)}
	km := NewKlineManager(nil, client, 0)

	filled, err := km.Backfill(context.Background(), solPair, timeframes.Timeframe1h,
		baseHour.Add(10*time.Hour), baseHour.Add(11*time.Hour))
	assert.NoError(t, err)
	assert.Empty(t, filled)
	assert.Empty(t, client.rangeCalls)
}

func TestKlineManager_BackfillFromDatabase(t *testing.T) {
	postgresDB, mock := newMockDB(t)
	client := &stubClient{}
	km := NewKlineManager(postgresDB, client, 0)

	first := baseHour.Add(11 * time.Hour)
	last := baseHour.Add(12 * time.Hour)

	rows := sqlmock.NewRows(klineColumns).
		AddRow(first.UnixMilli(), first.Add(time.Hour-time.Millisecond).UnixMilli(), "111", "112", "110", "111", "1", "1", "1", "1").
		AddRow(last.UnixMilli(), last.Add(time.Hour-time.Millisecond).UnixMilli(), "112", "113", "111", "112", "1", "1", "1", "1")
	mock.ExpectQuery("SELECT (.+) FROM klines").
		WithArgs("SOLUSDT", "1h", first.UnixMilli(), last.UnixMilli()).
		WillReturnRows(rows)

	filled, err := km.Backfill(context.Background(), solPair, timeframes.Timeframe1h,
		baseHour.Add(10*time.Hour), baseHour.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Len(t, filled, 2)
	assert.Empty(t, client.rangeCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKlineManager_BackfillNetworkError(t *testing.T) {
	client := &stubClient{err: errors.New("timeout")}
	km := NewKlineManager(nil, client, 0)

	_, err := km.Backfill(context.Background(), solPair, timeframes.Timeframe1h,
		baseHour, baseHour.Add(5*time.Hour))
	assert.ErrorIs(t, err, client.err)
}

func TestKlineManager_GetKlines(t *testing.T) {
	client := &stubClient{klines: hourlyKlines(50)}
	km := NewKlineManager(nil, client, 0)

	klines, err := km.GetKlines(context.Background(), solPair, timeframes.Timeframe1h, 20)
	require.NoError(t, err)
	require.Len(t, klines, 20)
	assert.Equal(t, baseHour.Add(30*time.Hour), klines[0].OpenTime)
	assert.Equal(t, 1, client.latestHits)
}

func TestKlineManager_GetKlinesInRange(t *testing.T) {
	client := &stubClient{klines: hourlyKlines(48)}
	km := NewKlineManager(nil, client, 0)

	start := baseHour.Add(5 * time.Hour)
	end := baseHour.Add(9 * time.Hour)
	klines, err := km.GetKlinesInRange(context.Background(), solPair, timeframes.Timeframe1h, start, end)
	require.NoError(t, err)
	require.Len(t, klines, 5)
	assert.Equal(t, start, klines[0].OpenTime)
	assert.Equal(t, end, klines[4].OpenTime)
}

func TestKlineManager_RateLimited(t *testing.T) {
	client := &stubClient{klines: hourlyKlines(10)}
	km := NewKlineManager(nil, client, time.Hour)

	_, err := km.GetKlines(context.Background(), solPair, timeframes.Timeframe1h, 5)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = km.GetKlines(ctx, solPair, timeframes.Timeframe1h, 5)
	assert.Error(t, err)
	assert.Equal(t, 1, client.latestHits)
}

func TestMergeKlines(t *testing.T) {
	klines := hourlyKlines(4)
	updated := testKline(klines[2].OpenTime, 500)

	merged := MergeKlines([]*cex.KlineData{klines[3], klines[0], klines[2]}, []*cex.KlineData{klines[1], updated})
	require.Len(t, merged, 4)
	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i-1].OpenTime.Before(merged[i].OpenTime))
	}
	assert.Same(t, updated, merged[2])
}
