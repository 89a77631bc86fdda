package trading

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/config"
	"bouncebot/src/database"
	"bouncebot/src/engine"
	"bouncebot/src/strategies"
	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	solPair   = cex.TradingPair{Base: "SOL", Quote: "USDT"}
	ethPair   = cex.TradingPair{Base: "ETH", Quote: "USDT"}
	testStart = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

// streamingClient 同时支持 REST 与 websocket 推送的 mock
type streamingClient struct {
	*engine.MockCEXClient
	*engine.MockStreamer
}

// testConfig 小窗口、无手续费的配置副本
func testConfig(t *testing.T) *config.Config {
	cfg := *config.AppConfig
	cfg.Strategy.LookbackBars = 5
	cfg.Strategy.SMAPeriod = 3
	cfg.Strategy.WindowMargin = 2
	cfg.Strategy.PositionSizeDollars = 1000
	cfg.Strategy.InitialCash = 10000
	cfg.Backtest.StartDate = "2024-05-01"
	cfg.Backtest.EndDate = "2024-05-01"
	cfg.Backtest.Fee = 0
	cfg.Backtest.Slippage = 0
	cfg.Backtest.ExportDir = ""
	cfg.Positions = config.PositionStoreConfig{Type: "yaml", Path: filepath.Join(t.TempDir(), "positions.yaml")}
	return &cfg
}

func newTestSystem(t *testing.T, cfg *config.Config, client cex.CEXClient) *TradingSystem {
	t.Helper()
	ts, err := NewTradingSystemWithConfig(cfg)
	require.NoError(t, err)
	ts.SetCEXClient(client)
	require.NoError(t, ts.SetTradingPairs("SOL", "1h"))
	require.NoError(t, ts.Initialize(false))
	return ts
}

func hourly(pair cex.TradingPair, closes ...float64) []*cex.KlineData {
	return engine.CreateTestKlines(pair, testStart, time.Hour, closes...)
}

func TestNewTradingSystem(t *testing.T) {
	ts, err := NewTradingSystem()
	require.NoError(t, err)
	assert.NotNil(t, ts.ctx)
	assert.NotNil(t, ts.cancel)
	assert.Equal(t, config.AppConfig, ts.GetConfig())
	assert.Equal(t, 60, ts.Params().LookbackBars)
}

func TestNewTradingSystemWithConfig_InvalidParams(t *testing.T) {
	cfg := testConfig(t)
	cfg.Strategy.SMAPeriod = 0
	_, err := NewTradingSystemWithConfig(cfg)
	assert.Error(t, err)
}

func TestTradingSystem_SetTradingPairs(t *testing.T) {
	ts, err := NewTradingSystemWithConfig(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, ts.SetTradingPairs("sol,ETHUSDT", "4h"))
	assert.Equal(t, []string{"SOL/USDT", "ETH/USDT"}, ts.Instruments())
	assert.Equal(t, "4h", ts.timeframe.String())

	assert.Error(t, ts.SetTradingPairs("SOL", "7m"))
	assert.Error(t, ts.SetTradingPairs("DOGE", ""))
}

func TestTradingSystem_SetParamOverrides(t *testing.T) {
	ts, err := NewTradingSystemWithConfig(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, ts.SetParamOverrides(map[string]float64{"take_profit_pct": 6, "lookback_bars": 20}))
	assert.Equal(t, 6.0, ts.Params().TakeProfitPct)
	assert.Equal(t, 20, ts.Params().LookbackBars)

	assert.Error(t, ts.SetParamOverrides(map[string]float64{"unknown": 1}))

	// 校验失败时保持原参数
	assert.Error(t, ts.SetParamOverrides(map[string]float64{"stop_loss_pct": 1}))
	assert.Equal(t, -5.0, ts.Params().StopLossPct)
}

func TestTradingSystem_RunBacktest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backtest.ExportDir = t.TempDir()

	client := &engine.MockCEXClient{Klines: map[cex.TradingPair][]*cex.KlineData{
		solPair: hourly(solPair, 100, 100, 100, 100, 100, 90, 90, 95.5, 97, 99.5),
	}}
	ts := newTestSystem(t, cfg, client)
	defer ts.Close()

	result, err := ts.RunBacktest()
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, strategy.ReasonTakeProfit, result.Trades[1].Reason)
	assert.Equal(t, 1, result.Statistics.TotalTrades)
	assert.True(t, result.Statistics.FinalValue.Equal(decimal.NewFromInt(10040)))
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, strategy.StateFlat, result.Snapshots[0].State)

	assert.FileExists(t, filepath.Join(cfg.Backtest.ExportDir, "20240501_20240501_trades.csv"))
	assert.FileExists(t, filepath.Join(cfg.Backtest.ExportDir, "20240501_20240501_equity.csv"))

	assert.NotPanics(t, func() { ts.PrintBacktestResults(result) })
}

func TestTradingSystem_RunBacktest_NoPairs(t *testing.T) {
	ts, err := NewTradingSystemWithConfig(testConfig(t))
	require.NoError(t, err)
	_, err = ts.RunBacktest()
	assert.Error(t, err)
}

func TestTradingSystem_RunLive_DryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Live.DataSource = "stream"
	cfg.Live.SeedBars = 0
	cfg.Live.CloseOnExit = true

	bars := hourly(solPair, 100, 100, 100, 100, 100, 90, 90, 95.5)
	client := streamingClient{
		MockCEXClient: &engine.MockCEXClient{Klines: map[cex.TradingPair][]*cex.KlineData{solPair: bars[:5]}},
		MockStreamer:  engine.NewMockStreamer(),
	}
	ts := newTestSystem(t, cfg, client)
	ts.now = func() time.Time { return testStart.Add(5 * time.Hour) }

	errCh := make(chan error, 1)
	go func() {
		errCh <- ts.RunLive(true)
	}()

	require.Eventually(t, func() bool { return client.Subscribed(solPair) }, time.Second, 5*time.Millisecond)
	for _, bar := range bars[5:] {
		require.True(t, client.Push(bar))
	}

	store := database.NewFilePositionStore(cfg.Positions.Path)
	require.Eventually(t, func() bool {
		positions, err := store.LoadPositions(context.Background())
		return err == nil && len(positions) == 1
	}, time.Second, 10*time.Millisecond)

	ts.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunLive did not stop")
	}

	// 退出时平仓
	trades := ts.tradingEngine.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, strategy.ReasonForcedClose, trades[1].Reason)
	positions, err := store.LoadPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, 0, client.OrderCount(), "dry run never places orders")
}

func TestTradingSystem_RestorePositions(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	client := &engine.MockCEXClient{Balances: []*cex.AccountBalance{
		{Asset: "SOL", Free: decimal.NewFromInt(12)},
		{Asset: "USDT", Free: decimal.NewFromInt(5000)},
	}}
	ts := newTestSystem(t, cfg, client)
	require.NoError(t, ts.SetTradingPairs("SOL,ETH,BTC", ""))
	ts.now = func() time.Time { return testStart.Add(24 * time.Hour) }

	store := database.NewFilePositionStore(cfg.Positions.Path)
	require.NoError(t, store.SavePosition(ctx, "SOL/USDT", &strategy.Position{
		EntryTime: testStart, EntryPrice: decimal.NewFromInt(95), Shares: decimal.NewFromInt(10), HighWaterPrice: decimal.NewFromInt(98),
	}))
	require.NoError(t, store.SavePosition(ctx, "BTC/USDT", &strategy.Position{
		EntryTime: testStart, EntryPrice: decimal.NewFromInt(60000), Shares: decimal.NewFromFloat(0.01), HighWaterPrice: decimal.NewFromInt(60000),
	}))

	latest := map[cex.TradingPair]*cex.KlineData{
		solPair: engine.CreateTestKline(solPair, testStart.Add(23*time.Hour), time.Hour, 100),
		ethPair: engine.CreateTestKline(ethPair, testStart.Add(23*time.Hour), time.Hour, 3000),
	}

	t.Run("snapshot only", func(t *testing.T) {
		registry, err := strategies.NewRegistry(ts.Instruments(), ts.params)
		require.NoError(t, err)

		restored, err := ts.restorePositions(ctx, registry, store, false, latest)
		require.NoError(t, err)
		assert.Len(t, restored, 2)
		assert.True(t, restored["SOL/USDT"].Shares.Equal(decimal.NewFromInt(10)))
	})

	t.Run("account is authoritative", func(t *testing.T) {
		// 零头余额不恢复
		client.Balances = append(client.Balances, &cex.AccountBalance{Asset: "ETH", Free: decimal.NewFromFloat(0.001)})

		registry, err := strategies.NewRegistry(ts.Instruments(), ts.params)
		require.NoError(t, err)

		restored, err := ts.restorePositions(ctx, registry, store, true, latest)
		require.NoError(t, err)
		require.Len(t, restored, 1)

		sol := restored["SOL/USDT"]
		assert.True(t, sol.Shares.Equal(decimal.NewFromInt(12)), "shares follow the account")
		assert.True(t, sol.EntryPrice.Equal(decimal.NewFromInt(95)), "entry price from snapshot")

		s, err := registry.Get("SOL/USDT")
		require.NoError(t, err)
		assert.Equal(t, strategy.StateLong, s.State())

		// 账户中没有 BTC，快照被删除
		positions, err := store.LoadPositions(ctx)
		require.NoError(t, err)
		assert.NotContains(t, positions, "BTC/USDT")
	})

	t.Run("account without snapshot", func(t *testing.T) {
		client.Balances = []*cex.AccountBalance{{Asset: "ETH", Free: decimal.NewFromInt(1), Locked: decimal.NewFromInt(1)}}

		registry, err := strategies.NewRegistry(ts.Instruments(), ts.params)
		require.NoError(t, err)

		restored, err := ts.restorePositions(ctx, registry, nil, true, latest)
		require.NoError(t, err)
		require.Len(t, restored, 1)

		eth := restored["ETH/USDT"]
		assert.True(t, eth.Shares.Equal(decimal.NewFromInt(2)))
		assert.True(t, eth.EntryPrice.Equal(decimal.NewFromInt(3000)))
		assert.Equal(t, testStart.Add(24*time.Hour), eth.EntryTime)
	})
}

func TestTradingSystem_PositionStore(t *testing.T) {
	cfg := testConfig(t)
	ts, err := NewTradingSystemWithConfig(cfg)
	require.NoError(t, err)

	store, err := ts.positionStore()
	require.NoError(t, err)
	assert.IsType(t, &database.FilePositionStore{}, store)

	cfg.Positions.Type = "none"
	store, err = ts.positionStore()
	require.NoError(t, err)
	assert.Nil(t, store)

	cfg.Positions.Type = "postgres"
	_, err = ts.positionStore()
	assert.Error(t, err, "no database connection")

	assert.Nil(t, ts.recorder())
}

func TestExportBacktest(t *testing.T) {
	cfg := testConfig(t)
	client := &engine.MockCEXClient{Klines: map[cex.TradingPair][]*cex.KlineData{
		solPair: hourly(solPair, 100, 100, 100, 100, 100, 90, 90, 95.5, 97, 99.5),
	}}
	ts := newTestSystem(t, cfg, client)

	result, err := ts.RunBacktest()
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, ExportBacktest(dir, result))

	data, err := os.ReadFile(filepath.Join(dir, "20240501_20240501_trades.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "TAKE_PROFIT")
}

func TestParamsMap(t *testing.T) {
	p := strategy.GetDefaultBounceParams()
	m := ParamsMap(p)
	assert.Equal(t, 240.0, m["cooldown_minutes"])
	assert.Equal(t, 60, m["lookback_bars"])
	assert.Equal(t, 24.0, m["trade_period_hours"])
}
