package config

import (
	"fmt"
	"strings"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/strategy"
	"bouncebot/src/timeframes"

	"github.com/xpwu/go-config/configs"
)

// Config 主配置结构
type Config struct {
	Trading   TradingConfig       `conf:"trading,交易基础配置"`
	Strategy  StrategyConfig      `conf:"strategy,反弹策略参数"`
	Backtest  BacktestConfig      `conf:"backtest,回测配置"`
	Live      LiveConfig          `conf:"live,模拟盘/实盘配置"`
	Positions PositionStoreConfig `conf:"positions,持仓快照存储"`
	Symbols   []SymbolInfo        `conf:"symbols,支持的交易对列表"`
}

// SymbolInfo 交易对信息（简化版）
type SymbolInfo struct {
	Symbol     string `conf:"symbol,交易对代码"`
	BaseAsset  string `conf:"base_asset,基础资产"`
	QuoteAsset string `conf:"quote_asset,计价资产"`
}

// TradingPair 转换为标准交易对
func (s SymbolInfo) TradingPair() cex.TradingPair {
	return cex.TradingPair{Base: strings.ToUpper(s.BaseAsset), Quote: strings.ToUpper(s.QuoteAsset)}
}

// TradingConfig 交易配置
type TradingConfig struct {
	CEX       string `conf:"cex,交易所 - 目前支持binance"`
	Timeframe string `conf:"timeframe,K线周期 - 支持1m,3m,5m,15m,30m,1h,2h,4h,6h,8h,12h,1d"`
	Mode      string `conf:"mode,运行模式 - backtest=回测,dry=模拟,live=实盘"`
	Quote     string `conf:"quote,计价资产 - 命令行只给基础资产时使用，如USDT"`
}

// StrategyConfig 反弹策略参数，百分比单位为 %（4 表示 4%）
type StrategyConfig struct {
	DropThresholdPct    float64 `conf:"drop_threshold_pct,开仓跌幅 - 相对前高下跌达到该值才开仓，默认4"`
	TakeProfitPct       float64 `conf:"take_profit_pct,止盈 - 默认4"`
	StopLossPct         float64 `conf:"stop_loss_pct,止损 - 负数，默认-5"`
	TrailingStopPct     float64 `conf:"trailing_stop_pct,移动止损 - 相对持仓最高价的回撤，负数，0=关闭"`
	HoldHoursMax        float64 `conf:"hold_hours_max,最长持仓小时 - 0=不限"`
	LookbackBars        int     `conf:"lookback_bars,前高回看K线数 - 不含当前K线"`
	SMAPeriod           int     `conf:"sma_period,趋势均线周期"`
	PositionSizeDollars float64 `conf:"position_size_dollars,每笔开仓金额(USDT)"`
	CooldownHours       float64 `conf:"cooldown_hours,止损后冷却小时"`
	MaxTradesPerPeriod  int     `conf:"max_trades_per_period,每周期最多开仓次数 - 0=不限"`
	TradePeriodHours    float64 `conf:"trade_period_hours,开仓计数周期小时"`
	WindowMargin        int     `conf:"window_margin,窗口额外保留的K线数"`
	TrendFastPeriod     int     `conf:"trend_fast_period,可选快均线周期 - 0=关闭"`
	TrendSlowPeriod     int     `conf:"trend_slow_period,可选慢均线周期"`
	RequireBounce       bool    `conf:"require_bounce,要求收盘价高于上一根"`
	InitialCash         float64 `conf:"initial_cash,每个交易对的初始资金(USDT)"`
}

// BacktestConfig 回测配置
type BacktestConfig struct {
	StartDate       string  `conf:"start_date,回测开始日期"`
	EndDate         string  `conf:"end_date,回测结束日期"`
	Fee             float64 `conf:"fee,交易手续费率"`
	Slippage        float64 `conf:"slippage,滑点损失"`
	ForceCloseAtEnd bool    `conf:"force_close_at_end,回测结束时按最后收盘价平仓"`
	ExportDir       string  `conf:"export_dir,成交与权益曲线CSV导出目录 - 空=不导出"`
}

// LiveConfig 模拟盘/实盘配置
type LiveConfig struct {
	DataSource          string `conf:"data_source,数据来源 - stream=websocket推送,poll=REST轮询"`
	PollIntervalSeconds int    `conf:"poll_interval_seconds,轮询间隔秒 - 0=K线周期"`
	GapPolicy           string `conf:"gap_policy,K线缺口处理 - skip=直接处理,backfill=先补齐"`
	SeedBars            int    `conf:"seed_bars,启动时预热的历史K线数 - 0=按窗口容量"`
	CloseOnExit         bool   `conf:"close_on_exit,退出时平掉所有持仓"`
	RestoreFromExchange bool   `conf:"restore_from_exchange,实盘启动时按账户余额恢复持仓"`
	OrderIntervalMs     int    `conf:"order_interval_ms,两次下单最小间隔毫秒"`
	BackfillIntervalMs  int    `conf:"backfill_interval_ms,补齐K线时两次请求最小间隔毫秒"`
}

// PositionStoreConfig 持仓快照存储
type PositionStoreConfig struct {
	Type string `conf:"type,存储类型 - none,postgres,yaml"`
	Path string `conf:"path,yaml文件路径"`
}

// AppConfig 全局配置实例
var AppConfig = &Config{
	Trading: TradingConfig{
		CEX:       "binance",
		Timeframe: "1h",
		Mode:      "backtest",
		Quote:     "USDT",
	},
	Strategy: StrategyConfig{
		DropThresholdPct:    4,
		TakeProfitPct:       4,
		StopLossPct:         -5,
		TrailingStopPct:     -5,
		HoldHoursMax:        72,
		LookbackBars:        60,
		SMAPeriod:           10,
		PositionSizeDollars: 700,
		CooldownHours:       4,
		MaxTradesPerPeriod:  0,
		TradePeriodHours:    24,
		WindowMargin:        10,
		InitialCash:         10000,
	},
	Backtest: BacktestConfig{
		StartDate:       "2024-01-01",
		EndDate:         "2024-06-30",
		Fee:             0, // 默认不计手续费
		Slippage:        0,
		ForceCloseAtEnd: true,
	},
	Live: LiveConfig{
		DataSource:          "stream",
		GapPolicy:           "backfill",
		CloseOnExit:         false,
		RestoreFromExchange: true,
		OrderIntervalMs:     200,
		BackfillIntervalMs:  250,
	},
	Positions: PositionStoreConfig{
		Type: "yaml",
		Path: "data/positions.yaml",
	},
	Symbols: []SymbolInfo{
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"},
		{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"},
		{Symbol: "SOLUSDT", BaseAsset: "SOL", QuoteAsset: "USDT"},
	},
}

// 在包的 init() 函数中注册配置
func init() {
	configs.Unmarshal(AppConfig)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if _, err := timeframes.ParseTimeframe(c.Trading.Timeframe); err != nil {
		return fmt.Errorf("invalid timeframe: %w", err)
	}

	switch c.Trading.Mode {
	case "backtest", "dry", "live":
	default:
		return fmt.Errorf("invalid trading mode: %s", c.Trading.Mode)
	}

	if _, err := c.BounceParams(); err != nil {
		return err
	}

	if c.Trading.Mode == "backtest" {
		start, err := c.GetStartTime()
		if err != nil {
			return fmt.Errorf("invalid start date format: %s", c.Backtest.StartDate)
		}
		end, err := c.GetEndTime()
		if err != nil {
			return fmt.Errorf("invalid end date format: %s", c.Backtest.EndDate)
		}
		if !end.After(start) {
			return fmt.Errorf("end date %s must be after start date %s", c.Backtest.EndDate, c.Backtest.StartDate)
		}
	}

	if c.Backtest.Fee < 0 || c.Backtest.Slippage < 0 {
		return fmt.Errorf("fee and slippage must be non-negative")
	}

	switch c.Live.DataSource {
	case "", "stream", "poll":
	default:
		return fmt.Errorf("invalid data source: %s", c.Live.DataSource)
	}
	switch c.Live.GapPolicy {
	case "", "skip", "backfill":
	default:
		return fmt.Errorf("invalid gap policy: %s", c.Live.GapPolicy)
	}

	switch c.Positions.Type {
	case "", "none", "postgres":
	case "yaml":
		if c.Positions.Path == "" {
			return fmt.Errorf("positions.path is required for yaml position store")
		}
	default:
		return fmt.Errorf("invalid position store type: %s", c.Positions.Type)
	}

	return nil
}

// BounceParams 转换为策略参数并校验
func (c *Config) BounceParams() (*strategy.BounceParams, error) {
	s := c.Strategy
	params := &strategy.BounceParams{
		DropThresholdPct:    s.DropThresholdPct,
		TakeProfitPct:       s.TakeProfitPct,
		StopLossPct:         s.StopLossPct,
		TrailingStopPct:     s.TrailingStopPct,
		HoldHoursMax:        s.HoldHoursMax,
		LookbackBars:        s.LookbackBars,
		SMAPeriod:           s.SMAPeriod,
		PositionSizeDollars: s.PositionSizeDollars,
		CooldownDuration:    hours(s.CooldownHours),
		MaxTradesPerPeriod:  s.MaxTradesPerPeriod,
		TradePeriod:         hours(s.TradePeriodHours),
		WindowMargin:        s.WindowMargin,
		TrendFastPeriod:     s.TrendFastPeriod,
		TrendSlowPeriod:     s.TrendSlowPeriod,
		RequireBounce:       s.RequireBounce,
		InitialCash:         s.InitialCash,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// ResolveTradingPairs 解析命令行给出的交易对列表
//
// 支持 "SOL"、"SOLUSDT"、"SOL/USDT" 三种写法，逗号分隔；
// 只给基础资产时使用 Trading.Quote。配置了 Symbols 时只允许其中的交易对。
func (c *Config) ResolveTradingPairs(list string) ([]cex.TradingPair, error) {
	var pairs []cex.TradingPair
	seen := make(map[cex.TradingPair]bool)

	for _, item := range strings.Split(list, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item == "" {
			continue
		}

		pair, err := c.resolvePair(item)
		if err != nil {
			return nil, err
		}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		pairs = append(pairs, pair)
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("no trading pairs given")
	}
	return pairs, nil
}

func (c *Config) resolvePair(item string) (cex.TradingPair, error) {
	if strings.Contains(item, "/") {
		pair, err := cex.ParseTradingPair(item)
		if err != nil {
			return cex.TradingPair{}, err
		}
		return pair, c.checkSupported(pair)
	}

	for _, s := range c.Symbols {
		if strings.EqualFold(s.Symbol, item) {
			return s.TradingPair(), nil
		}
	}

	quote := strings.ToUpper(c.Trading.Quote)
	if quote == "" {
		quote = "USDT"
	}
	pair := cex.TradingPair{Base: strings.TrimSuffix(item, quote), Quote: quote}
	if pair.Base == "" {
		return cex.TradingPair{}, fmt.Errorf("invalid trading pair: %q", item)
	}
	return pair, c.checkSupported(pair)
}

func (c *Config) checkSupported(pair cex.TradingPair) error {
	if len(c.Symbols) == 0 {
		return nil
	}
	supported := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.TradingPair() == pair {
			return nil
		}
		supported = append(supported, s.Symbol)
	}
	return fmt.Errorf("trading pair %s is not supported (supported: %s)", pair, strings.Join(supported, ", "))
}

// GetTimeframe 获取时间周期
func (c *Config) GetTimeframe() (timeframes.Timeframe, error) {
	return timeframes.ParseTimeframe(c.Trading.Timeframe)
}

// GetStartTime 获取回测开始时间（UTC）
func (c *Config) GetStartTime() (time.Time, error) {
	return time.Parse("2006-01-02", c.Backtest.StartDate)
}

// GetEndTime 获取回测结束时间（UTC，含当天）
func (c *Config) GetEndTime() (time.Time, error) {
	end, err := time.Parse("2006-01-02", c.Backtest.EndDate)
	if err != nil {
		return time.Time{}, err
	}
	return end.Add(24*time.Hour - time.Millisecond), nil
}

// PollInterval 轮询间隔，0 表示使用K线周期
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Live.PollIntervalSeconds) * time.Second
}

// OrderInterval 两次下单最小间隔
func (c *Config) OrderInterval() time.Duration {
	return time.Duration(c.Live.OrderIntervalMs) * time.Millisecond
}

// BackfillInterval 补齐K线时两次请求最小间隔
func (c *Config) BackfillInterval() time.Duration {
	return time.Duration(c.Live.BackfillIntervalMs) * time.Millisecond
}

// IsLiveMode 是否为实盘模式
func (c *Config) IsLiveMode() bool {
	return c.Trading.Mode == "live"
}

// IsDryRunMode 是否为模拟交易模式
func (c *Config) IsDryRunMode() bool {
	return c.Trading.Mode == "dry"
}

// IsBacktestMode 是否为回测模式
func (c *Config) IsBacktestMode() bool {
	return c.Trading.Mode == "backtest"
}
