package strategies

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/indicators"
	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
)

// BounceStrategy 单个交易对的均值回归反弹引擎
//
// 跌破前高一定比例且收盘价在均线上方时买入，
// 持仓后按 止盈 > 止损 > 移动止损 > 超时 的顺序检查退出。
// 每根K线最多产生一个交易意图。
type BounceStrategy struct {
	instrument string
	params     strategy.BounceParams

	calc      *indicators.SignalCalculator
	exitRules strategy.ExitRules

	mu            sync.Mutex
	window        *indicators.BarWindow
	position      *strategy.Position
	cash          decimal.Decimal
	realizedPnL   decimal.Decimal
	cooldownUntil time.Time
	periodStart   time.Time
	tradeCount    int

	// 最近一次平仓，下单失败时用于回滚
	lastExit *exitRecord
}

type exitRecord struct {
	position     strategy.Position
	at           time.Time
	price        decimal.Decimal
	prevCooldown time.Time
}

// NewBounceStrategy 创建引擎，参数无效时返回 *strategy.ConfigError
func NewBounceStrategy(instrument string, params *strategy.BounceParams) (*BounceStrategy, error) {
	if params == nil {
		params = strategy.GetDefaultBounceParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	window, err := indicators.NewBarWindow(params.WindowCapacity())
	if err != nil {
		return nil, &strategy.ConfigError{Field: "window", Reason: err.Error()}
	}

	return &BounceStrategy{
		instrument: instrument,
		params:     *params,
		calc:       indicators.NewSignalCalculator(params.LookbackBars, params.SMAPeriod),
		exitRules:  strategy.NewExitRules(params),
		window:     window,
		cash:       decimal.NewFromFloat(params.InitialCash),
	}, nil
}

// GetName 获取策略名称
func (s *BounceStrategy) GetName() string {
	return fmt.Sprintf("Bounce(drop %.1f%%, %s)", s.params.DropThresholdPct, s.exitRules.GetName())
}

// Instrument 交易对
func (s *BounceStrategy) Instrument() string {
	return s.instrument
}

// Params 参数副本
func (s *BounceStrategy) Params() strategy.BounceParams {
	return s.params
}

// checkBarPrices 校验K线本身：时间戳存在，价格为正，最高价不低于最低价
func (s *BounceStrategy) checkBarPrices(bar *cex.KlineData) error {
	if bar == nil {
		return &strategy.DataError{Instrument: s.instrument, Err: fmt.Errorf("%w: nil bar", strategy.ErrInvalidBar)}
	}
	if bar.OpenTime.IsZero() {
		return &strategy.DataError{Instrument: s.instrument, Err: fmt.Errorf("%w: missing timestamp", strategy.ErrInvalidBar)}
	}
	prices := []struct {
		name  string
		value decimal.Decimal
	}{{"open", bar.Open}, {"high", bar.High}, {"low", bar.Low}, {"close", bar.Close}}
	for _, p := range prices {
		if !p.value.IsPositive() {
			return &strategy.DataError{
				Instrument: s.instrument,
				Timestamp:  bar.OpenTime,
				Err:        fmt.Errorf("%w: %s price %s is not positive", strategy.ErrInvalidBar, p.name, p.value),
			}
		}
	}
	if bar.High.LessThan(bar.Low) {
		return &strategy.DataError{
			Instrument: s.instrument,
			Timestamp:  bar.OpenTime,
			Err:        fmt.Errorf("%w: high %s below low %s", strategy.ErrInvalidBar, bar.High, bar.Low),
		}
	}
	return nil
}

// Evaluate 处理一根已收盘的K线，返回零个或一个交易意图
//
// 坏数据返回 *strategy.DataError 且状态不变；重复K线同样返回
// 包装 ErrDuplicateBar 的 DataError，可安全重放。
// 历史不足时K线仍会进入窗口，但不产生任何意图。
func (s *BounceStrategy) Evaluate(bar *cex.KlineData) (*strategy.TradeIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateBar(bar); err != nil {
		return nil, err
	}
	// 校验通过后才修改状态
	if err := s.window.Push(bar); err != nil {
		return nil, &strategy.DataError{Instrument: s.instrument, Timestamp: bar.OpenTime, Err: err}
	}

	now := bar.OpenTime
	price := bar.Close

	if s.position != nil {
		return s.checkExit(price, now), nil
	}
	return s.checkEntry(price, now), nil
}

func (s *BounceStrategy) validateBar(bar *cex.KlineData) error {
	if err := s.checkBarPrices(bar); err != nil {
		return err
	}
	if last := s.window.Last(); last != nil {
		switch {
		case bar.OpenTime.Equal(last.OpenTime):
			return &strategy.DataError{Instrument: s.instrument, Timestamp: bar.OpenTime, Err: strategy.ErrDuplicateBar}
		case bar.OpenTime.Before(last.OpenTime):
			return &strategy.DataError{Instrument: s.instrument, Timestamp: bar.OpenTime, Err: strategy.ErrOutOfOrderBar}
		}
	}
	return nil
}

// checkExit 持仓时检查退出条件，退出的K线不会再开仓
func (s *BounceStrategy) checkExit(price decimal.Decimal, now time.Time) *strategy.TradeIntent {
	info := strategy.NewTradeInfo(s.position, price, now)
	s.position.HighWaterPrice = info.HighWaterPrice

	signal := s.exitRules.Check(info)
	if !signal.ShouldExit {
		return nil
	}

	intent := s.closePosition(price, now, signal.Reason, info.ReturnPct)
	if signal.Reason == strategy.ReasonStopLoss {
		s.cooldownUntil = now.Add(s.params.CooldownDuration)
	}
	return intent
}

// checkEntry 空仓时检查开仓条件
func (s *BounceStrategy) checkEntry(price decimal.Decimal, now time.Time) *strategy.TradeIntent {
	s.rollTradePeriod(now)

	if now.Before(s.cooldownUntil) {
		return nil
	}
	if s.params.MaxTradesPerPeriod > 0 && s.tradeCount >= s.params.MaxTradesPerPeriod {
		return nil
	}

	signals, err := s.calc.Calculate(s.window)
	if err != nil {
		// 预热阶段
		return nil
	}

	threshold := decimal.NewFromFloat(-s.params.DropThresholdPct)
	if signals.DropPct.GreaterThan(threshold) || !signals.TrendOK {
		return nil
	}
	if !s.trendFilterOK() || !s.bounceOK() {
		return nil
	}

	size := decimal.NewFromFloat(s.params.PositionSizeDollars).Div(price).Floor()
	if !size.IsPositive() {
		return nil
	}
	cost := size.Mul(price)
	if cost.GreaterThan(s.cash) {
		return nil
	}

	s.cash = s.cash.Sub(cost)
	s.position = &strategy.Position{
		EntryTime:      now,
		EntryPrice:     price,
		Shares:         size,
		HighWaterPrice: price,
	}
	s.tradeCount++

	return &strategy.TradeIntent{
		Instrument: s.instrument,
		Side:       strategy.SideBuy,
		Size:       size,
		Price:      price,
		Reason:     strategy.ReasonEntry,
		Timestamp:  now,
	}
}

// trendFilterOK 可选的快慢均线过滤，未启用时恒为 true
func (s *BounceStrategy) trendFilterOK() bool {
	if s.params.TrendFastPeriod == 0 {
		return true
	}
	fast, err := indicators.SMA(s.window, s.params.TrendFastPeriod)
	if err != nil {
		return false
	}
	slow, err := indicators.SMA(s.window, s.params.TrendSlowPeriod)
	if err != nil {
		return false
	}
	return fast.GreaterThan(slow)
}

// bounceOK 可选的反弹确认：收盘价高于上一根
func (s *BounceStrategy) bounceOK() bool {
	if !s.params.RequireBounce {
		return true
	}
	bars, err := s.window.LastN(2)
	if err != nil {
		return false
	}
	return bars[1].Close.GreaterThan(bars[0].Close)
}

func (s *BounceStrategy) rollTradePeriod(now time.Time) {
	if s.params.MaxTradesPerPeriod == 0 {
		return
	}
	start := now.UTC().Truncate(s.params.TradePeriod)
	if !start.Equal(s.periodStart) {
		s.periodStart = start
		s.tradeCount = 0
	}
}

func (s *BounceStrategy) closePosition(price decimal.Decimal, now time.Time, reason strategy.Reason, returnPct decimal.Decimal) *strategy.TradeIntent {
	pos := s.position
	s.lastExit = &exitRecord{position: *pos, at: now, price: price, prevCooldown: s.cooldownUntil}
	proceeds := pos.Shares.Mul(price)
	s.cash = s.cash.Add(proceeds)
	s.realizedPnL = s.realizedPnL.Add(proceeds.Sub(pos.Shares.Mul(pos.EntryPrice)))
	s.position = nil

	return &strategy.TradeIntent{
		Instrument: s.instrument,
		Side:       strategy.SideSell,
		Size:       pos.Shares,
		Price:      price,
		Reason:     reason,
		Timestamp:  now,
		ReturnPct:  returnPct,
	}
}

// Seed 用历史K线预热窗口，不做任何交易判断
//
// 任何一根K线无效时整批拒绝。已在窗口中的时间戳会被跳过。
func (s *BounceStrategy) Seed(bars []*cex.KlineData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last time.Time
	if l := s.window.Last(); l != nil {
		last = l.OpenTime
	}

	accepted := make([]*cex.KlineData, 0, len(bars))
	for _, bar := range bars {
		if err := s.checkBarPrices(bar); err != nil {
			return err
		}
		if !last.IsZero() && !bar.OpenTime.After(last) {
			if len(accepted) > 0 {
				return &strategy.DataError{Instrument: s.instrument, Timestamp: bar.OpenTime, Err: strategy.ErrOutOfOrderBar}
			}
			continue
		}
		accepted = append(accepted, bar)
		last = bar.OpenTime
	}

	for _, bar := range accepted {
		if err := s.window.Push(bar); err != nil {
			// 上面已校验顺序
			return &strategy.DataError{Instrument: s.instrument, Timestamp: bar.OpenTime, Err: err}
		}
	}
	return nil
}

// RestorePosition 恢复外部记录的持仓（重启或券商余额），不动用现金
func (s *BounceStrategy) RestorePosition(pos strategy.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position != nil {
		return &strategy.StateInconsistency{
			Instrument: s.instrument,
			Operation:  "restore position",
			State:      strategy.StateLong,
			Reason:     "engine already holds a position",
		}
	}
	if err := pos.Validate(); err != nil {
		return &strategy.DataError{Instrument: s.instrument, Timestamp: pos.EntryTime, Err: err}
	}
	if pos.HighWaterPrice.LessThan(pos.EntryPrice) {
		pos.HighWaterPrice = pos.EntryPrice
	}
	s.position = &pos
	return nil
}

// ForceClose 以给定价格强制平仓，不触发冷却
func (s *BounceStrategy) ForceClose(price decimal.Decimal, at time.Time) (*strategy.TradeIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position == nil {
		return nil, &strategy.StateInconsistency{
			Instrument: s.instrument,
			Operation:  "force close",
			State:      strategy.StateFlat,
			Reason:     "no open position",
		}
	}
	if !price.IsPositive() {
		return nil, &strategy.DataError{
			Instrument: s.instrument,
			Timestamp:  at,
			Err:        fmt.Errorf("%w: close price %s is not positive", strategy.ErrInvalidBar, price),
		}
	}

	returnPct := price.Sub(s.position.EntryPrice).Div(s.position.EntryPrice).Mul(decimal.NewFromInt(100))
	return s.closePosition(price, at, strategy.ReasonForcedClose, returnPct), nil
}

// RejectFill 交易意图未能成交时回滚对应的状态变化
//
// 买入被拒：撤销持仓、退回现金、交易计数减一。
// 卖出被拒：恢复平仓前的持仓、现金与冷却时间。
func (s *BounceStrategy) RejectFill(intent *strategy.TradeIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if intent == nil || intent.Instrument != s.instrument {
		return &strategy.StateInconsistency{
			Instrument: s.instrument,
			Operation:  "reject fill",
			State:      s.state(),
			Reason:     "intent does not belong to this engine",
		}
	}

	switch intent.Side {
	case strategy.SideBuy:
		if s.position == nil || !s.position.EntryTime.Equal(intent.Timestamp) {
			return &strategy.StateInconsistency{
				Instrument: s.instrument,
				Operation:  "reject buy fill",
				State:      s.state(),
				Reason:     "no matching open position",
			}
		}
		s.cash = s.cash.Add(s.position.Shares.Mul(s.position.EntryPrice))
		s.position = nil
		if s.tradeCount > 0 {
			s.tradeCount--
		}
	case strategy.SideSell:
		exit := s.lastExit
		if s.position != nil || exit == nil || !exit.at.Equal(intent.Timestamp) {
			return &strategy.StateInconsistency{
				Instrument: s.instrument,
				Operation:  "reject sell fill",
				State:      s.state(),
				Reason:     "no matching closed position",
			}
		}
		pos := exit.position
		proceeds := pos.Shares.Mul(exit.price)
		s.cash = s.cash.Sub(proceeds)
		s.realizedPnL = s.realizedPnL.Sub(proceeds.Sub(pos.Shares.Mul(pos.EntryPrice)))
		s.cooldownUntil = exit.prevCooldown
		s.position = &pos
		s.lastExit = nil
	default:
		return fmt.Errorf("unknown side: %s", intent.Side)
	}
	return nil
}

// ConfirmFill 用实际成交价修正记账
//
// 买入成交时修正开仓价和现金；卖出成交时只修正现金和已实现盈亏。
func (s *BounceStrategy) ConfirmFill(intent *strategy.TradeIntent, fillPrice decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if intent == nil || intent.Instrument != s.instrument {
		return &strategy.StateInconsistency{
			Instrument: s.instrument,
			Operation:  "confirm fill",
			State:      s.state(),
			Reason:     "intent does not belong to this engine",
		}
	}
	if !fillPrice.IsPositive() {
		return &strategy.DataError{
			Instrument: s.instrument,
			Timestamp:  intent.Timestamp,
			Err:        errors.New("fill price must be positive"),
		}
	}

	slippage := fillPrice.Sub(intent.Price).Mul(intent.Size)

	switch intent.Side {
	case strategy.SideBuy:
		if s.position == nil || !s.position.EntryTime.Equal(intent.Timestamp) {
			return &strategy.StateInconsistency{
				Instrument: s.instrument,
				Operation:  "confirm buy fill",
				State:      s.state(),
				Reason:     "no matching open position",
			}
		}
		s.cash = s.cash.Sub(slippage)
		if s.position.HighWaterPrice.Equal(s.position.EntryPrice) {
			s.position.HighWaterPrice = fillPrice
		}
		s.position.EntryPrice = fillPrice
	case strategy.SideSell:
		if s.position != nil && !s.position.EntryTime.After(intent.Timestamp) {
			return &strategy.StateInconsistency{
				Instrument: s.instrument,
				Operation:  "confirm sell fill",
				State:      s.state(),
				Reason:     "position still open",
			}
		}
		s.cash = s.cash.Add(slippage)
		s.realizedPnL = s.realizedPnL.Add(slippage)
	default:
		return fmt.Errorf("unknown side: %s", intent.Side)
	}
	return nil
}

func (s *BounceStrategy) state() strategy.PositionState {
	if s.position != nil {
		return strategy.StateLong
	}
	return strategy.StateFlat
}

// State 当前持仓状态
func (s *BounceStrategy) State() strategy.PositionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

// Position 持仓副本，空仓时为 nil
func (s *BounceStrategy) Position() *strategy.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position == nil {
		return nil
	}
	pos := *s.position
	return &pos
}

// Cash 当前现金
func (s *BounceStrategy) Cash() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

// Equity 现金加按给定价格计算的持仓市值
func (s *BounceStrategy) Equity(price decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position == nil {
		return s.cash
	}
	return s.cash.Add(s.position.MarketValue(price))
}

// LastBar 窗口中最新的K线
func (s *BounceStrategy) LastBar() *cex.KlineData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Last()
}

// WarmupRemaining 距离可以产生开仓信号还差几根K线
func (s *BounceStrategy) WarmupRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	need := s.params.LookbackBars + 1
	if s.params.SMAPeriod > need {
		need = s.params.SMAPeriod
	}
	if remaining := need - s.window.Len(); remaining > 0 {
		return remaining
	}
	return 0
}

// Snapshot 引擎状态快照
func (s *BounceStrategy) Snapshot() strategy.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := strategy.Snapshot{
		Instrument:    s.instrument,
		State:         s.state(),
		Cash:          s.cash,
		RealizedPnL:   s.realizedPnL,
		CooldownUntil: s.cooldownUntil,
		TradeCount:    s.tradeCount,
		Bars:          s.window.Len(),
	}
	if s.position != nil {
		pos := *s.position
		snap.Position = &pos
	}
	return snap
}
