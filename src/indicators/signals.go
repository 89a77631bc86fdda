package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SignalCalculator 反弹信号计算器
type SignalCalculator struct {
	Lookback  int // 回看K线数，不含当前K线
	SMAPeriod int // 趋势均线周期，含当前K线
}

// SignalResult 单根K线上的信号快照
type SignalResult struct {
	Price      decimal.Decimal // 当前收盘价
	RollingMax decimal.Decimal // 前 Lookback 根的最高收盘价
	DropPct    decimal.Decimal // 相对 RollingMax 的跌幅(%)，负数表示下跌
	SMA        decimal.Decimal // 趋势均线
	TrendOK    bool            // 收盘价在均线之上
}

// NewSignalCalculator 创建信号计算器
func NewSignalCalculator(lookback, smaPeriod int) *SignalCalculator {
	return &SignalCalculator{
		Lookback:  lookback,
		SMAPeriod: smaPeriod,
	}
}

// Calculate 基于窗口最新一根K线计算信号。
// 历史不足时返回 ErrInsufficientData，调用方应跳过这根K线的开仓判断。
func (c *SignalCalculator) Calculate(w *BarWindow) (*SignalResult, error) {
	rollingMax, err := RollingMaxClose(w, c.Lookback)
	if err != nil {
		return nil, err
	}

	sma, err := SMA(w, c.SMAPeriod)
	if err != nil {
		return nil, err
	}

	price := w.Last().Close
	return &SignalResult{
		Price:      price,
		RollingMax: rollingMax,
		DropPct:    DropPct(price, rollingMax),
		SMA:        sma,
		TrendOK:    TrendOK(price, sma),
	}, nil
}

// RollingMaxClose 当前K线之前 lookback 根的最高收盘价，不含当前K线
func RollingMaxClose(w *BarWindow, lookback int) (decimal.Decimal, error) {
	if lookback <= 0 {
		return decimal.Zero, ErrInvalidPeriod
	}
	if w.Len() < lookback+1 {
		return decimal.Zero, fmt.Errorf("rolling max over %d prior bars, have %d: %w", lookback, w.Len()-1, ErrInsufficientData)
	}

	last := w.Len() - 1
	highest := w.At(last - lookback).Close
	for i := last - lookback + 1; i < last; i++ {
		if c := w.At(i).Close; c.GreaterThan(highest) {
			highest = c
		}
	}
	return highest, nil
}

// SMA 最近 period 根（含当前K线）收盘价的简单移动平均
func SMA(w *BarWindow, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, ErrInvalidPeriod
	}
	bars, err := w.LastN(period)
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, bar := range bars {
		sum = sum.Add(bar.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// DropPct (price - rollingMax) / rollingMax * 100，rollingMax 必须为正
func DropPct(price, rollingMax decimal.Decimal) decimal.Decimal {
	return PctChange(rollingMax, price)
}

// TrendOK 收盘价严格高于均线
func TrendOK(close, sma decimal.Decimal) bool {
	return close.GreaterThan(sma)
}

// PctChange (to - from) / from * 100，from 必须为正
func PctChange(from, to decimal.Decimal) decimal.Decimal {
	return to.Sub(from).Div(from).Mul(hundred)
}
