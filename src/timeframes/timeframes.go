package timeframes

import (
	"fmt"
	"time"
)

// Timeframe K线周期，取值与币安 interval 一致
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe8h  Timeframe = "8h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
)

// 月/周周期不定长，跳空检测无法对齐，故不支持
var durations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe3m:  3 * time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe2h:  2 * time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe6h:  6 * time.Hour,
	Timeframe8h:  8 * time.Hour,
	Timeframe12h: 12 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// GetDuration 获取周期长度
func (tf Timeframe) GetDuration() (time.Duration, error) {
	d, ok := durations[tf]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return d, nil
}

// MustDuration 已校验过的周期直接取长度
func (tf Timeframe) MustDuration() time.Duration {
	d, err := tf.GetDuration()
	if err != nil {
		panic(err)
	}
	return d
}

// String 返回字符串表示
func (tf Timeframe) String() string {
	return string(tf)
}

// IsValid 检查周期是否受支持
func (tf Timeframe) IsValid() bool {
	_, ok := durations[tf]
	return ok
}

// GetBinanceInterval 币安API使用的 interval 字符串
func (tf Timeframe) GetBinanceInterval() string {
	return string(tf)
}

// ParseTimeframe 解析周期字符串
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("invalid timeframe: %s", s)
	}
	return tf, nil
}

// Truncate 把时间对齐到所在K线的开盘时间（UTC）
func (tf Timeframe) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(tf.MustDuration())
}

// MissingOpenTimes 返回 (after, before) 开区间内应当存在的K线开盘时间
func (tf Timeframe) MissingOpenTimes(after, before time.Time) []time.Time {
	d := tf.MustDuration()
	var missing []time.Time
	for t := tf.Truncate(after).Add(d); t.Before(before); t = t.Add(d) {
		missing = append(missing, t)
	}
	return missing
}

// BarsFor 计算一段时长内的K线数量（向上取整）
func (tf Timeframe) BarsFor(span time.Duration) int {
	d := tf.MustDuration()
	n := int(span / d)
	if span%d != 0 {
		n++
	}
	return n
}
