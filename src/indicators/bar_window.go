package indicators

import (
	"fmt"

	"bouncebot/src/cex"

	"github.com/shopspring/decimal"
)

// BarWindow 固定容量的K线环形缓冲区，满了之后淘汰最旧的一根。
// 只属于单个交易对的引擎，不做并发保护。
type BarWindow struct {
	bars  []*cex.KlineData
	start int // 最旧一根的位置
	size  int
}

// NewBarWindow 创建窗口，capacity 必须大于0
func NewBarWindow(capacity int) (*BarWindow, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity %d: %w", capacity, ErrInvalidPeriod)
	}
	return &BarWindow{bars: make([]*cex.KlineData, capacity)}, nil
}

// Push 追加一根K线，时间戳必须严格大于最新一根
func (w *BarWindow) Push(bar *cex.KlineData) error {
	if last := w.Last(); last != nil {
		switch {
		case bar.OpenTime.Equal(last.OpenTime):
			return ErrDuplicateBar
		case bar.OpenTime.Before(last.OpenTime):
			return ErrOutOfOrderBar
		}
	}

	capacity := len(w.bars)
	if w.size < capacity {
		w.bars[(w.start+w.size)%capacity] = bar
		w.size++
		return nil
	}

	w.bars[w.start] = bar
	w.start = (w.start + 1) % capacity
	return nil
}

// Len 当前K线数量
func (w *BarWindow) Len() int {
	return w.size
}

// Cap 窗口容量
func (w *BarWindow) Cap() int {
	return len(w.bars)
}

// At 按时间顺序取第 i 根，0 为最旧
func (w *BarWindow) At(i int) *cex.KlineData {
	if i < 0 || i >= w.size {
		return nil
	}
	return w.bars[(w.start+i)%len(w.bars)]
}

// Last 最新一根，窗口为空时返回 nil
func (w *BarWindow) Last() *cex.KlineData {
	return w.At(w.size - 1)
}

// LastN 返回最近 k 根（旧的在前）的副本
func (w *BarWindow) LastN(k int) ([]*cex.KlineData, error) {
	if k > len(w.bars) {
		return nil, fmt.Errorf("last %d bars, capacity %d: %w", k, len(w.bars), ErrExceedsCapacity)
	}
	if k > w.size {
		return nil, fmt.Errorf("last %d bars, have %d: %w", k, w.size, ErrInsufficientData)
	}

	result := make([]*cex.KlineData, k)
	for i := 0; i < k; i++ {
		result[i] = w.At(w.size - k + i)
	}
	return result, nil
}

// Closes 按时间顺序返回全部收盘价
func (w *BarWindow) Closes() []decimal.Decimal {
	closes := make([]decimal.Decimal, w.size)
	for i := 0; i < w.size; i++ {
		closes[i] = w.At(i).Close
	}
	return closes
}
