package indicators

import (
	"testing"
	"time"

	"bouncebot/src/cex"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func barAt(i int, close float64) *cex.KlineData {
	price := decimal.NewFromFloat(close)
	return &cex.KlineData{
		OpenTime: windowStart.Add(time.Duration(i) * time.Hour),
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Volume:   decimal.NewFromInt(1000),
	}
}

func mustWindow(t *testing.T, capacity int, closes ...float64) *BarWindow {
	t.Helper()
	w, err := NewBarWindow(capacity)
	require.NoError(t, err)
	for i, c := range closes {
		require.NoError(t, w.Push(barAt(i, c)))
	}
	return w
}

func TestNewBarWindow_InvalidCapacity(t *testing.T) {
	_, err := NewBarWindow(0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestBarWindow_PushAndEvict(t *testing.T) {
	w := mustWindow(t, 3, 1, 2, 3, 4, 5)

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 3, w.Cap())
	assert.True(t, w.At(0).Close.Equal(decimal.NewFromInt(3)), "oldest should be evicted FIFO")
	assert.True(t, w.Last().Close.Equal(decimal.NewFromInt(5)))
	assert.Nil(t, w.At(3))
	assert.Nil(t, w.At(-1))
}

func TestBarWindow_RejectsNonIncreasingTimestamps(t *testing.T) {
	w := mustWindow(t, 5, 10, 11)

	t.Run("duplicate", func(t *testing.T) {
		err := w.Push(barAt(1, 99))
		assert.ErrorIs(t, err, ErrDuplicateBar)
	})

	t.Run("out of order", func(t *testing.T) {
		err := w.Push(barAt(0, 99))
		assert.ErrorIs(t, err, ErrOutOfOrderBar)
	})

	// 拒绝的K线不改变窗口
	assert.Equal(t, 2, w.Len())
	assert.True(t, w.Last().Close.Equal(decimal.NewFromInt(11)))
}

func TestBarWindow_LastN(t *testing.T) {
	w := mustWindow(t, 4, 1, 2, 3, 4, 5, 6)

	t.Run("ordered view", func(t *testing.T) {
		bars, err := w.LastN(2)
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.True(t, bars[0].Close.Equal(decimal.NewFromInt(5)))
		assert.True(t, bars[1].Close.Equal(decimal.NewFromInt(6)))
	})

	t.Run("copy does not alias window", func(t *testing.T) {
		bars, err := w.LastN(4)
		require.NoError(t, err)
		bars[0] = nil
		assert.NotNil(t, w.At(0))
	})

	t.Run("more than capacity", func(t *testing.T) {
		_, err := w.LastN(5)
		assert.ErrorIs(t, err, ErrExceedsCapacity)
	})

	t.Run("more than present", func(t *testing.T) {
		short := mustWindow(t, 4, 1)
		_, err := short.LastN(2)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestBarWindow_Closes(t *testing.T) {
	w := mustWindow(t, 3, 7, 8, 9, 10)
	closes := w.Closes()
	require.Len(t, closes, 3)
	assert.True(t, closes[0].Equal(decimal.NewFromInt(8)))
	assert.True(t, closes[2].Equal(decimal.NewFromInt(10)))
}

func BenchmarkBarWindow_Push(b *testing.B) {
	w, _ := NewBarWindow(70)
	bar := barAt(0, 100)
	for i := 0; i < b.N; i++ {
		next := *bar
		next.OpenTime = windowStart.Add(time.Duration(i) * time.Millisecond)
		_ = w.Push(&next)
	}
}
