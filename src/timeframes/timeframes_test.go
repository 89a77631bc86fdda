package timeframes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframe_GetDuration(t *testing.T) {
	tests := []struct {
		name      string
		timeframe Timeframe
		expected  time.Duration
		wantErr   bool
	}{
		{"1m", Timeframe1m, time.Minute, false},
		{"5m", Timeframe5m, 5 * time.Minute, false},
		{"1h", Timeframe1h, time.Hour, false},
		{"4h", Timeframe4h, 4 * time.Hour, false},
		{"1d", Timeframe1d, 24 * time.Hour, false},
		{"weekly unsupported", Timeframe("1w"), 0, true},
		{"invalid", Timeframe("invalid"), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.timeframe.GetDuration()

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, time.Duration(0), result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("15m")
	require.NoError(t, err)
	assert.Equal(t, Timeframe15m, tf)
	assert.Equal(t, "15m", tf.GetBinanceInterval())

	_, err = ParseTimeframe("7m")
	assert.Error(t, err)
}

func TestTimeframe_MustDuration_Panics(t *testing.T) {
	assert.Panics(t, func() { Timeframe("bogus").MustDuration() })
}

func TestTimeframe_Truncate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 47, 12, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 1, 13, 45, 0, 0, time.UTC), Timeframe5m.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), Timeframe1h.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Timeframe4h.Truncate(ts))
}

func TestTimeframe_MissingOpenTimes(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("consecutive bars have no gap", func(t *testing.T) {
		assert.Empty(t, Timeframe1m.MissingOpenTimes(base, base.Add(time.Minute)))
	})

	t.Run("three missing minutes", func(t *testing.T) {
		missing := Timeframe1m.MissingOpenTimes(base, base.Add(4*time.Minute))
		require.Len(t, missing, 3)
		assert.Equal(t, base.Add(time.Minute), missing[0])
		assert.Equal(t, base.Add(3*time.Minute), missing[2])
	})

	t.Run("unaligned previous bar", func(t *testing.T) {
		missing := Timeframe1h.MissingOpenTimes(base.Add(10*time.Minute), base.Add(3*time.Hour))
		assert.Equal(t, []time.Time{base.Add(time.Hour), base.Add(2 * time.Hour)}, missing)
	})
}

func TestTimeframe_BarsFor(t *testing.T) {
	assert.Equal(t, 72, Timeframe1h.BarsFor(72*time.Hour))
	assert.Equal(t, 2, Timeframe1h.BarsFor(61*time.Minute))
	assert.Equal(t, 0, Timeframe5m.BarsFor(0))
}
