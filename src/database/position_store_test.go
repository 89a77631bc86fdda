package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bouncebot/src/strategy"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPosition() *strategy.Position {
	return &strategy.Position{
		EntryTime:      time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC),
		EntryPrice:     decimal.RequireFromString("95.5"),
		Shares:         decimal.NewFromInt(10),
		HighWaterPrice: decimal.RequireFromString("97.25"),
	}
}

func TestFilePositionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFilePositionStore(filepath.Join(t.TempDir(), "state", "positions.yaml"))

	// 文件不存在时视为空
	positions, err := store.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	require.NoError(t, store.SavePosition(ctx, "SOL/USDT", testPosition()))
	require.NoError(t, store.SavePosition(ctx, "ETH/USDT", testPosition()))

	positions, err = store.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	got := positions["SOL/USDT"]
	want := testPosition()
	assert.Equal(t, want.EntryTime, got.EntryTime)
	assert.True(t, want.EntryPrice.Equal(got.EntryPrice))
	assert.True(t, want.Shares.Equal(got.Shares))
	assert.True(t, want.HighWaterPrice.Equal(got.HighWaterPrice))

	require.NoError(t, store.DeletePosition(ctx, "SOL/USDT"))
	positions, err = store.LoadPositions(ctx)
	require.NoError(t, err)
	assert.NotContains(t, positions, "SOL/USDT")
	assert.Contains(t, positions, "ETH/USDT")

	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFilePositionStore_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.yaml")
	store := NewFilePositionStore(path)

	require.NoError(t, os.WriteFile(path, []byte("positions: [not a map"), 0o644))
	_, err := store.LoadPositions(context.Background())
	assert.Error(t, err)

	content := "positions:\n  SOL/USDT:\n    entry_time: 2024-05-01T07:00:00Z\n    entry_price: abc\n    shares: \"10\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	_, err = store.LoadPositions(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "entry_price")
}

func TestPostgresDB_Positions(t *testing.T) {
	postgresDB, mock := newMockDB(t)
	ctx := context.Background()
	pos := testPosition()

	mock.ExpectExec("INSERT INTO positions").
		WithArgs("SOL/USDT", pos.EntryTime, pos.EntryPrice, pos.Shares, pos.HighWaterPrice).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, postgresDB.SavePosition(ctx, "SOL/USDT", pos))

	// nil 等价于删除
	mock.ExpectExec("DELETE FROM positions").
		WithArgs("ETH/USDT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, postgresDB.SavePosition(ctx, "ETH/USDT", nil))

	mock.ExpectQuery("SELECT (.+) FROM positions").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "entry_time", "entry_price", "shares", "high_water_price"}).
			AddRow("SOL/USDT", pos.EntryTime, "95.5", "10", "97.25"))

	positions, err := postgresDB.LoadPositions(ctx)
	require.NoError(t, err)
	require.Contains(t, positions, "SOL/USDT")
	assert.True(t, positions["SOL/USDT"].EntryPrice.Equal(pos.EntryPrice))
	assert.NoError(t, positions["SOL/USDT"].Validate())

	assert.NoError(t, mock.ExpectationsWereMet())
}
