package database

import (
	"context"
	"fmt"
)

// schema 建表语句，全部可重复执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS klines (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(32) NOT NULL,
		timeframe VARCHAR(8) NOT NULL,
		open_time BIGINT NOT NULL,
		close_time BIGINT NOT NULL,
		open_price NUMERIC(36, 18) NOT NULL,
		high_price NUMERIC(36, 18) NOT NULL,
		low_price NUMERIC(36, 18) NOT NULL,
		close_price NUMERIC(36, 18) NOT NULL,
		volume NUMERIC(36, 18) NOT NULL,
		quote_volume NUMERIC(36, 18) NOT NULL DEFAULT 0,
		taker_buy_volume NUMERIC(36, 18) NOT NULL DEFAULT 0,
		taker_buy_quote_volume NUMERIC(36, 18) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (symbol, timeframe, open_time)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id UUID PRIMARY KEY,
		mode VARCHAR(16) NOT NULL,
		instruments TEXT[] NOT NULL,
		timeframe VARCHAR(8) NOT NULL,
		strategy_name VARCHAR(64) NOT NULL,
		strategy_params JSONB,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		initial_capital NUMERIC(36, 18),
		final_capital NUMERIC(36, 18),
		total_return NUMERIC(20, 8),
		max_drawdown NUMERIC(20, 8),
		sharpe_ratio NUMERIC(20, 8),
		win_rate NUMERIC(20, 8),
		total_trades INTEGER NOT NULL DEFAULT 0,
		winning_trades INTEGER NOT NULL DEFAULT 0,
		losing_trades INTEGER NOT NULL DEFAULT 0,
		total_commission NUMERIC(36, 18),
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMPTZ
	)`,
	// 成交先于运行记录写入，不加外键
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		backtest_run_id UUID NOT NULL,
		order_id VARCHAR(64) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		side VARCHAR(8) NOT NULL,
		quantity NUMERIC(36, 18) NOT NULL,
		price NUMERIC(36, 18) NOT NULL,
		commission NUMERIC(36, 18) NOT NULL DEFAULT 0,
		reason VARCHAR(32) NOT NULL,
		mode VARCHAR(16) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades (timestamp, symbol)`,
	`CREATE TABLE IF NOT EXISTS positions (
		symbol VARCHAR(32) PRIMARY KEY,
		entry_time TIMESTAMPTZ NOT NULL,
		entry_price NUMERIC(36, 18) NOT NULL,
		shares NUMERIC(36, 18) NOT NULL,
		high_water_price NUMERIC(36, 18) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sync_status (
		symbol VARCHAR(32) NOT NULL,
		timeframe VARCHAR(8) NOT NULL,
		last_sync_time BIGINT NOT NULL,
		last_open_time BIGINT NOT NULL,
		total_records INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, timeframe)
	)`,
}

// EnsureSchema 创建缺失的表和索引
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
