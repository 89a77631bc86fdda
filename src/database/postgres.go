package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/executor"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresDB PostgreSQL数据库连接
type PostgresDB struct {
	db *sql.DB
}

// BacktestRun 回测运行记录
type BacktestRun struct {
	ID              string                 `json:"id"`
	Mode            string                 `json:"mode"`
	Instruments     []string               `json:"instruments"`
	Timeframe       string                 `json:"timeframe"`
	StrategyName    string                 `json:"strategy_name"`
	StrategyParams  map[string]interface{} `json:"strategy_params"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	InitialCapital  decimal.Decimal        `json:"initial_capital"`
	FinalCapital    decimal.Decimal        `json:"final_capital"`
	TotalReturn     decimal.Decimal        `json:"total_return"`
	MaxDrawdown     decimal.Decimal        `json:"max_drawdown"`
	SharpeRatio     decimal.Decimal        `json:"sharpe_ratio"`
	WinRate         decimal.Decimal        `json:"win_rate"`
	TotalTrades     int                    `json:"total_trades"`
	WinningTrades   int                    `json:"winning_trades"`
	LosingTrades    int                    `json:"losing_trades"`
	TotalCommission decimal.Decimal        `json:"total_commission"`
	Status          string                 `json:"status"`
	CompletedAt     *time.Time             `json:"completed_at"`
}

// TradeRecord 交易记录
type TradeRecord struct {
	ID            int64           `json:"id"`
	BacktestRunID string          `json:"backtest_run_id"`
	OrderID       string          `json:"order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Commission    decimal.Decimal `json:"commission"`
	Reason        string          `json:"reason"`
	Mode          string          `json:"mode"`
	Timestamp     time.Time       `json:"timestamp"`
}

// SyncStatus 数据同步状态
type SyncStatus struct {
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	LastSyncTime time.Time `json:"last_sync_time"`
	LastOpenTime time.Time `json:"last_open_time"`
	TotalRecords int       `json:"total_records"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message"`
}

// NewPostgresDB 创建PostgreSQL数据库连接
func NewPostgresDB(cfg DatabaseConfig) (*PostgresDB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池参数
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresDB{db: db}, nil
}

// Close 关闭数据库连接
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

const klineUpsert = `
		ON CONFLICT (symbol, timeframe, open_time)
		DO UPDATE SET
			close_time = EXCLUDED.close_time,
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			quote_volume = EXCLUDED.quote_volume,
			taker_buy_volume = EXCLUDED.taker_buy_volume,
			taker_buy_quote_volume = EXCLUDED.taker_buy_quote_volume,
			updated_at = CURRENT_TIMESTAMP
		WHERE (
			klines.close_time != EXCLUDED.close_time OR
			klines.close_price != EXCLUDED.close_price OR
			klines.high_price != EXCLUDED.high_price OR
			klines.low_price != EXCLUDED.low_price OR
			klines.volume != EXCLUDED.volume
		)
`

func klineArgs(symbol, timeframe string, kline *cex.KlineData) []interface{} {
	return []interface{}{
		symbol, timeframe, kline.OpenTime.UnixMilli(), kline.CloseTime.UnixMilli(),
		kline.Open, kline.High, kline.Low, kline.Close,
		kline.Volume, kline.QuoteVolume, kline.TakerBuyVolume, kline.TakerBuyQuoteVolume,
	}
}

// SaveKlines 保存K线数据（逐条，适合实时K线）
func (p *PostgresDB) SaveKlines(ctx context.Context, pair cex.TradingPair, timeframe string, klines []*cex.KlineData) error {
	if len(klines) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO klines (
			symbol, timeframe, open_time, close_time,
			open_price, high_price, low_price, close_price,
			volume, quote_volume, taker_buy_volume, taker_buy_quote_volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`+klineUpsert)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, kline := range klines {
		if _, err := stmt.ExecContext(ctx, klineArgs(pair.Symbol(), timeframe, kline)...); err != nil {
			return fmt.Errorf("failed to insert kline: %w", err)
		}
	}

	return tx.Commit()
}

// SaveKlinesBatch 批量保存K线数据（高性能版本）
func (p *PostgresDB) SaveKlinesBatch(ctx context.Context, pair cex.TradingPair, timeframe string, klines []*cex.KlineData) error {
	// 分批处理，避免SQL语句过长
	const batchSize = 100
	for i := 0; i < len(klines); i += batchSize {
		end := i + batchSize
		if end > len(klines) {
			end = len(klines)
		}

		if err := p.saveBatch(ctx, pair.Symbol(), timeframe, klines[i:end]); err != nil {
			return err
		}
	}

	return nil
}

// saveBatch 保存一批K线数据
func (p *PostgresDB) saveBatch(ctx context.Context, symbol, timeframe string, klines []*cex.KlineData) error {
	const columns = 12

	valueStrings := make([]string, 0, len(klines))
	valueArgs := make([]interface{}, 0, len(klines)*columns)

	for i, kline := range klines {
		placeholders := make([]string, columns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*columns+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs, klineArgs(symbol, timeframe, kline)...)
	}

	query := `
		INSERT INTO klines (
			symbol, timeframe, open_time, close_time,
			open_price, high_price, low_price, close_price,
			volume, quote_volume, taker_buy_volume, taker_buy_quote_volume
		) VALUES ` + strings.Join(valueStrings, ",") + klineUpsert

	if _, err := p.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("failed to batch insert klines: %w", err)
	}
	return nil
}

// GetKlines 获取 [startTime, endTime] 内的K线数据，零值时间表示不限
func (p *PostgresDB) GetKlines(ctx context.Context, pair cex.TradingPair, timeframe string, startTime, endTime time.Time, limit int) ([]*cex.KlineData, error) {
	query := `
		SELECT open_time, close_time, open_price, high_price, low_price, close_price,
		       volume, quote_volume, taker_buy_volume, taker_buy_quote_volume
		FROM klines
		WHERE symbol = $1 AND timeframe = $2
	`
	args := []interface{}{pair.Symbol(), timeframe}
	argIndex := 3

	if !startTime.IsZero() {
		query += fmt.Sprintf(" AND open_time >= $%d", argIndex)
		args = append(args, startTime.UnixMilli())
		argIndex++
	}

	if !endTime.IsZero() {
		query += fmt.Sprintf(" AND open_time <= $%d", argIndex)
		args = append(args, endTime.UnixMilli())
		argIndex++
	}

	// 只取最近的 limit 根：倒序取再翻转
	if limit > 0 {
		query += fmt.Sprintf(" ORDER BY open_time DESC LIMIT $%d", argIndex)
		args = append(args, limit)
	} else {
		query += " ORDER BY open_time ASC"
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w", err)
	}
	defer rows.Close()

	var klines []*cex.KlineData
	for rows.Next() {
		var openTime, closeTime int64
		kline := &cex.KlineData{TradingPair: pair}
		err := rows.Scan(
			&openTime, &closeTime,
			&kline.Open, &kline.High, &kline.Low, &kline.Close,
			&kline.Volume, &kline.QuoteVolume,
			&kline.TakerBuyVolume, &kline.TakerBuyQuoteVolume,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kline: %w", err)
		}
		kline.OpenTime = time.UnixMilli(openTime).UTC()
		kline.CloseTime = time.UnixMilli(closeTime).UTC()
		klines = append(klines, kline)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 {
		for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
			klines[i], klines[j] = klines[j], klines[i]
		}
	}
	return klines, nil
}

// GetLatestKlineTime 获取最新K线时间，无数据时返回零值
func (p *PostgresDB) GetLatestKlineTime(ctx context.Context, pair cex.TradingPair, timeframe string) (time.Time, error) {
	var openTime sql.NullInt64
	err := p.db.QueryRowContext(ctx,
		"SELECT MAX(open_time) FROM klines WHERE symbol = $1 AND timeframe = $2",
		pair.Symbol(), timeframe,
	).Scan(&openTime)

	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest kline time: %w", err)
	}

	if !openTime.Valid {
		return time.Time{}, nil
	}

	return time.UnixMilli(openTime.Int64).UTC(), nil
}

// SaveBacktestRun 保存或更新回测运行记录
func (p *PostgresDB) SaveBacktestRun(ctx context.Context, run *BacktestRun) error {
	paramsJSON, err := json.Marshal(run.StrategyParams)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy params: %w", err)
	}

	query := `
		INSERT INTO backtest_runs (
			id, mode, instruments, timeframe, strategy_name, strategy_params,
			start_time, end_time, initial_capital, final_capital,
			total_return, max_drawdown, sharpe_ratio, win_rate,
			total_trades, winning_trades, losing_trades, total_commission,
			status, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			final_capital = EXCLUDED.final_capital,
			total_return = EXCLUDED.total_return,
			max_drawdown = EXCLUDED.max_drawdown,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			win_rate = EXCLUDED.win_rate,
			total_trades = EXCLUDED.total_trades,
			winning_trades = EXCLUDED.winning_trades,
			losing_trades = EXCLUDED.losing_trades,
			total_commission = EXCLUDED.total_commission,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at
	`

	_, err = p.db.ExecContext(ctx, query,
		run.ID, run.Mode, pq.Array(run.Instruments), run.Timeframe, run.StrategyName, string(paramsJSON),
		run.StartTime, run.EndTime, run.InitialCapital, run.FinalCapital,
		run.TotalReturn, run.MaxDrawdown, run.SharpeRatio, run.WinRate,
		run.TotalTrades, run.WinningTrades, run.LosingTrades, run.TotalCommission,
		run.Status, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backtest run: %w", err)
	}
	return nil
}

// SaveTrade 保存一条成交记录
func (p *PostgresDB) SaveTrade(ctx context.Context, runID string, result *executor.OrderResult) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trades (
			backtest_run_id, order_id, symbol, side, quantity, price,
			commission, reason, mode, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		runID, result.OrderID, result.Instrument, string(result.Side), result.Quantity, result.Price,
		result.Commission, string(result.Reason), string(result.Mode), result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetTrades 获取 [from, to) 内的成交记录，symbol 为空时返回全部
func (p *PostgresDB) GetTrades(ctx context.Context, symbol string, from, to time.Time) ([]*TradeRecord, error) {
	query := `
		SELECT id, backtest_run_id, order_id, symbol, side, quantity, price,
		       commission, reason, mode, timestamp
		FROM trades
		WHERE timestamp >= $1 AND timestamp < $2
	`
	args := []interface{}{from, to}
	if symbol != "" {
		query += " AND symbol = $3"
		args = append(args, symbol)
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*TradeRecord
	for rows.Next() {
		trade := &TradeRecord{}
		if err := rows.Scan(
			&trade.ID, &trade.BacktestRunID, &trade.OrderID, &trade.Symbol, &trade.Side,
			&trade.Quantity, &trade.Price, &trade.Commission, &trade.Reason, &trade.Mode,
			&trade.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// UpdateSyncStatus 更新同步状态
func (p *PostgresDB) UpdateSyncStatus(ctx context.Context, pair cex.TradingPair, timeframe string, lastOpenTime time.Time, totalRecords int, status, errorMsg string) error {
	query := `
		INSERT INTO sync_status (symbol, timeframe, last_sync_time, last_open_time, total_records, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, timeframe)
		DO UPDATE SET
			last_sync_time = $3,
			last_open_time = $4,
			total_records = $5,
			status = $6,
			error_message = $7,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := p.db.ExecContext(ctx, query,
		pair.Symbol(), timeframe, time.Now().Unix(), lastOpenTime.UnixMilli(), totalRecords, status, errorMsg,
	)
	return err
}

// GetSyncStatus 获取同步状态，没有记录时返回 nil
func (p *PostgresDB) GetSyncStatus(ctx context.Context, pair cex.TradingPair, timeframe string) (*SyncStatus, error) {
	var (
		status       SyncStatus
		lastSync     int64
		lastOpenTime int64
	)
	err := p.db.QueryRowContext(ctx,
		"SELECT symbol, timeframe, last_sync_time, last_open_time, total_records, status, error_message FROM sync_status WHERE symbol = $1 AND timeframe = $2",
		pair.Symbol(), timeframe,
	).Scan(
		&status.Symbol, &status.Timeframe, &lastSync, &lastOpenTime,
		&status.TotalRecords, &status.Status, &status.ErrorMessage,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	status.LastSyncTime = time.Unix(lastSync, 0).UTC()
	status.LastOpenTime = time.UnixMilli(lastOpenTime).UTC()
	return &status, nil
}
