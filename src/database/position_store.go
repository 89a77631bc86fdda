package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bouncebot/src/strategy"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PositionStore 持仓快照存储，重启后用于 RestorePosition
type PositionStore interface {
	// SavePosition 保存（覆盖）某个交易对的持仓
	SavePosition(ctx context.Context, instrument string, pos *strategy.Position) error
	// DeletePosition 平仓后删除持仓
	DeletePosition(ctx context.Context, instrument string) error
	// LoadPositions 读取全部持仓
	LoadPositions(ctx context.Context) (map[string]*strategy.Position, error)
}

// SavePosition 写入 positions 表
func (p *PostgresDB) SavePosition(ctx context.Context, instrument string, pos *strategy.Position) error {
	if pos == nil {
		return p.DeletePosition(ctx, instrument)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, entry_time, entry_price, shares, high_water_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (symbol) DO UPDATE SET
			entry_time = EXCLUDED.entry_time,
			entry_price = EXCLUDED.entry_price,
			shares = EXCLUDED.shares,
			high_water_price = EXCLUDED.high_water_price,
			updated_at = CURRENT_TIMESTAMP`,
		instrument, pos.EntryTime, pos.EntryPrice, pos.Shares, pos.HighWaterPrice,
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// DeletePosition 删除持仓记录
func (p *PostgresDB) DeletePosition(ctx context.Context, instrument string) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM positions WHERE symbol = $1", instrument); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// LoadPositions 读取 positions 表
func (p *PostgresDB) LoadPositions(ctx context.Context) (map[string]*strategy.Position, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT symbol, entry_time, entry_price, shares, high_water_price FROM positions ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]*strategy.Position)
	for rows.Next() {
		var (
			symbol string
			pos    strategy.Position
		)
		if err := rows.Scan(&symbol, &pos.EntryTime, &pos.EntryPrice, &pos.Shares, &pos.HighWaterPrice); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.EntryTime = pos.EntryTime.UTC()
		positions[symbol] = &pos
	}
	return positions, rows.Err()
}

var _ PositionStore = (*PostgresDB)(nil)

// yamlPosition 文件中的持仓，金额用字符串保存避免精度丢失
type yamlPosition struct {
	EntryTime      time.Time `yaml:"entry_time"`
	EntryPrice     string    `yaml:"entry_price"`
	Shares         string    `yaml:"shares"`
	HighWaterPrice string    `yaml:"high_water_price"`
}

type yamlSnapshot struct {
	UpdatedAt time.Time                `yaml:"updated_at"`
	Positions map[string]*yamlPosition `yaml:"positions"`
}

// FilePositionStore 基于 YAML 文件的持仓存储
type FilePositionStore struct {
	path string
	mu   sync.Mutex
}

// NewFilePositionStore 创建文件持仓存储
func NewFilePositionStore(path string) *FilePositionStore {
	return &FilePositionStore{path: path}
}

// Path 文件路径
func (s *FilePositionStore) Path() string {
	return s.path
}

func (s *FilePositionStore) read() (*yamlSnapshot, error) {
	snapshot := &yamlSnapshot{Positions: map[string]*yamlPosition{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return snapshot, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position file: %w", err)
	}

	if err := yaml.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse position file %s: %w", s.path, err)
	}
	if snapshot.Positions == nil {
		snapshot.Positions = map[string]*yamlPosition{}
	}
	return snapshot, nil
}

// write 先写临时文件再 rename，保证文件完整
func (s *FilePositionStore) write(snapshot *yamlSnapshot) error {
	snapshot.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create position dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write position file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// SavePosition 保存持仓
func (s *FilePositionStore) SavePosition(ctx context.Context, instrument string, pos *strategy.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.read()
	if err != nil {
		return err
	}
	if pos == nil {
		delete(snapshot.Positions, instrument)
	} else {
		snapshot.Positions[instrument] = &yamlPosition{
			EntryTime:      pos.EntryTime.UTC(),
			EntryPrice:     pos.EntryPrice.String(),
			Shares:         pos.Shares.String(),
			HighWaterPrice: pos.HighWaterPrice.String(),
		}
	}
	return s.write(snapshot)
}

// DeletePosition 删除持仓
func (s *FilePositionStore) DeletePosition(ctx context.Context, instrument string) error {
	return s.SavePosition(ctx, instrument, nil)
}

// LoadPositions 读取全部持仓
func (s *FilePositionStore) LoadPositions(ctx context.Context) (map[string]*strategy.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.read()
	if err != nil {
		return nil, err
	}

	instruments := make([]string, 0, len(snapshot.Positions))
	for instrument := range snapshot.Positions {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	positions := make(map[string]*strategy.Position, len(instruments))
	for _, instrument := range instruments {
		raw := snapshot.Positions[instrument]
		pos := &strategy.Position{EntryTime: raw.EntryTime.UTC()}
		for _, field := range []struct {
			name string
			src  string
			dst  *decimal.Decimal
		}{
			{"entry_price", raw.EntryPrice, &pos.EntryPrice},
			{"shares", raw.Shares, &pos.Shares},
			{"high_water_price", raw.HighWaterPrice, &pos.HighWaterPrice},
		} {
			if field.src == "" {
				continue
			}
			value, err := decimal.NewFromString(field.src)
			if err != nil {
				return nil, fmt.Errorf("position %s: invalid %s %q: %w", instrument, field.name, field.src, err)
			}
			*field.dst = value
		}
		positions[instrument] = pos
	}
	return positions, nil
}

var _ PositionStore = (*FilePositionStore)(nil)
