package strategies

import (
	"fmt"
	"sort"

	"bouncebot/src/cex"
	"bouncebot/src/strategy"
)

// Registry 交易对到引擎的映射，构建后只读，可被多个 goroutine 共享
type Registry struct {
	engines map[string]*BounceStrategy
}

// NewRegistry 为每个交易对创建一个使用相同参数的引擎
func NewRegistry(instruments []string, params *strategy.BounceParams) (*Registry, error) {
	if len(instruments) == 0 {
		return nil, &strategy.ConfigError{Field: "instruments", Reason: "at least one instrument is required"}
	}

	r := &Registry{engines: make(map[string]*BounceStrategy, len(instruments))}
	for _, instrument := range instruments {
		if _, exists := r.engines[instrument]; exists {
			return nil, &strategy.ConfigError{Field: "instruments", Reason: fmt.Sprintf("duplicate instrument %s", instrument)}
		}
		engine, err := NewBounceStrategy(instrument, params)
		if err != nil {
			return nil, err
		}
		r.engines[instrument] = engine
	}
	return r, nil
}

// Get 获取交易对的引擎
func (r *Registry) Get(instrument string) (*BounceStrategy, error) {
	engine, ok := r.engines[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", strategy.ErrUnknownInstrument, instrument)
	}
	return engine, nil
}

// Instruments 已排序的交易对列表
func (r *Registry) Instruments() []string {
	instruments := make([]string, 0, len(r.engines))
	for instrument := range r.engines {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)
	return instruments
}

// Evaluate 把K线交给对应交易对的引擎
func (r *Registry) Evaluate(instrument string, bar *cex.KlineData) (*strategy.TradeIntent, error) {
	engine, err := r.Get(instrument)
	if err != nil {
		return nil, err
	}
	return engine.Evaluate(bar)
}

// Seed 预热指定交易对
func (r *Registry) Seed(instrument string, bars []*cex.KlineData) error {
	engine, err := r.Get(instrument)
	if err != nil {
		return err
	}
	return engine.Seed(bars)
}

// RestorePosition 恢复指定交易对的持仓
func (r *Registry) RestorePosition(instrument string, pos strategy.Position) error {
	engine, err := r.Get(instrument)
	if err != nil {
		return err
	}
	return engine.RestorePosition(pos)
}

// Snapshots 所有引擎的快照，按交易对排序
func (r *Registry) Snapshots() []strategy.Snapshot {
	snapshots := make([]strategy.Snapshot, 0, len(r.engines))
	for _, instrument := range r.Instruments() {
		snapshots = append(snapshots, r.engines[instrument].Snapshot())
	}
	return snapshots
}
